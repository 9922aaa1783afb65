//go:build !linux

package memory

// SystemReader returns a Reader that reports ErrUnsupported.
func SystemReader() Reader {
	return ReaderFunc(func() (Stats, error) {
		return Stats{}, ErrUnsupported
	})
}
