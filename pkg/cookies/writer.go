package cookies

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/entrhq/siphon/pkg/types"
)

// Writer persists cookie jars. Files are written to a temporary sibling and
// renamed into place, so a reader never observes a truncated jar.
type Writer struct {
	fs afero.Fs
}

// NewWriter creates a jar writer over fs. A nil fs uses the OS filesystem.
func NewWriter(fs afero.Fs) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs}
}

// Write serializes cookies and atomically replaces destPath with the result.
// Missing parent directories are created.
func (w *Writer) Write(list []Cookie, destPath string) error {
	for _, c := range list {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	dir := filepath.Dir(destPath)
	if err := w.fs.MkdirAll(dir, 0700); err != nil {
		return types.NewError(types.KindIO, "write cookie jar", fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return types.NewError(types.KindIO, "write cookie jar", fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpPath := tmp.Name()

	fail := func(stage string, cause error) error {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpPath)
		return types.NewError(types.KindIO, "write cookie jar", fmt.Errorf("failed to %s: %w", stage, cause))
	}

	if _, err := tmp.WriteString(Serialize(list)); err != nil {
		return fail("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpPath)
		return types.NewError(types.KindIO, "write cookie jar", fmt.Errorf("failed to close temp file: %w", err))
	}
	// Jars hold session secrets
	if err := w.fs.Chmod(tmpPath, 0600); err != nil {
		_ = w.fs.Remove(tmpPath)
		return types.NewError(types.KindIO, "write cookie jar", fmt.Errorf("failed to chmod temp file: %w", err))
	}
	if err := w.fs.Rename(tmpPath, destPath); err != nil {
		_ = w.fs.Remove(tmpPath)
		return types.NewError(types.KindIO, "write cookie jar", fmt.Errorf("failed to rename temp file: %w", err))
	}
	return nil
}

// Read loads and parses the jar at path.
func (w *Writer) Read(path string) ([]Cookie, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.Errorf(types.KindInvalidInput, "read cookie jar", "cookie jar %s does not exist", path)
		}
		return nil, types.NewError(types.KindIO, "read cookie jar", err)
	}
	defer f.Close()
	return Parse(f)
}

// Remove deletes a jar, ignoring a missing file.
func (w *Writer) Remove(path string) error {
	if err := w.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return types.NewError(types.KindIO, "remove cookie jar", err)
	}
	return nil
}
