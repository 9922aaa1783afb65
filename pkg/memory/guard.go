// Package memory reads host memory and turns it into admission and
// concurrency decisions for the browser pool.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/siphon/pkg/logging"
	"github.com/entrhq/siphon/pkg/types"
)

const bytesPerMB = 1024 * 1024

// ErrUnsupported is returned by readers on platforms without a memory probe.
var ErrUnsupported = errors.New("memory statistics not supported on this platform")

// Stats is a single reading of host memory in bytes.
type Stats struct {
	Total uint64
	Free  uint64
}

// Reader returns the current host memory statistics.
type Reader interface {
	Read() (Stats, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func() (Stats, error)

// Read calls f.
func (f ReaderFunc) Read() (Stats, error) { return f() }

// Budget is a snapshot of memory against a minimum free fraction.
type Budget struct {
	Total           uint64
	Free            uint64
	MinFreeFraction float64
}

// FreeFraction returns Free/Total, or 1 when Total is unknown.
func (b Budget) FreeFraction() float64 {
	if b.Total == 0 {
		return 1
	}
	return float64(b.Free) / float64(b.Total)
}

// Guard derives availability and concurrency decisions from a Reader.
// Nothing is cached; each call reads memory again.
type Guard struct {
	reader   Reader
	logger   *logging.Logger
	warnOnce sync.Once
}

// NewGuard creates a guard over reader. A nil reader uses the platform default.
func NewGuard(reader Reader, logger *logging.Logger) *Guard {
	if reader == nil {
		reader = SystemReader()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{reader: reader, logger: logger}
}

// read returns current stats. When the platform has no probe the host is
// treated as having all memory free.
func (g *Guard) read() (Stats, error) {
	stats, err := g.reader.Read()
	if errors.Is(err, ErrUnsupported) {
		g.warnOnce.Do(func() {
			g.logger.Warnf("memory probe unavailable, admission checks disabled: %v", err)
		})
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read memory statistics: %w", err)
	}
	if stats.Free > stats.Total {
		stats.Free = stats.Total
	}
	return stats, nil
}

// Budget returns the current memory snapshot against threshold.
func (g *Guard) Budget(threshold float64) (Budget, error) {
	stats, err := g.read()
	if err != nil {
		return Budget{}, err
	}
	return Budget{Total: stats.Total, Free: stats.Free, MinFreeFraction: threshold}, nil
}

// FreeFraction returns the current free/total memory ratio.
func (g *Guard) FreeFraction() (float64, error) {
	b, err := g.Budget(0)
	if err != nil {
		return 0, err
	}
	return b.FreeFraction(), nil
}

// AssertAvailable fails with a resource-exhausted error if the free fraction
// is below threshold.
func (g *Guard) AssertAvailable(threshold float64) error {
	b, err := g.Budget(threshold)
	if err != nil {
		return types.NewError(types.KindResourceExhausted, "check memory", err)
	}
	if frac := b.FreeFraction(); frac < threshold {
		return &types.Error{
			Kind:   types.KindResourceExhausted,
			Op:     "check memory",
			Detail: fmt.Sprintf("free %.1f%% below minimum %.1f%%", frac*100, threshold*100),
		}
	}
	return nil
}

// RecommendConcurrency returns how many instances costing perInstanceCostMB
// fit in free memory, clamped to [min, max].
func (g *Guard) RecommendConcurrency(perInstanceCostMB, min, max int) int {
	if max < min {
		max = min
	}
	stats, err := g.read()
	if err != nil {
		g.logger.Warnf("falling back to minimum concurrency %d: %v", min, err)
		return min
	}
	if stats.Total == 0 || perInstanceCostMB <= 0 {
		return max
	}
	return clamp(int(stats.Free/bytesPerMB)/perInstanceCostMB, min, max)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
