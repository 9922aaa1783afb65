package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/siphon/pkg/types"
)

func fixed(totalMB, freeMB uint64) Reader {
	return ReaderFunc(func() (Stats, error) {
		return Stats{Total: totalMB * bytesPerMB, Free: freeMB * bytesPerMB}, nil
	})
}

func TestGuard_FreeFraction(t *testing.T) {
	g := NewGuard(fixed(1000, 250), nil)

	frac, err := g.FreeFraction()
	require.NoError(t, err)
	assert.InDelta(t, 0.25, frac, 1e-9)
}

func TestGuard_FreeFractionReadsEveryTime(t *testing.T) {
	free := uint64(800)
	g := NewGuard(ReaderFunc(func() (Stats, error) {
		return Stats{Total: 1000, Free: free}, nil
	}), nil)

	first, err := g.FreeFraction()
	require.NoError(t, err)
	free = 100
	second, err := g.FreeFraction()
	require.NoError(t, err)

	assert.InDelta(t, 0.8, first, 1e-9)
	assert.InDelta(t, 0.1, second, 1e-9)
}

func TestGuard_AssertAvailable(t *testing.T) {
	tests := []struct {
		name      string
		freeMB    uint64
		threshold float64
		wantErr   bool
	}{
		{name: "above threshold", freeMB: 500, threshold: 0.2},
		{name: "exactly at threshold", freeMB: 200, threshold: 0.2},
		{name: "below threshold", freeMB: 100, threshold: 0.2, wantErr: true},
		{name: "zero threshold", freeMB: 0, threshold: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(fixed(1000, tt.freeMB), nil)
			err := g.AssertAvailable(tt.threshold)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrResourceExhausted)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGuard_AssertAvailableReadError(t *testing.T) {
	g := NewGuard(ReaderFunc(func() (Stats, error) {
		return Stats{}, errors.New("probe failed")
	}), nil)

	err := g.AssertAvailable(0.1)
	assert.ErrorIs(t, err, types.ErrResourceExhausted)
}

func TestGuard_UnsupportedPlatformIsPermissive(t *testing.T) {
	g := NewGuard(ReaderFunc(func() (Stats, error) {
		return Stats{}, ErrUnsupported
	}), nil)

	assert.NoError(t, g.AssertAvailable(0.9))
	frac, err := g.FreeFraction()
	require.NoError(t, err)
	assert.Equal(t, 1.0, frac)
	assert.Equal(t, 8, g.RecommendConcurrency(300, 1, 8))
}

func TestGuard_RecommendConcurrency(t *testing.T) {
	tests := []struct {
		name   string
		freeMB uint64
		costMB int
		min    int
		max    int
		want   int
	}{
		{name: "fits several", freeMB: 1000, costMB: 300, min: 1, max: 10, want: 3},
		{name: "clamped to max", freeMB: 16000, costMB: 300, min: 1, max: 4, want: 4},
		{name: "clamped to min", freeMB: 100, costMB: 300, min: 1, max: 4, want: 1},
		{name: "max below min", freeMB: 16000, costMB: 300, min: 2, max: 1, want: 2},
		{name: "zero cost uses max", freeMB: 10, costMB: 0, min: 1, max: 5, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(fixed(32000, tt.freeMB), nil)
			assert.Equal(t, tt.want, g.RecommendConcurrency(tt.costMB, tt.min, tt.max))
		})
	}
}

func TestGuard_RecommendConcurrencyDeterministic(t *testing.T) {
	g := NewGuard(fixed(8000, 2000), nil)
	first := g.RecommendConcurrency(250, 1, 20)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, g.RecommendConcurrency(250, 1, 20))
	}
}

func TestGuard_FreeClampedToTotal(t *testing.T) {
	g := NewGuard(ReaderFunc(func() (Stats, error) {
		return Stats{Total: 100, Free: 150}, nil
	}), nil)

	frac, err := g.FreeFraction()
	require.NoError(t, err)
	assert.Equal(t, 1.0, frac)
}

func TestSystemReader(t *testing.T) {
	stats, err := SystemReader().Read()
	if errors.Is(err, ErrUnsupported) {
		t.Skip("no memory probe on this platform")
	}
	require.NoError(t, err)
	assert.Greater(t, stats.Total, uint64(0))
	assert.LessOrEqual(t, stats.Free, stats.Total)
}
