package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/siphon/pkg/types"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "https", raw: "https://example.com/watch?v=1", want: "https://example.com/watch?v=1"},
		{name: "http with port", raw: "http://localhost:8080/", want: "http://localhost:8080/"},
		{name: "surrounding space", raw: "  https://example.com  ", want: "https://example.com"},
		{name: "empty", raw: "", wantErr: true},
		{name: "no scheme", raw: "example.com", wantErr: true},
		{name: "unsupported scheme", raw: "file:///etc/passwd", wantErr: true},
		{name: "missing host", raw: "https:///path", wantErr: true},
		{name: "garbage", raw: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ValidateURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}
