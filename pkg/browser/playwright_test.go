package browser

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"

	"github.com/entrhq/siphon/pkg/cookies"
)

func TestFromPlaywright(t *testing.T) {
	tests := []struct {
		name string
		in   playwright.Cookie
		want cookies.Cookie
	}{
		{
			name: "domain attribute",
			in:   playwright.Cookie{Name: "session", Value: "abc123", Domain: ".example.com", Path: "/", Expires: -1},
			want: cookies.Cookie{Domain: "example.com", Path: "/", Name: "session", Value: "abc123"},
		},
		{
			name: "host only",
			in:   playwright.Cookie{Name: "id", Value: "1", Domain: "www.example.com", Path: "/app", Expires: 1893456000.5, Secure: true, HttpOnly: true},
			want: cookies.Cookie{Domain: "www.example.com", Path: "/app", Name: "id", Value: "1", Expiry: 1893456000, Secure: true, HTTPOnly: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromPlaywright(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}
}
