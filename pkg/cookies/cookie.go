package cookies

import (
	"strings"

	"github.com/entrhq/siphon/pkg/types"
)

// Cookie is a single harvested HTTP cookie. Values are treated as secrets:
// only Name and Domain are ever logged.
type Cookie struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Name   string `json:"name"`
	Value  string `json:"value"`

	// Expiry is seconds since the epoch; 0 means a session cookie.
	Expiry int64 `json:"expiry"`

	Secure bool `json:"secure"`

	// HTTPOnly is informational; jar lines do not carry it.
	HTTPOnly bool `json:"httpOnly"`
}

// IsSession reports whether the cookie expires with the browser session.
func (c Cookie) IsSession() bool {
	return c.Expiry == 0
}

// Validate rejects records the jar format cannot represent.
func (c Cookie) Validate() error {
	if c.Domain == "" {
		return types.Errorf(types.KindInvalidInput, "validate cookie", "cookie %q has empty domain", c.Name)
	}
	if c.Name == "" {
		return types.Errorf(types.KindInvalidInput, "validate cookie", "cookie on %s has empty name", c.Domain)
	}
	for _, field := range []string{c.Domain, c.Path, c.Name, c.Value} {
		if strings.ContainsAny(field, "\t\r\n") {
			return types.Errorf(types.KindInvalidInput, "validate cookie", "cookie %q on %s contains a control separator", c.Name, c.Domain)
		}
	}
	if c.Expiry < 0 {
		return types.Errorf(types.KindInvalidInput, "validate cookie", "cookie %q has negative expiry", c.Name)
	}
	return nil
}

// Names returns the cookie names in order, for logging.
func Names(list []Cookie) []string {
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = c.Name
	}
	return names
}
