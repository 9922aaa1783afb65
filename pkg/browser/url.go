package browser

import (
	"net/url"
	"strings"

	"github.com/entrhq/siphon/pkg/types"
)

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, types.Errorf(types.KindInvalidInput, "validate url", "url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, types.NewError(types.KindInvalidInput, "validate url", err)
	}
	if !u.IsAbs() {
		return nil, types.Errorf(types.KindInvalidInput, "validate url", "%q is not an absolute url", raw)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return nil, types.Errorf(types.KindInvalidInput, "validate url", "unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, types.Errorf(types.KindInvalidInput, "validate url", "%q has no host", raw)
	}
	return u, nil
}
