package cookies

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter keeps cookies whose domain matches one of a set of glob patterns.
// Patterns are matched against the domain without its leading dot, using
// '.' as the separator, so "*.example.com" matches "www.example.com" but not
// "example.com".
type Filter struct {
	patterns []string
	globs    []glob.Glob
}

// NewFilter compiles patterns. An empty pattern list keeps every cookie.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(strings.TrimPrefix(p, "."), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid cookie domain pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Empty reports whether the filter keeps everything.
func (f *Filter) Empty() bool {
	return f == nil || len(f.globs) == 0
}

// Match reports whether domain matches any pattern.
func (f *Filter) Match(domain string) bool {
	if f.Empty() {
		return true
	}
	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	for _, g := range f.globs {
		if g.Match(d) {
			return true
		}
	}
	return false
}

// Apply returns the matching cookies in their original order.
func (f *Filter) Apply(list []Cookie) []Cookie {
	if f.Empty() {
		return list
	}
	kept := make([]Cookie, 0, len(list))
	for _, c := range list {
		if f.Match(c.Domain) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Patterns returns the normalized patterns.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.patterns...)
}
