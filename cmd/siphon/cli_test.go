package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/siphon/pkg/types"
)

func TestSpeedOf(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"[download]  42.0% of 10.00MiB at 1.23MiB/s ETA 00:05", "1.23MiB/s ETA 00:05"},
		{"[download] 100% at 900KiB/s", "900KiB/s"},
		{"[download] 12.5%", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, speedOf(tt.line))
		})
	}
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "example.com/watch", shortName("https://example.com/watch"))
	assert.Equal(t, "host/v", shortName("http://host/v"))

	long := shortName("https://www.example.com/watch?v=abcdefghijklmnopqrstuvwxyz")
	assert.Len(t, []rune(long), maxNameWidth)
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestRenderSummary(t *testing.T) {
	out := renderSummary([]jobOutcome{
		{URL: "https://example.com/a", Status: "succeeded", Cookies: 3, Duration: 2400 * time.Millisecond},
		{URL: "https://example.com/b", Status: "failed", Err: errors.New("exit status 1")},
		{URL: "https://example.com/c", Status: "cancelled"},
	})

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "URL")
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "example.com/a")
	assert.Contains(t, lines[1], "succeeded")
	assert.Contains(t, lines[1], "2s")
	assert.Contains(t, lines[2], "exit status 1")
	assert.Contains(t, lines[3], "cancelled")
}

func TestShouldFetch(t *testing.T) {
	tests := []struct {
		name        string
		cookiesFile string
		noCookies   bool
		want        bool
	}{
		{"default", "", false, true},
		{"saved jar", "jar.txt", false, false},
		{"no cookies", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldFetch(tt.cookiesFile, tt.noCookies))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(types.Errorf(types.KindInvalidInput, "download", "a url is required")))
	assert.Equal(t, 130, exitCode(fmt.Errorf("wrapped: %w", types.NewError(types.KindCancelled, "fetch", nil))))
	assert.Equal(t, 1, exitCode(types.ProcessExitError(3, "boom")))
	assert.Equal(t, 1, exitCode(errors.New("plain")))
}
