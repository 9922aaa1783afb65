package download

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineBuffer(t *testing.T) {
	var b LineBuffer

	assert.Empty(t, b.Write([]byte("[download]  12")))
	assert.Equal(t, []string{"[download]  12.5% at 1.00MiB/s"}, b.Write([]byte(".5% at 1.00MiB/s\n[dow")))
	assert.Equal(t, []string{"[download] 50.0%"}, b.Write([]byte("nload] 50.0%\r")))
	assert.Equal(t, []string{"a", "b"}, b.Write([]byte("\r\na\r\n\nb\n")))
	assert.Empty(t, b.Write([]byte("[download] 100%")))

	line, ok := b.Flush()
	assert.True(t, ok)
	assert.Equal(t, "[download] 100%", line)

	_, ok = b.Flush()
	assert.False(t, ok)
}

func TestLineBufferBoundsPartialLine(t *testing.T) {
	var b LineBuffer
	long := []byte(strings.Repeat("x", maxLineLength))

	assert.Empty(t, b.Write(long))
	line, ok := b.Flush()
	assert.True(t, ok)
	assert.Len(t, line, tokenTail, "only the tail of an overlong line is kept")
}

func TestLineBufferKeepsTokenAcrossTrim(t *testing.T) {
	var b LineBuffer
	head := "[download] 7.0% " + strings.Repeat("x", maxLineLength) + " 12."

	lines := b.Write([]byte(head))
	require.Len(t, lines, 1)
	assert.Equal(t, []float64{7}, ParsePercents(lines[0]))

	lines = b.Write([]byte("5% at 1.00MiB/s\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, []float64{12.5}, ParsePercents(lines[0]))
}

func TestParsePercents(t *testing.T) {
	tests := []struct {
		line string
		want []float64
	}{
		{"[download]  12.5% at 1.00MiB/s", []float64{12.5}},
		{"[download] 100% at 3.00MiB/s", []float64{100}},
		{"[download] 150.0%", []float64{100}},
		{"video 1% audio 2.25%", []float64{1, 2.25}},
		{"[info] Downloading webpage", nil},
		{"% alone", nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePercents(tt.line))
		})
	}
}

func TestBuildArgs(t *testing.T) {
	out := filepath.Join("tmp", "out")

	got := BuildArgs(Config{}, "https://host/video", out, "")
	want := []string{
		"https://host/video",
		"--format", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(out, "%(title)s.%(ext)s"),
		"--no-warnings",
		"--newline",
		"--progress-template", "[download] %(progress._percent_str)s at %(progress._speed_str)s",
	}
	assert.Equal(t, want, got)
	assert.Equal(t, got, BuildArgs(Config{}, "https://host/video", out, ""), "args must be deterministic")

	withCookies := BuildArgs(Config{Format: "best", MergeFormat: "mkv"}, "https://host/video", out, "/jar.txt")
	assert.Equal(t, []string{"--cookies", "/jar.txt"}, withCookies[len(withCookies)-2:])
	assert.Contains(t, withCookies, "best")
	assert.Contains(t, withCookies, "mkv")
}
