package download

import (
	"bytes"
	"regexp"
	"strconv"
)

const (
	// maxLineLength bounds how much of an unterminated line is buffered.
	maxLineLength = 64 * 1024

	// tokenTail is kept when an overlong line is trimmed, enough to hold a
	// percent token that is still being written.
	tokenTail = 32
)

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// LineBuffer reassembles output lines across reads. Both '\n' and '\r'
// terminate a line, so carriage-return progress redraws are split too.
type LineBuffer struct {
	partial []byte
}

// Write appends p and returns every line it completed, without terminators.
// Empty lines are skipped.
func (b *LineBuffer) Write(p []byte) []string {
	var lines []string
	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")
		if i < 0 {
			b.partial = append(b.partial, p...)
			if len(b.partial) >= maxLineLength {
				lines = b.trim(lines)
			}
			break
		}
		b.partial = append(b.partial, p[:i]...)
		lines = appendLine(lines, b.partial)
		b.partial = b.partial[:0]
		p = p[i+1:]
	}
	return lines
}

// trim shortens an overlong partial line without cutting a token in two.
// Everything up to the last '%' is emitted as a line, since no token can
// continue past it; without a '%' only the tail is kept.
func (b *LineBuffer) trim(lines []string) []string {
	cut := bytes.LastIndexByte(b.partial, '%') + 1
	if cut > 0 {
		lines = appendLine(lines, b.partial[:cut])
	}
	rest := b.partial[cut:]
	if len(rest) > tokenTail {
		rest = rest[len(rest)-tokenTail:]
	}
	b.partial = append(b.partial[:0], rest...)
	return lines
}

// Flush returns the trailing unterminated line, if any.
func (b *LineBuffer) Flush() (string, bool) {
	if len(b.partial) == 0 {
		return "", false
	}
	line := string(b.partial)
	b.partial = b.partial[:0]
	return line, true
}

func appendLine(lines []string, line []byte) []string {
	if len(line) == 0 {
		return lines
	}
	return append(lines, string(line))
}

// ParsePercents returns every "<number>%" token in line, clamped to [0, 100].
func ParsePercents(line string) []float64 {
	matches := percentPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		out = append(out, clampPercent(v))
	}
	return out
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
