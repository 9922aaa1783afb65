package cookies

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/entrhq/siphon/pkg/types"
)

const (
	// Header is the first line of every jar; the downloader refuses files without it.
	Header = "# Netscape HTTP Cookie File"

	subdomainFlag = "TRUE"
	fieldCount    = 7
)

// Serialize renders cookies as a Netscape cookie jar: the header line then
// one line per record in input order.
func Serialize(list []Cookie) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, c := range list {
		b.WriteString(formatLine(c))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatLine(c Cookie) string {
	return strings.Join([]string{
		c.Domain,
		subdomainFlag,
		c.Path,
		boolLiteral(c.Secure),
		strconv.FormatInt(c.Expiry, 10),
		c.Name,
		c.Value,
	}, "\t")
}

func boolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Parse reads a Netscape cookie jar. Blank lines and comments are skipped,
// except the #HttpOnly_ prefix which marks the cookie HTTP-only.
// Any malformed line fails the whole parse.
func Parse(r io.Reader) ([]Cookie, error) {
	var list []Cookie

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, "#HttpOnly_") {
			httpOnly = true
			line = strings.TrimPrefix(line, "#HttpOnly_")
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != fieldCount {
			return nil, types.Errorf(types.KindInvalidInput, "parse cookie jar", "line %d: expected %d fields, got %d", lineNo, fieldCount, len(fields))
		}
		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, types.Errorf(types.KindInvalidInput, "parse cookie jar", "line %d: invalid expiry %q", lineNo, fields[4])
		}

		c := Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Expiry:   expiry,
			Name:     fields[5],
			Value:    fields[6],
			HTTPOnly: httpOnly,
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.NewError(types.KindIO, "parse cookie jar", err)
	}
	return list, nil
}
