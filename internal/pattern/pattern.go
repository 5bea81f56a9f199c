package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyPattern is returned when compiling a blank pattern.
var ErrEmptyPattern = errors.New("empty pattern")

// Catalog patterns are stored in delimited form, "/body/flags", the format
// external crawler lists and the auto-learner both produce. Bare bodies are
// accepted and treated as case-insensitive.

// Compile converts a catalog pattern into a Go regexp.
// Supported flags: i, m, s (mapped to RE2) and u (no-op, Go is UTF-8 native).
// Any other flag, or a body RE2 cannot express (lookarounds, backreferences),
// returns an error.
func Compile(p string) (*regexp.Regexp, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return nil, ErrEmptyPattern
	}

	body, flags, delimited := Split(p)
	if !delimited {
		body, flags = p, "i"
	}
	if body == "" {
		return nil, ErrEmptyPattern
	}

	var goFlags strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(goFlags.String(), f) {
				goFlags.WriteRune(f)
			}
		case 'u':
		default:
			return nil, fmt.Errorf("Compile %q: unsupported flag %q", p, f)
		}
	}

	expr := body
	if goFlags.Len() > 0 {
		expr = "(?" + goFlags.String() + ")" + body
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("Compile %q: %w", p, err)
	}
	return re, nil
}

// Split breaks a delimited pattern into body and flags. delimited is false
// when p is not of the form "/body/flags".
func Split(p string) (body, flags string, delimited bool) {
	if len(p) < 2 || p[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndexByte(p, '/')
	if end == 0 {
		return "", "", false
	}
	flags = p[end+1:]
	for _, r := range flags {
		if r < 'a' || r > 'z' {
			if r < 'A' || r > 'Z' {
				return "", "", false
			}
		}
	}
	return p[1:end], flags, true
}

// Normalize returns the canonical stored form of p. Delimited patterns are
// returned trimmed; bare bodies become "/body/i" with unescaped slashes escaped.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if _, _, ok := Split(p); ok {
		return p
	}
	return "/" + escapeDelimiter(p) + "/i"
}

// Generate builds a case-insensitive literal pattern for a bot name.
// Generate("SimpleBot") == "/SimpleBot/i".
func Generate(name string) string {
	return "/" + escapeDelimiter(regexp.QuoteMeta(name)) + "/i"
}

// GenerateFromUserAgent extracts a bot name from ua and generates its
// pattern. It returns "" when no usable name can be extracted.
func GenerateFromUserAgent(ua string) string {
	name := ExtractBotName(ua)
	if name == "" {
		return ""
	}
	return Generate(name)
}

// escapeDelimiter escapes every '/' not already preceded by a backslash.
func escapeDelimiter(s string) string {
	if !strings.Contains(s, "/") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '/':
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
