package adapters

import (
	"fmt"
	"regexp"
	"strings"
)

// GlobToRegexp compiles a DeleteMatched pattern into an anchored regexp.
//
// Behavior:
//   - "*" matches any sequence of characters, "/" included
//   - "?" matches exactly one character
//   - every other character matches itself
func GlobToRegexp(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// GlobToLike converts a DeleteMatched pattern into a SQL LIKE pattern using
// '\' as the escape character.
func GlobToLike(pattern string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// GlobToRedis escapes a DeleteMatched pattern for the Redis SCAN MATCH
// syntax, where '[' and '\' are special.
func GlobToRedis(pattern string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}
