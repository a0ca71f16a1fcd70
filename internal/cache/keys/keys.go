// Package keys derives cache keys from resolved upstream URLs. The key is a
// pure function of the URL text: byte-identical URLs map to the same key and
// nothing else is normalized away.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// ForURL builds the cache key for a resolved upstream URL. The sanitized
// prefix keeps keys readable when inspecting the store; uniqueness comes
// from the hash of the full URL text.
func ForURL(rawURL string) string {
	safe := sanitizeForKey(rawURL)

	const maxURLTextLen = 160
	if len(safe) > maxURLTextLen {
		safe = safe[:maxURLTextLen]
	}

	sum := xxhash.Sum64String(rawURL)

	return fmt.Sprintf("arcproxy:url=%s:u=%016x", safe, sum)
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-' || r == '=':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
