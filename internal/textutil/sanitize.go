package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const unknownToken = "unknown"

// SanitizeFileName makes name safe for common filesystems. Path separators,
// colons and asterisks become dashes. Quotes, angle brackets, pipes, question
// marks and NUL are dropped.
func SanitizeFileName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|', 0:
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(mapped)
}

// SanitizeToken lowercases value and keeps ASCII letters, digits, dashes and
// underscores. Any other rune becomes an underscore. Empty results yield
// "unknown".
func SanitizeToken(value string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + 'a' - 'A'
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(value))
	if token := strings.Trim(mapped, "_-"); token != "" {
		return token
	}
	return unknownToken
}

// UnderscoreSpaces collapses each whitespace run into one underscore.
func UnderscoreSpaces(value string) string {
	return strings.Join(strings.Fields(value), "_")
}

// TitleCase turns tags such as "film_noir" into "Film Noir" for display.
func TitleCase(value string) string {
	words := strings.FieldsFunc(value, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '\t'
	})
	// Casers carry state, so each call gets its own.
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// Truncate shortens s to at most n runes, ending in "..." when it cuts.
func Truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	switch {
	case n <= 0 || len(runes) <= n:
		return string(runes)
	case n <= 3:
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
