package store

import "strings"

// PlaceholderID replaces ids that sanitize to nothing
const PlaceholderID = "page"

// Sanitize maps a caller-supplied id to a directory-safe id: ASCII letters,
// digits, '-' and '_' are kept, every other character (not byte) becomes '_'.
// Sanitize is idempotent.
func Sanitize(id string) string {
	if id == "" {
		return PlaceholderID
	}
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if isIDChar(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IsSanitized reports whether id is already in sanitized form.
func IsSanitized(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !isIDChar(r) {
			return false
		}
	}
	return true
}

func isIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}
