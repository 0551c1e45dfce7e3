package identity

import "strings"

// NormalizeLogin performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case.
func NormalizeLogin(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeTel strips spaces, dashes and parentheses so "+7 (900) 000-00-00"
// and "+79000000000" collide on the unique key.
func NormalizeTel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(s) {
		switch r {
		case ' ', '-', '(', ')', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
