package identity

import (
	"net/mail"
	"strings"
)

const (
	MinLoginLen = 2
	MaxLoginLen = 50
	MaxEmailLen = 254

	minTelDigits = 7
	maxTelDigits = 15
)

// ValidLogin reports whether s is 2..50 ASCII letters or digits.
func ValidLogin(s string) bool {
	if len(s) < MinLoginLen || len(s) > MaxLoginLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// ValidEmail reports whether s is a bare addr-spec: no display name, no angle
// brackets, no whitespace or control characters, and a dotted domain.
func ValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLen {
		return false
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// ValidTel reports whether s, already passed through NormalizeTel, is an
// optional "+" followed by 7..15 digits.
func ValidTel(s string) bool {
	digits := strings.TrimPrefix(s, "+")
	if len(digits) < minTelDigits || len(digits) > maxTelDigits {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	return true
}
