package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks password policy. It does not mutate input.
func (c Config) Validate(password string) error {
	// Count characters (runes), not bytes, to be user-friendly.
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if c.Policy.RequireUpper && !strings.ContainsFunc(password, unicode.IsUpper) {
		return ErrMissingUpper
	}
	if c.Policy.RequireDigit && !strings.ContainsFunc(password, unicode.IsDigit) {
		return ErrMissingDigit
	}

	if c.Policy.RejectVeryWeak {
		if looksVeryWeak(password) {
			return ErrWeakPassword
		}
	}

	return nil
}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {}, "iloveyou": {},
	"letmein": {}, "admin123": {}, "welcome1": {},
}

// looksVeryWeak rejects common passwords, a single repeated character, a
// strictly ascending run ("abcdefgh", "12345678") and short all-digit PINs.
func looksVeryWeak(pw string) bool {
	s := strings.ToLower(strings.TrimSpace(pw))
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[s]; ok {
		return true
	}

	runes := []rune(s)
	same, ascending, digits := true, true, true
	for i, r := range runes {
		if !unicode.IsDigit(r) {
			digits = false
		}
		if i == 0 {
			continue
		}
		if r != runes[0] {
			same = false
		}
		if r != runes[i-1]+1 {
			ascending = false
		}
	}
	return same || (ascending && len(runes) > 1) || (digits && len(runes) < 12)
}

// IsPolicyViolation reports whether err came from Validate.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrMissingUpper) ||
		errors.Is(err, ErrMissingDigit)
}
