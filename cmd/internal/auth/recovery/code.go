package recovery

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	numberChars  = "0123456789"
	symbolChars  = "!@#$%^&*()+_-=}{[]|:;\"/?.><,`~"
	similarChars = "ilLI|`oO0"

	maxCodeLength = 64

	// strictAttempts bounds the regeneration loop for strict codes.
	strictAttempts = 100
)

var errStrictExhausted = errors.New("recovery: could not satisfy strict code classes")

// CodeConfig describes the alphabet and length of recovery codes.
type CodeConfig struct {
	Length         int
	Uppercase      bool
	Lowercase      bool
	Numbers        bool
	Symbols        bool
	ExcludeSimilar bool

	// Strict requires at least one character from every enabled class.
	Strict bool
}

// DefaultCodeConfig: six characters of upper-case letters and digits without look-alikes.
func DefaultCodeConfig() CodeConfig {
	return CodeConfig{
		Length:         6,
		Uppercase:      true,
		Numbers:        true,
		ExcludeSimilar: true,
		Strict:         true,
	}
}

func (c CodeConfig) Validate() error {
	classes := c.classes()
	if len(classes) == 0 {
		return fmt.Errorf("%w: no code character class enabled", ErrConfig)
	}
	if c.Length <= 0 || c.Length > maxCodeLength {
		return fmt.Errorf("%w: code length must be in 1..%d", ErrConfig, maxCodeLength)
	}
	if c.Strict && c.Length < len(classes) {
		return fmt.Errorf("%w: strict code shorter than its class count", ErrConfig)
	}
	return nil
}

// Generate returns a random code drawn uniformly from the configured alphabet.
// A nil r uses crypto/rand.
func (c CodeConfig) Generate(r io.Reader) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if r == nil {
		r = rand.Reader
	}

	classes := c.classes()
	alphabet := strings.Join(classes, "")
	limit := big.NewInt(int64(len(alphabet)))

	for attempt := 0; attempt < strictAttempts; attempt++ {
		buf := make([]byte, c.Length)
		for i := range buf {
			n, err := rand.Int(r, limit)
			if err != nil {
				return "", err
			}
			buf[i] = alphabet[n.Int64()]
		}
		code := string(buf)
		if !c.Strict || coversAll(code, classes) {
			return code, nil
		}
	}
	return "", errStrictExhausted
}

// Normalize maps user input onto the generated alphabet.
func (c CodeConfig) Normalize(code string) string {
	code = strings.TrimSpace(code)
	if c.Uppercase && !c.Lowercase {
		code = strings.ToUpper(code)
	}
	return code
}

func (c CodeConfig) classes() []string {
	var out []string
	add := func(enabled bool, set string) {
		if !enabled {
			return
		}
		if c.ExcludeSimilar {
			set = strings.Map(func(r rune) rune {
				if strings.ContainsRune(similarChars, r) {
					return -1
				}
				return r
			}, set)
		}
		if set != "" {
			out = append(out, set)
		}
	}
	add(c.Uppercase, upperChars)
	add(c.Lowercase, lowerChars)
	add(c.Numbers, numberChars)
	add(c.Symbols, symbolChars)
	return out
}

func coversAll(code string, classes []string) bool {
	for _, set := range classes {
		if !strings.ContainsAny(code, set) {
			return false
		}
	}
	return true
}
