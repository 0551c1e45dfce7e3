package password

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptMaxSecret is bcrypt's input limit in bytes.
const bcryptMaxSecret = 72

// Bcrypt hashes secrets with bcrypt. It also verifies hashes written by the
// previous bcrypt-based deployment ($2a$, $2b$, $2y$).
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(secret string) (string, error) {
	if len(secret) > bcryptMaxSecret {
		return "", ErrSecretTooLong
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("bcrypt: cost %d out of range [%d..%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

func (b Bcrypt) Compare(secret, encoded string) bool {
	if !isBcrypt(encoded) {
		return false
	}
	// Cost is part of the hash; refuse pathological values before doing the work.
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil || cost > maxVerifyBcryptCost {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret)) == nil
}

const maxVerifyBcryptCost = 16

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
