package password

import (
	"fmt"
	"strings"
)

// Hasher produces and checks encoded one-way hashes of secrets.
// It is used for passwords and for recovery codes.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(secret, encoded string) bool
}

// Supported algorithm names.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Multi hashes with the configured algorithm and verifies any supported one,
// dispatching on the encoded prefix.
type Multi struct {
	primary Hasher
	argon   Argon2id
	bcrypt  Bcrypt
}

// NewHasher builds the process hasher from cfg.
func NewHasher(cfg Config) (*Multi, error) {
	m := &Multi{
		argon:  Argon2id{Params: cfg.Params},
		bcrypt: Bcrypt{Cost: cfg.BcryptCost},
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Algorithm)) {
	case "", AlgorithmArgon2id:
		m.primary = m.argon
	case AlgorithmBcrypt:
		m.primary = m.bcrypt
	default:
		return nil, fmt.Errorf("password: unsupported algorithm %q", cfg.Algorithm)
	}
	return m, nil
}

func (m *Multi) Hash(secret string) (string, error) {
	return m.primary.Hash(secret)
}

func (m *Multi) Compare(secret, encoded string) bool {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return m.argon.Compare(secret, encoded)
	case isBcrypt(encoded):
		return m.bcrypt.Compare(secret, encoded)
	default:
		return false
	}
}

var _ Hasher = (*Multi)(nil)
