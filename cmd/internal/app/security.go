package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"ava/cmd/internal/auth/session"
	"ava/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// It fails fast instead of falling back to weaker crypto, and checks the same
// loaders that later build the token hasher and the JWT signer.
func ValidateSecurityConfig(cfg Config) error {
	if n := len(strings.TrimSpace(os.Getenv("AVA_JWT_SECRET"))); n < session.MinJWTSecretBytes {
		return fmt.Errorf("security policy: AVA_JWT_SECRET must be at least %d bytes (got %d)", session.MinJWTSecretBytes, n)
	}

	if !cfg.RequireTokenHMAC {
		return nil
	}

	h, err := token.NewHasherFromEnv(true)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return errors.New("security policy: AVA_REQUIRE_TOKEN_HMAC=true but AVA_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return fmt.Errorf("security policy: AVA_REQUIRE_TOKEN_HMAC=true but AVA_TOKEN_HMAC_KEY is too short (min %d bytes)", token.MinHMACKeyBytes)
	case err != nil:
		return err
	}
	if !h.HMAC() {
		return errors.New("security policy: AVA_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return nil
}
