package session

import (
	"os"
	"strings"
	"time"
)

// MinJWTSecretBytes is the minimum HS256 signing key size.
const MinJWTSecretBytes = 32

// Config defines all runtime configuration for the session subsystem.
//
// It is built once at startup and injected; nothing here reads the
// environment after LoadConfigFromEnv returns.
type Config struct {
	// Issuer is the value set in the "iss" claim of every token.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of refresh tokens and of the session row.
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during access token validation.
	ClockSkew time.Duration

	// JWTSecret is the HS256 signing key.
	JWTSecret []byte
}

// DefaultConfig returns defaults suitable for development. JWTSecret is left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:          "ava",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
	}
}

// Validate checks the invariants every constructor relies on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return ErrConfig
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.ClockSkew < 0 {
		return ErrConfig
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		return ErrConfig
	}
	if len(c.JWTSecret) < MinJWTSecretBytes {
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - AVA_JWT_SECRET (at least 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - AVA_AUTH_ISSUER
//   - AVA_AUTH_ACCESS_TTL
//   - AVA_AUTH_REFRESH_TTL
//   - AVA_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("AVA_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("AVA_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("AVA_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("AVA_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.JWTSecret = []byte(strings.TrimSpace(os.Getenv("AVA_JWT_SECRET")))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
