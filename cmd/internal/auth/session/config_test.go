package session

import (
	"strings"
	"testing"
	"time"
)

var testSecret = strings.Repeat("s", MinJWTSecretBytes)

func TestLoadConfigFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("AVA_JWT_SECRET", "")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_ShortSecret(t *testing.T) {
	t.Setenv("AVA_JWT_SECRET", "too-short")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on short secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	t.Setenv("AVA_JWT_SECRET", testSecret)
	t.Setenv("AVA_AUTH_ACCESS_TTL", "-5m")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_RefreshShorterThanAccess(t *testing.T) {
	t.Setenv("AVA_JWT_SECRET", testSecret)
	t.Setenv("AVA_AUTH_ACCESS_TTL", "2h")
	t.Setenv("AVA_AUTH_REFRESH_TTL", "1h")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for ttl order, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("AVA_JWT_SECRET", testSecret)
	t.Setenv("AVA_AUTH_ISSUER", "ava-test")
	t.Setenv("AVA_AUTH_ACCESS_TTL", "10m")
	t.Setenv("AVA_AUTH_REFRESH_TTL", "48h")
	t.Setenv("AVA_AUTH_CLOCK_SKEW", "20s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Issuer != "ava-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 48*time.Hour {
		t.Fatalf("refresh ttl mismatch: %v", cfg.RefreshTokenTTL)
	}
	if cfg.ClockSkew != 20*time.Second {
		t.Fatalf("clock skew mismatch: %v", cfg.ClockSkew)
	}
	if string(cfg.JWTSecret) != testSecret {
		t.Fatalf("secret mismatch")
	}
}

func TestDefaultConfig_Lifetimes(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.AccessTokenTTL != 15*time.Minute || cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
