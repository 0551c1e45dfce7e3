package recovery

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names for AVA_RECOVERY_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config is built once at startup and injected into Service.
type Config struct {
	// CodeTTL is how long a code can be confirmed.
	CodeTTL time.Duration

	// Retention keeps expired codes around so a late confirmation is still
	// answered as rejected rather than not found.
	Retention time.Duration

	Code CodeConfig

	// RequireDelivery makes RequestRecovery fail when the notifier fails.
	RequireDelivery bool

	Backend   string
	RedisAddr string
	RedisPass string
	RedisDB   int
}

func DefaultConfig() Config {
	return Config{
		CodeTTL:   5 * time.Minute,
		Retention: 24 * time.Hour,
		Code:      DefaultCodeConfig(),
		Backend:   BackendPostgres,
	}
}

func (c Config) Validate() error {
	if c.CodeTTL <= 0 || c.Retention < 0 {
		return fmt.Errorf("%w: ttl and retention", ErrConfig)
	}
	if err := c.Code.Validate(); err != nil {
		return err
	}
	switch c.Backend {
	case BackendPostgres, BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: AVA_REDIS_ADDR is required for the redis backend", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported backend %q", ErrConfig, c.Backend)
	}
	return nil
}

// LoadConfigFromEnv reads:
//   - AVA_RECOVERY_CODE_TTL, AVA_RECOVERY_RETENTION
//   - AVA_RECOVERY_CODE_LENGTH
//   - AVA_RECOVERY_CODE_UPPERCASE, AVA_RECOVERY_CODE_LOWERCASE,
//     AVA_RECOVERY_CODE_NUMBERS, AVA_RECOVERY_CODE_SYMBOLS,
//     AVA_RECOVERY_CODE_EXCLUDE_SIMILAR, AVA_RECOVERY_CODE_STRICT
//   - AVA_RECOVERY_REQUIRE_DELIVERY
//   - AVA_RECOVERY_BACKEND (postgres/redis/memory)
//   - AVA_REDIS_ADDR, AVA_REDIS_PASSWORD, AVA_REDIS_DB
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"AVA_RECOVERY_CODE_TTL", &cfg.CodeTTL},
		{"AVA_RECOVERY_RETENTION", &cfg.Retention},
	}
	for _, d := range durations {
		if v := strings.TrimSpace(os.Getenv(d.key)); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil || parsed < 0 {
				return Config{}, fmt.Errorf("%w: %s", ErrConfig, d.key)
			}
			*d.dst = parsed
		}
	}

	if v := strings.TrimSpace(os.Getenv("AVA_RECOVERY_CODE_LENGTH")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: AVA_RECOVERY_CODE_LENGTH", ErrConfig)
		}
		cfg.Code.Length = n
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{"AVA_RECOVERY_CODE_UPPERCASE", &cfg.Code.Uppercase},
		{"AVA_RECOVERY_CODE_LOWERCASE", &cfg.Code.Lowercase},
		{"AVA_RECOVERY_CODE_NUMBERS", &cfg.Code.Numbers},
		{"AVA_RECOVERY_CODE_SYMBOLS", &cfg.Code.Symbols},
		{"AVA_RECOVERY_CODE_EXCLUDE_SIMILAR", &cfg.Code.ExcludeSimilar},
		{"AVA_RECOVERY_CODE_STRICT", &cfg.Code.Strict},
		{"AVA_RECOVERY_REQUIRE_DELIVERY", &cfg.RequireDelivery},
	}
	for _, f := range flags {
		if v := strings.TrimSpace(os.Getenv(f.key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s", ErrConfig, f.key)
			}
			*f.dst = b
		}
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("AVA_RECOVERY_BACKEND"))); v != "" {
		cfg.Backend = v
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("AVA_REDIS_ADDR"))
	cfg.RedisPass = os.Getenv("AVA_REDIS_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("AVA_REDIS_DB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%w: AVA_REDIS_DB", ErrConfig)
		}
		cfg.RedisDB = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
