package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength    int
	MaxLength    int
	RequireUpper bool
	RequireDigit bool
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	// Algorithm used for new hashes: "argon2id" (default) or "bcrypt".
	Algorithm  string
	Params     Argon2idParams
	BcryptCost int
	Policy     Policy
}

// DefaultConfig returns a strong baseline suitable for a messaging system.
// Values can be overridden via env.
func DefaultConfig() Config {
	// CPU-aware parallelism, clamped to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Algorithm: AlgorithmArgon2id,
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above
			SaltLength:  16,
			KeyLength:   32,
		},
		BcryptCost: 12,
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RequireUpper:   true,
			RequireDigit:   true,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
//   - AVA_PASSWORD_ALGORITHM (argon2id/bcrypt)
//   - AVA_PASSWORD_MIN_LEN, AVA_PASSWORD_MAX_LEN
//   - AVA_PASSWORD_REQUIRE_UPPER, AVA_PASSWORD_REQUIRE_DIGIT, AVA_PASSWORD_REJECT_VERY_WEAK
//   - AVA_BCRYPT_COST
//   - AVA_ARGON2_MEMORY_KIB, AVA_ARGON2_ITERATIONS, AVA_ARGON2_PARALLELISM,
//     AVA_ARGON2_SALT_LEN, AVA_ARGON2_KEY_LEN
//
// Unset variables keep their defaults; a set but invalid value is an error
// naming the variable.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	vars := []struct {
		key string
		set func(string) error
	}{
		{"AVA_PASSWORD_ALGORITHM", func(v string) error {
			switch a := strings.ToLower(v); a {
			case AlgorithmArgon2id, AlgorithmBcrypt:
				cfg.Algorithm = a
				return nil
			default:
				return fmt.Errorf("unsupported %q", v)
			}
		}},
		{"AVA_PASSWORD_MIN_LEN", intVar(&cfg.Policy.MinLength, 1, 1024)},
		{"AVA_PASSWORD_MAX_LEN", intVar(&cfg.Policy.MaxLength, 1, 4096)},
		{"AVA_PASSWORD_REQUIRE_UPPER", boolVar(&cfg.Policy.RequireUpper)},
		{"AVA_PASSWORD_REQUIRE_DIGIT", boolVar(&cfg.Policy.RequireDigit)},
		{"AVA_PASSWORD_REJECT_VERY_WEAK", boolVar(&cfg.Policy.RejectVeryWeak)},
		{"AVA_BCRYPT_COST", intVar(&cfg.BcryptCost, 4, 16)},
		{"AVA_ARGON2_MEMORY_KIB", uint32Var(&cfg.Params.MemoryKiB, 8*1024, 1024*1024)},
		{"AVA_ARGON2_ITERATIONS", uint32Var(&cfg.Params.Iterations, 1, 20)},
		{"AVA_ARGON2_PARALLELISM", func(v string) error {
			var u uint32
			if err := uint32Var(&u, 1, 64)(v); err != nil {
				return err
			}
			cfg.Params.Parallelism = uint8(u) // #nosec G115 -- bounded to [1..64] above.
			return nil
		}},
		{"AVA_ARGON2_SALT_LEN", uint32Var(&cfg.Params.SaltLength, 8, 64)},
		{"AVA_ARGON2_KEY_LEN", uint32Var(&cfg.Params.KeyLength, 16, 64)},
	}

	for _, ev := range vars {
		v, ok := os.LookupEnv(ev.key)
		if !ok {
			continue
		}
		if err := ev.set(strings.TrimSpace(v)); err != nil {
			return Config{}, fmt.Errorf("%s: %w", ev.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)", cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func intVar(dst *int, minVal, maxVal int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not an integer")
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
		}
		*dst = n
		return nil
	}
}

func uint32Var(dst *uint32, minVal, maxVal uint32) func(string) error {
	return func(s string) error {
		u, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return fmt.Errorf("not an unsigned integer")
		}
		if uint32(u) < minVal || uint32(u) > maxVal {
			return fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
		}
		*dst = uint32(u)
		return nil
	}
}

func boolVar(dst *bool) func(string) error {
	return func(s string) error {
		switch strings.ToLower(s) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			return fmt.Errorf("invalid boolean")
		}
		return nil
	}
}
