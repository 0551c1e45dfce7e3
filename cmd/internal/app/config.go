package app

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"ava/cmd/identity"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32
	// DBApplySchema creates missing tables at startup.
	DBApplySchema bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, AVA_TOKEN_HMAC_KEY must be set (>= 32 bytes) and refresh-token
	// digests are HMAC-based.
	RequireTokenHMAC bool

	JanitorInterval time.Duration

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("AVA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("AVA_LOG_LEVEL", "info"),
		LogFormat: EnvString("AVA_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("AVA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AVA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AVA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AVA_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("AVA_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("AVA_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("AVA_DATABASE_URL", ""),
		DBSchema:      EnvString("AVA_DB_SCHEMA", identity.DefaultSchema),
		DBMaxConns:    EnvInt32("AVA_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("AVA_DB_MIN_CONNS", 0),
		DBApplySchema: EnvBool("AVA_DB_APPLY_SCHEMA", true),

		ReadinessRequireDB: EnvBool("AVA_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("AVA_REQUIRE_TOKEN_HMAC", false),

		JanitorInterval: EnvDuration("AVA_JANITOR_INTERVAL", 10*time.Minute),

		CORSAllowedOrigins:   EnvList("AVA_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("AVA_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("AVA_CORS_MAX_AGE_SECONDS", 600),
	}
}

// LoadDotEnv loads variables from the given files (".env" when none are given)
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
