package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"AVA_HTTP_ADDR", "AVA_DB_SCHEMA", "AVA_JANITOR_INTERVAL", "AVA_DB_APPLY_SCHEMA", "AVA_CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.DBSchema != "ava" || !cfg.DBApplySchema {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.JanitorInterval != 10*time.Minute {
		t.Fatalf("janitor interval=%v", cfg.JanitorInterval)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("AVA_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("AVA_DB_MAX_CONNS", "25")
	t.Setenv("AVA_DB_MIN_CONNS", "-1")
	t.Setenv("AVA_JANITOR_INTERVAL", "30s")
	t.Setenv("AVA_HTTP_READ_TIMEOUT", "nonsense")
	t.Setenv("AVA_CORS_ALLOWED_ORIGINS", " https://a.example , ,http://localhost:* ")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.DBMaxConns != 25 || cfg.DBMinConns != 0 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.JanitorInterval != 30*time.Second || cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("durations: janitor=%v read=%v", cfg.JanitorInterval, cfg.ReadTimeout)
	}
	want := []string{"https://a.example", "http://localhost:*"}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, want) {
		t.Fatalf("origins=%v want %v", cfg.CORSAllowedOrigins, want)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("AVA_DOTENV_LOADED=from-file\nAVA_DOTENV_KEEP=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("AVA_DOTENV_KEEP", "from-env")
	t.Setenv("AVA_DOTENV_LOADED", "")
	os.Unsetenv("AVA_DOTENV_LOADED")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("AVA_DOTENV_LOADED"); got != "from-file" {
		t.Fatalf("loaded=%q", got)
	}
	if got := os.Getenv("AVA_DOTENV_KEEP"); got != "from-env" {
		t.Fatalf("existing variables must win, got %q", got)
	}
}
