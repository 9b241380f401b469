package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.Database.Driver != DatabaseDriverSQLite || cfg.Database.Path != defaultDatabasePath {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Database.Timeout != 5*time.Second {
		t.Fatalf("unexpected database timeout %s", cfg.Database.Timeout)
	}
	if cfg.Identity.TrustedHeader != "CF-Connecting-IP" || !cfg.Identity.TrustForwardedFor || cfg.Identity.CookieSecure {
		t.Fatalf("unexpected identity config %+v", cfg.Identity)
	}
	if cfg.RateLimit.Store != RateLimitStoreMemory {
		t.Fatalf("unexpected rate limit store %q", cfg.RateLimit.Store)
	}
	expectedLimits := map[string][2]any{
		"post":    {cfg.RateLimit.Post, RateLimit{Limit: 2, Window: 5 * time.Minute}},
		"comment": {cfg.RateLimit.Comment, RateLimit{Limit: 2, Window: time.Minute}},
		"like":    {cfg.RateLimit.Like, RateLimit{Limit: 3, Window: time.Minute}},
	}
	for class, pair := range expectedLimits {
		if pair[0] != pair[1] {
			t.Fatalf("unexpected %s limit: got %+v want %+v", class, pair[0], pair[1])
		}
	}
	if cfg.Assistant.APIKey != "" || cfg.Assistant.Model != "gemini-2.0-flash-lite" {
		t.Fatalf("unexpected assistant config %+v", cfg.Assistant)
	}
	if cfg.Feed.DefaultLimit != 100 || cfg.Feed.MaxLimit != 500 {
		t.Fatalf("unexpected feed config %+v", cfg.Feed)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected no allowed origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ATLACATL_HTTP_ADDRESS", "127.0.0.1:9999")
	t.Setenv("ATLACATL_DATABASE_DRIVER", "Postgres")
	t.Setenv("ATLACATL_DATABASE_DSN", "postgres://atlacatl@localhost/atlacatl")
	t.Setenv("ATLACATL_RATELIMIT_STORE", "redis")
	t.Setenv("ATLACATL_RATELIMIT_LIKE_LIMIT", "10")
	t.Setenv("ATLACATL_RATELIMIT_LIKE_WINDOW", "90s")
	t.Setenv("ATLACATL_IDENTITY_TRUST_FORWARDED_FOR", "false")
	t.Setenv("ATLACATL_IDENTITY_COOKIE_SECURE", "true")
	t.Setenv("ATLACATL_CORS_ALLOWED_ORIGINS", "https://atlacatl.net, https://www.atlacatl.net")
	t.Setenv("ATLACATL_ASSISTANT_API_KEY", " key ")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9999" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.Database.Driver != DatabaseDriverPostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	if cfg.RateLimit.Store != RateLimitStoreRedis {
		t.Fatalf("expected redis store, got %q", cfg.RateLimit.Store)
	}
	if cfg.RateLimit.Like != (RateLimit{Limit: 10, Window: 90 * time.Second}) {
		t.Fatalf("unexpected like limit %+v", cfg.RateLimit.Like)
	}
	if cfg.Identity.TrustForwardedFor || !cfg.Identity.CookieSecure {
		t.Fatalf("unexpected identity config %+v", cfg.Identity)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://atlacatl.net|https://www.atlacatl.net" {
		t.Fatalf("unexpected allowed origins %v", cfg.AllowedOrigins)
	}
	if cfg.Assistant.APIKey != "key" {
		t.Fatalf("expected trimmed api key, got %q", cfg.Assistant.APIKey)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := map[string]map[string]string{
		"unknown driver":          {"ATLACATL_DATABASE_DRIVER": "mysql"},
		"postgres without dsn":    {"ATLACATL_DATABASE_DRIVER": "postgres"},
		"empty sqlite path":       {"ATLACATL_DATABASE_PATH": " "},
		"unknown store":           {"ATLACATL_RATELIMIT_STORE": "memcached"},
		"zero post limit":         {"ATLACATL_RATELIMIT_POST_LIMIT": "0"},
		"zero comment window":     {"ATLACATL_RATELIMIT_COMMENT_WINDOW": "0s"},
		"default above max limit": {"ATLACATL_FEED_DEFAULT_LIMIT": "600"},
	}
	for name, env := range testCases {
		t.Run(name, func(t *testing.T) {
			for key, value := range env {
				t.Setenv(key, value)
			}
			if _, err := Load(NewViper()); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, ".env")
	if err := os.WriteFile(path, []byte("ATLACATL_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("ATLACATL_LOG_LEVEL", "")
	os.Unsetenv("ATLACATL_LOG_LEVEL")

	if err := LoadEnvFile(path, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from env file, got %q", cfg.LogLevel)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.env")
	if err := LoadEnvFile(missing, false); err != nil {
		t.Fatalf("expected optional missing file to be ignored, got %v", err)
	}
	if err := LoadEnvFile(missing, true); err == nil {
		t.Fatalf("expected required missing file to fail")
	}
	if err := LoadEnvFile("", true); err != nil {
		t.Fatalf("expected empty path to be ignored, got %v", err)
	}
}
