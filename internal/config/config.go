package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "ATLACATL"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = DatabaseDriverSQLite
	defaultDatabasePath    = "atlacatl.db"
	defaultDatabaseTimeout = 5 * time.Second
	defaultLogLevel        = "info"
	defaultTrustedHeader   = "CF-Connecting-IP"
	defaultRateLimitStore  = RateLimitStoreMemory
	defaultRedisAddress    = "localhost:6379"
	defaultAssistantURL    = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultAssistantModel  = "gemini-2.0-flash-lite"
	defaultAssistantWait   = 20 * time.Second
	defaultFeedLimit       = 100
	defaultFeedMaxLimit    = 500

	// DatabaseDriverSQLite selects the embedded SQLite store.
	DatabaseDriverSQLite = "sqlite"
	// DatabaseDriverPostgres selects PostgreSQL.
	DatabaseDriverPostgres = "postgres"
	// RateLimitStoreMemory keeps abuse counters in process.
	RateLimitStoreMemory = "memory"
	// RateLimitStoreRedis shares abuse counters through Redis.
	RateLimitStoreRedis = "redis"
)

// RateLimit is the ceiling of one endpoint class.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// DatabaseConfig selects and tunes the persistent store.
type DatabaseConfig struct {
	Driver  string
	Path    string
	DSN     string
	Timeout time.Duration
}

// IdentityConfig controls client address and device cookie resolution.
type IdentityConfig struct {
	TrustedHeader     string
	TrustForwardedFor bool
	CookieSecure      bool
}

// RateLimitConfig holds the abuse guard settings.
type RateLimitConfig struct {
	Store   string
	Post    RateLimit
	Comment RateLimit
	Like    RateLimit
}

// RedisConfig addresses the shared counter store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// AssistantConfig describes the OpenAI-compatible reply provider. An empty APIKey disables it.
type AssistantConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// FeedConfig bounds feed page sizes.
type FeedConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	Database       DatabaseConfig
	LogLevel       string
	LogFile        string
	Identity       IdentityConfig
	RateLimit      RateLimitConfig
	Redis          RedisConfig
	Assistant      AssistantConfig
	AllowedOrigins []string
	Feed           FeedConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("database.timeout", defaultDatabaseTimeout)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("identity.trusted_header", defaultTrustedHeader)
	configViper.SetDefault("identity.trust_forwarded_for", true)
	configViper.SetDefault("identity.cookie_secure", false)
	configViper.SetDefault("ratelimit.store", defaultRateLimitStore)
	configViper.SetDefault("ratelimit.post.limit", 2)
	configViper.SetDefault("ratelimit.post.window", 5*time.Minute)
	configViper.SetDefault("ratelimit.comment.limit", 2)
	configViper.SetDefault("ratelimit.comment.window", time.Minute)
	configViper.SetDefault("ratelimit.like.limit", 3)
	configViper.SetDefault("ratelimit.like.window", time.Minute)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("redis.password", "")
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("assistant.api_key", "")
	configViper.SetDefault("assistant.base_url", defaultAssistantURL)
	configViper.SetDefault("assistant.model", defaultAssistantModel)
	configViper.SetDefault("assistant.timeout", defaultAssistantWait)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("feed.default_limit", defaultFeedLimit)
	configViper.SetDefault("feed.max_limit", defaultFeedMaxLimit)
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process environment
// without overriding variables that are already set. A missing optional file is ignored.
func LoadEnvFile(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress: configViper.GetString("http.address"),
		Database: DatabaseConfig{
			Driver:  strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
			Path:    configViper.GetString("database.path"),
			DSN:     configViper.GetString("database.dsn"),
			Timeout: configViper.GetDuration("database.timeout"),
		},
		LogLevel: configViper.GetString("log.level"),
		LogFile:  configViper.GetString("log.file"),
		Identity: IdentityConfig{
			TrustedHeader:     configViper.GetString("identity.trusted_header"),
			TrustForwardedFor: configViper.GetBool("identity.trust_forwarded_for"),
			CookieSecure:      configViper.GetBool("identity.cookie_secure"),
		},
		RateLimit: RateLimitConfig{
			Store:   strings.ToLower(strings.TrimSpace(configViper.GetString("ratelimit.store"))),
			Post:    loadRateLimit(configViper, "post"),
			Comment: loadRateLimit(configViper, "comment"),
			Like:    loadRateLimit(configViper, "like"),
		},
		Redis: RedisConfig{
			Address:  configViper.GetString("redis.address"),
			Password: configViper.GetString("redis.password"),
			DB:       configViper.GetInt("redis.db"),
		},
		Assistant: AssistantConfig{
			APIKey:  strings.TrimSpace(configViper.GetString("assistant.api_key")),
			BaseURL: configViper.GetString("assistant.base_url"),
			Model:   configViper.GetString("assistant.model"),
			Timeout: configViper.GetDuration("assistant.timeout"),
		},
		AllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		Feed: FeedConfig{
			DefaultLimit: configViper.GetInt("feed.default_limit"),
			MaxLimit:     configViper.GetInt("feed.max_limit"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func loadRateLimit(configViper *viper.Viper, class string) RateLimit {
	return RateLimit{
		Limit:  configViper.GetInt("ratelimit." + class + ".limit"),
		Window: configViper.GetDuration("ratelimit." + class + ".window"),
	}
}

// splitList accepts both list values and a single comma-separated string.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

func (c AppConfig) validate() error {
	switch c.Database.Driver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DatabaseDriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DatabaseDriverSQLite, DatabaseDriverPostgres, c.Database.Driver)
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database.timeout must be positive")
	}

	switch c.RateLimit.Store {
	case RateLimitStoreMemory:
	case RateLimitStoreRedis:
		if strings.TrimSpace(c.Redis.Address) == "" {
			return fmt.Errorf("redis.address is required for the redis rate limit store")
		}
	default:
		return fmt.Errorf("ratelimit.store must be %q or %q, got %q", RateLimitStoreMemory, RateLimitStoreRedis, c.RateLimit.Store)
	}
	for class, limit := range map[string]RateLimit{
		"post":    c.RateLimit.Post,
		"comment": c.RateLimit.Comment,
		"like":    c.RateLimit.Like,
	} {
		if limit.Limit <= 0 || limit.Window <= 0 {
			return fmt.Errorf("ratelimit.%s requires a positive limit and window", class)
		}
	}

	if c.Feed.DefaultLimit <= 0 || c.Feed.MaxLimit <= 0 {
		return fmt.Errorf("feed limits must be positive")
	}
	if c.Feed.DefaultLimit > c.Feed.MaxLimit {
		return fmt.Errorf("feed.default_limit cannot exceed feed.max_limit")
	}
	if c.Assistant.APIKey != "" && c.Assistant.Timeout <= 0 {
		return fmt.Errorf("assistant.timeout must be positive")
	}
	return nil
}
