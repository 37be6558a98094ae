package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv string `mapstructure:"APP_ENV"`
	Port   string `mapstructure:"PORT"`

	DBDriver       string `mapstructure:"DB_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns int    `mapstructure:"DB_MAX_IDLE_CONNS"`

	// empty disables token checks on /messages and /ws
	JWTSecret   string `mapstructure:"JWT_SECRET_KEY"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	// runtime tunables
	RateLimitWindowSeconds int `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`
	RateLimitCapacity      int `mapstructure:"RATE_LIMIT_CAPACITY"`
	// 0 disables the history cache. It is only invalidated by appends made
	// through this process, so enable it for single-instance deployments.
	ChatCacheTTLSeconds  int `mapstructure:"CHAT_CACHE_TTL_SECONDS"`
	ChatCacheMaxItems    int `mapstructure:"CHAT_CACHE_MAX_ITEMS"`
	WSSendBuffer         int `mapstructure:"WS_SEND_BUFFER"`
	WSPingSeconds        int `mapstructure:"WS_PING_SECONDS"`
	WSReadTimeoutSeconds int `mapstructure:"WS_READ_TIMEOUT_SECONDS"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"APP_ENV", "PORT",
	"DB_DRIVER", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
	"JWT_SECRET_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_WINDOW_SECONDS", "RATE_LIMIT_CAPACITY",
	"CHAT_CACHE_TTL_SECONDS", "CHAT_CACHE_MAX_ITEMS",
	"WS_SEND_BUFFER", "WS_PING_SECONDS", "WS_READ_TIMEOUT_SECONDS",
	"LOG_LEVEL", "LOG_FORMAT",
}

// loadDotEnv loads .env outside production. A missing file is fine: the
// host environment may carry everything.
func loadDotEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	_ = godotenv.Load()
}

// Load reads the configuration from the environment (and .env when not in
// production), applies defaults and validates the result.
func Load() (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "5000")
	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:5173,http://127.0.0.1:5173")
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 10)
	v.SetDefault("RATE_LIMIT_CAPACITY", 20)
	v.SetDefault("CHAT_CACHE_TTL_SECONDS", 0)
	v.SetDefault("CHAT_CACHE_MAX_ITEMS", 500)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("WS_PING_SECONDS", 25)
	v.SetDefault("WS_READ_TIMEOUT_SECONDS", 60)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }

// Origins splits CORS_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c *Config) ChatCacheTTL() time.Duration {
	return time.Duration(c.ChatCacheTTLSeconds) * time.Second
}

func (c *Config) HistoryCacheEnabled() bool {
	return c.ChatCacheTTLSeconds > 0 && c.ChatCacheMaxItems > 0
}

func (c *Config) WSPingPeriod() time.Duration {
	return time.Duration(c.WSPingSeconds) * time.Second
}

func (c *Config) WSReadTimeout() time.Duration {
	return time.Duration(c.WSReadTimeoutSeconds) * time.Second
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if !slices.Contains([]string{"development", "staging", "production"}, c.AppEnv) {
		return fmt.Errorf("APP_ENV must be 'development', 'staging' or 'production', got %q", c.AppEnv)
	}
	if !slices.Contains([]string{"mysql", "postgres", "sqlite"}, c.DBDriver) {
		return fmt.Errorf("DB_DRIVER must be 'mysql', 'postgres' or 'sqlite', got %q", c.DBDriver)
	}
	if c.DBDriver != "sqlite" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for DB_DRIVER=%s", c.DBDriver)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY must be set in production")
	}
	if c.RateLimitCapacity <= 0 || c.RateLimitWindowSeconds <= 0 {
		return fmt.Errorf("RATE_LIMIT_CAPACITY and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if c.ChatCacheTTLSeconds < 0 || c.ChatCacheMaxItems < 0 {
		return fmt.Errorf("CHAT_CACHE_TTL_SECONDS and CHAT_CACHE_MAX_ITEMS must not be negative")
	}
	if c.WSReadTimeoutSeconds <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT_SECONDS must be positive")
	}
	if c.WSPingSeconds <= 0 || c.WSPingSeconds >= c.WSReadTimeoutSeconds {
		return fmt.Errorf("WS_PING_SECONDS must be positive and below WS_READ_TIMEOUT_SECONDS")
	}
	return nil
}
