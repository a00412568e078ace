package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Parser  ParserConfig
	Browser BrowserConfig
	Redis   RedisConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ParserConfig struct {
	// ConcurrentLimit caps how many pages render at once; each rendered
	// page is a full Chromium tab.
	ConcurrentLimit int
	RequestTimeout  time.Duration
	SettleDelay     time.Duration
	SlowParseWarn   time.Duration

	// NavDelayMin/NavDelayMax bound the jittered per-site pause between
	// navigations. Zero disables pacing.
	NavDelayMin time.Duration
	NavDelayMax time.Duration
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type RedisConfig struct {
	// Addr empty disables outcome publishing.
	Addr     string
	Password string
	DB       int
	Stream   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Missing .env is fine, the environment may be set by the runtime.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8000"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Parser: ParserConfig{
			ConcurrentLimit: getIntOrDefault("PARSER_CONCURRENT_LIMIT", 4),
			RequestTimeout:  getDurationOrDefault("PARSER_REQUEST_TIMEOUT", 90*time.Second),
			SettleDelay:     getDurationOrDefault("PARSER_SETTLE_DELAY", 3*time.Second),
			SlowParseWarn:   getDurationOrDefault("PARSER_SLOW_WARN", 15*time.Second),
			NavDelayMin:     getDurationOrDefault("PARSER_NAV_DELAY_MIN", 0),
			NavDelayMax:     getDurationOrDefault("PARSER_NAV_DELAY_MAX", 0),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ru-RU,ru;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Moscow"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ru-RU"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "parse-outcomes"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Parser.ConcurrentLimit < 1 {
		return fmt.Errorf("PARSER_CONCURRENT_LIMIT must be at least 1")
	}

	if c.Parser.RequestTimeout < c.Browser.Timeout {
		return fmt.Errorf("PARSER_REQUEST_TIMEOUT cannot be smaller than BROWSER_TIMEOUT")
	}

	if c.Parser.NavDelayMin > c.Parser.NavDelayMax {
		return fmt.Errorf("PARSER_NAV_DELAY_MIN cannot be greater than PARSER_NAV_DELAY_MAX")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT must not be empty")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
