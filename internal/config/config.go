package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Images   ImagesConfig
	Sync     SyncConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds ordinary API calls. ScrapeTimeout bounds the
	// scrape routes, which crawl listings inside the request.
	RequestTimeout time.Duration
	ScrapeTimeout  time.Duration
	AllowedOrigins []string
}

type ScraperConfig struct {
	UserAgent         string
	Timeout           time.Duration
	MaxBodyBytes      int64
	ItemDelay         time.Duration
	PageDelay         time.Duration
	MaxPages          int
	RequestsPerSecond float64
}

type ImagesConfig struct {
	Dir       string
	WebPrefix string
	CacheSize int
}

type SyncConfig struct {
	Enabled        bool
	SeedsFile      string
	Interval       time.Duration
	URLDelay       time.Duration
	URLDelayJitter time.Duration
	RunOnStart     bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. Values from a .env file in
// the working directory are applied first without overriding the real environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8000"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Minute),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ScrapeTimeout:   getDurationOrDefault("SERVER_SCRAPE_TIMEOUT", 10*time.Minute),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			UserAgent:         getEnvOrDefault("SCRAPER_USER_AGENT", DefaultUserAgent),
			Timeout:           getDurationOrDefault("SCRAPER_TIMEOUT", 30*time.Second),
			MaxBodyBytes:      int64(getIntOrDefault("SCRAPER_MAX_BODY_BYTES", 5*1024*1024)),
			ItemDelay:         getDurationOrDefault("SCRAPER_ITEM_DELAY", 1*time.Second),
			PageDelay:         getDurationOrDefault("SCRAPER_PAGE_DELAY", 2*time.Second),
			MaxPages:          getIntOrDefault("SCRAPER_MAX_PAGES", 100),
			RequestsPerSecond: getFloatOrDefault("SCRAPER_REQUESTS_PER_SECOND", 0),
		},
		Images: ImagesConfig{
			Dir:       getEnvOrDefault("IMAGES_DIR", "static/images"),
			WebPrefix: getEnvOrDefault("IMAGES_WEB_PREFIX", "/static/images"),
			CacheSize: getIntOrDefault("IMAGES_CACHE_SIZE", 1024),
		},
		Sync: SyncConfig{
			Enabled:        getBoolOrDefault("SYNC_ENABLED", true),
			SeedsFile:      getEnvOrDefault("SYNC_SEEDS_FILE", "bookmarks.json"),
			Interval:       getDurationOrDefault("SYNC_INTERVAL", 24*time.Hour),
			URLDelay:       getDurationOrDefault("SYNC_URL_DELAY", 2*time.Second),
			URLDelayJitter: getDurationOrDefault("SYNC_URL_DELAY_JITTER", 0),
			RunOnStart:     getBoolOrDefault("SYNC_RUN_ON_START", false),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "fabric_catalog"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:fabric_catalog"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxPages < 1 || c.Scraper.MaxPages > 100 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be between 1 and 100")
	}

	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("SCRAPER_TIMEOUT must be positive")
	}

	if c.Scraper.ItemDelay < 0 || c.Scraper.PageDelay < 0 || c.Sync.URLDelay < 0 || c.Sync.URLDelayJitter < 0 {
		return fmt.Errorf("delays cannot be negative")
	}

	if c.Server.RequestTimeout <= 0 || c.Server.ScrapeTimeout <= 0 {
		return fmt.Errorf("SERVER_REQUEST_TIMEOUT and SERVER_SCRAPE_TIMEOUT must be positive")
	}

	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Server.ScrapeTimeout {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT must exceed SERVER_SCRAPE_TIMEOUT")
	}

	if c.Scraper.RequestsPerSecond < 0 {
		return fmt.Errorf("SCRAPER_REQUESTS_PER_SECOND cannot be negative")
	}

	if c.Images.Dir == "" {
		return fmt.Errorf("IMAGES_DIR is required")
	}

	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive when sync is enabled")
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
