package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Backend   BackendConfig   `toml:"backend"`
	Jobs      JobsConfig      `toml:"jobs"`
	Persist   PersistConfig   `toml:"persist"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	CORS      CORSConfig      `toml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" toml:"host"`
}

// BackendConfig holds the remote job and storage API configuration.
type BackendConfig struct {
	BaseURL        string        `envconfig:"BACKEND_URL" default:"http://localhost:8080" toml:"base_url"`
	Timeout        time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s" toml:"timeout"`
	RequestsPerSec float64       `envconfig:"BACKEND_RPS" default:"20" toml:"requests_per_second"`
	StorageRetries int           `envconfig:"STORAGE_RETRIES" default:"2" toml:"storage_retries"`
}

// JobsConfig holds per-kind polling cadence and wall-clock ceilings.
type JobsConfig struct {
	TextInterval  time.Duration `envconfig:"JOB_TEXT_INTERVAL" default:"1500ms" toml:"text_interval"`
	TextTimeout   time.Duration `envconfig:"JOB_TEXT_TIMEOUT" default:"3m" toml:"text_timeout"`
	ImageInterval time.Duration `envconfig:"JOB_IMAGE_INTERVAL" default:"1500ms" toml:"image_interval"`
	ImageTimeout  time.Duration `envconfig:"JOB_IMAGE_TIMEOUT" default:"2m" toml:"image_timeout"`
	VideoInterval time.Duration `envconfig:"JOB_VIDEO_INTERVAL" default:"2s" toml:"video_interval"`
	VideoTimeout  time.Duration `envconfig:"JOB_VIDEO_TIMEOUT" default:"10m" toml:"video_timeout"`
}

// PersistConfig holds session write-back configuration.
type PersistConfig struct {
	Debounce time.Duration `envconfig:"PERSIST_DEBOUNCE" default:"1500ms" toml:"debounce"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled"`
}

// CORSConfig holds allowed browser origins.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ORIGINS" default:"*" toml:"allow_origins"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads a TOML file as the base layer and applies environment
// variables on top. Variables that are set always win over the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	env, err := Load()
	if err != nil {
		return nil, err
	}
	overlayEnv(cfg, env)
	return cfg, nil
}

// LoadOrDefault loads configuration from CONFIG_FILE or the environment,
// falling back to defaults.
func LoadOrDefault() *Config {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if cfg, err := LoadFile(path); err == nil {
			return cfg
		}
	}
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8080",
			Timeout:        30 * time.Second,
			RequestsPerSec: 20,
			StorageRetries: 2,
		},
		Jobs: JobsConfig{
			TextInterval:  1500 * time.Millisecond,
			TextTimeout:   3 * time.Minute,
			ImageInterval: 1500 * time.Millisecond,
			ImageTimeout:  2 * time.Minute,
			VideoInterval: 2 * time.Second,
			VideoTimeout:  10 * time.Minute,
		},
		Persist: PersistConfig{
			Debounce: 1500 * time.Millisecond,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}

// overlayEnv copies every field whose environment variable is set.
func overlayEnv(dst, env *Config) {
	set := func(key string) bool {
		_, ok := os.LookupEnv(key)
		return ok
	}

	if set("PORT") {
		dst.Server.Port = env.Server.Port
	}
	if set("HOST") {
		dst.Server.Host = env.Server.Host
	}
	if set("BACKEND_URL") {
		dst.Backend.BaseURL = env.Backend.BaseURL
	}
	if set("BACKEND_TIMEOUT") {
		dst.Backend.Timeout = env.Backend.Timeout
	}
	if set("BACKEND_RPS") {
		dst.Backend.RequestsPerSec = env.Backend.RequestsPerSec
	}
	if set("STORAGE_RETRIES") {
		dst.Backend.StorageRetries = env.Backend.StorageRetries
	}
	if set("JOB_TEXT_INTERVAL") {
		dst.Jobs.TextInterval = env.Jobs.TextInterval
	}
	if set("JOB_TEXT_TIMEOUT") {
		dst.Jobs.TextTimeout = env.Jobs.TextTimeout
	}
	if set("JOB_IMAGE_INTERVAL") {
		dst.Jobs.ImageInterval = env.Jobs.ImageInterval
	}
	if set("JOB_IMAGE_TIMEOUT") {
		dst.Jobs.ImageTimeout = env.Jobs.ImageTimeout
	}
	if set("JOB_VIDEO_INTERVAL") {
		dst.Jobs.VideoInterval = env.Jobs.VideoInterval
	}
	if set("JOB_VIDEO_TIMEOUT") {
		dst.Jobs.VideoTimeout = env.Jobs.VideoTimeout
	}
	if set("PERSIST_DEBOUNCE") {
		dst.Persist.Debounce = env.Persist.Debounce
	}
	if set("LOG_LEVEL") {
		dst.Logging.Level = env.Logging.Level
	}
	if set("LOG_DEV") {
		dst.Logging.Development = env.Logging.Development
	}
	if set("RATE_LIMIT_RPS") {
		dst.RateLimit.RequestsPerSecond = env.RateLimit.RequestsPerSecond
	}
	if set("RATE_LIMIT_BURST") {
		dst.RateLimit.Burst = env.RateLimit.Burst
	}
	if set("RATE_LIMIT_ENABLED") {
		dst.RateLimit.Enabled = env.RateLimit.Enabled
	}
	if set("CORS_ORIGINS") {
		dst.CORS.AllowOrigins = env.CORS.AllowOrigins
	}
}
