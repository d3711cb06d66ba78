package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Web       WebConfig
	Embedding EmbeddingConfig
	Policy    PolicyConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the template HNSW index (optional)
	HNSWEnabled   bool   // Use the HNSW shortlist during matching
	HNSWShortlist int    // Number of templates the shortlist returns (default 32)
}

type RedisConfig struct {
	URL string // redis://host:6379/0, empty keeps debounce state in memory
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type WebConfig struct {
	Host   string
	Port   int
	APIKey string // Required as bearer token on API routes when set
}

type EmbeddingConfig struct {
	Dim int // defaults to 512 (buffalo_l / ArcFace)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean, falling back to defaultVal.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

// envString returns the env var value or defaultVal when it is empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// Load reads configuration from the environment and the attendance policy from
// POLICY_FILE (or the embedded default policy when unset).
func Load() (*Config, error) {
	policy, err := LoadPolicy(os.Getenv("POLICY_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
			HNSWEnabled:   envBool("HNSW_ENABLED", false),
			HNSWShortlist: envInt("HNSW_SHORTLIST", 32),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Web: WebConfig{
			Host:   envString("WEB_HOST", "0.0.0.0"),
			Port:   envInt("WEB_PORT", 8080),
			APIKey: os.Getenv("WEB_API_KEY"),
		},
		Embedding: EmbeddingConfig{
			Dim: envInt("EMBEDDING_DIM", 512),
		},
		Policy: *policy,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would make the service misbehave silently.
func (c *Config) Validate() error {
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("WEB_PORT must be between 1 and 65535, got %d", c.Web.Port)
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.Embedding.Dim)
	}
	return c.Policy.Validate()
}
