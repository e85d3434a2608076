// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	LLM       LLMConfig
	Org       OrgConfig
	Memory    MemoryConfig
	Strategy  string // "auto", "team", or "single_pass"
	RateLimit RateLimitConfig
	SSE       SSEConfig

	// PromptsPath optionally overrides the embedded prompt pack.
	PromptsPath string
}

// LLMConfig configures the reasoning backend client.
type LLMConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
}

// OrgConfig configures the optional org schema connector.
type OrgConfig struct {
	APIURL   string
	APIToken string
}

// MemoryConfig bounds per-session conversation memory.
type MemoryConfig struct {
	MaxMessages      int
	MaxBytes         int
	ArchiveQueueSize int
}

// RateLimitConfig controls per-session submission throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// SSEConfig controls the event stream endpoint.
type SSEConfig struct {
	KeepaliveInterval  time.Duration
	RetryDelay         time.Duration
	MaxRequestBodySize int64
	QueueSize          int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/planfold.db"),
		LLM: LLMConfig{
			APIKey:         getEnv("LLM_API_KEY", ""),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:        getEnv("LLM_BASE_URL", ""),
			Temperature:    getEnvFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:      getEnvInt("LLM_MAX_TOKENS", 4096),
			RequestTimeout: getEnvDuration("LLM_REQUEST_TIMEOUT", 120*time.Second),
		},
		Org: OrgConfig{
			APIURL:   getEnv("ORG_API_URL", ""),
			APIToken: getEnv("ORG_API_TOKEN", ""),
		},
		Memory: MemoryConfig{
			MaxMessages:      getEnvInt("MEMORY_MAX_MESSAGES", 100),
			MaxBytes:         getEnvInt("MEMORY_MAX_BYTES", 256*1024),
			ArchiveQueueSize: getEnvInt("ARCHIVE_QUEUE_SIZE", 1000),
		},
		Strategy: getEnv("STRATEGY", "auto"),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			KeepaliveInterval:  getEnvDuration("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
			RetryDelay:         getEnvDuration("SSE_RETRY_DELAY", 5*time.Second),
			MaxRequestBodySize: int64(getEnvInt("SSE_MAX_REQUEST_BODY_SIZE", 1<<20)),
			QueueSize:          getEnvInt("SSE_QUEUE_SIZE", 100),
		},
		PromptsPath: getEnv("PROMPTS_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY cannot be empty")
	}
	switch c.Strategy {
	case "auto", "team", "single_pass":
	default:
		return fmt.Errorf("STRATEGY must be auto, team, or single_pass, got %q", c.Strategy)
	}
	if c.Memory.MaxMessages <= 0 {
		return fmt.Errorf("MEMORY_MAX_MESSAGES must be > 0")
	}
	if c.Memory.MaxBytes <= 0 {
		return fmt.Errorf("MEMORY_MAX_BYTES must be > 0")
	}
	if c.Org.APIURL != "" && c.Org.APIToken == "" {
		return fmt.Errorf("ORG_API_TOKEN is required when ORG_API_URL is set")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
