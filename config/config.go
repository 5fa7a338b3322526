package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Provider names accepted in PROVIDER
const (
	ProviderWebhook = "webhook"
	ProviderLLM     = "llm"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	ServerPort     string   `toml:"server_port"`
	ServerHost     string   `toml:"server_host"`
	AllowedOrigins []string `toml:"allowed_origins"`
	TrustedProxies []string `toml:"trusted_proxies"`

	// Logging configuration
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Upstream configuration
	Provider        string        `toml:"provider"`
	WebhookURL      string        `toml:"webhook_url"`
	WebhookSecret   string        `toml:"-"`
	LLMAPIURL       string        `toml:"llm_api_url"`
	LLMAPIKey       string        `toml:"-"`
	LLMModel        string        `toml:"llm_model"`
	LLMMaxRetries   int           `toml:"llm_max_retries"`
	UpstreamTimeout time.Duration `toml:"upstream_timeout"`

	// Redis configuration
	RedisHost     string `toml:"redis_host"`
	RedisPort     string `toml:"redis_port"`
	RedisPassword string `toml:"-"`
	RedisDB       int    `toml:"redis_db"`
	RedisURL      string `toml:"redis_url"`

	// Session and rate limit configuration
	SessionTTL      time.Duration `toml:"session_ttl"`
	RateLimit       int           `toml:"rate_limit"`
	RateLimitWindow time.Duration `toml:"rate_limit_window"`
}

// Default returns a Config with the values used when nothing else is set
func Default() *Config {
	return &Config{
		ServerPort:      "8080",
		ServerHost:      "0.0.0.0",
		AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		LogLevel:        "info",
		LogFormat:       "json",
		Provider:        ProviderWebhook,
		LLMAPIURL:       "https://api.deepseek.com/v1/chat/completions",
		LLMModel:        "deepseek-chat",
		LLMMaxRetries:   3,
		UpstreamTimeout: 25 * time.Second,
		SessionTTL:      24 * time.Hour,
		RateLimit:       30,
		RateLimitWindow: time.Minute,
	}
}

// RedisEnabled reports whether a Redis server was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != "" || c.RedisHost != ""
}

// LoadConfig creates a new Config from defaults, an optional TOML file
// named by CONFIG_FILE, environment variables and secrets, in that order
func LoadConfig() (*Config, error) {
	env := GetEnvironment()
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// Load configuration based on environment
	switch env {
	case CI:
		if err := loadCIConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to load CI configuration: %w", err)
		}
	case Development, Test, Production:
		if err := loadEnvConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s configuration: %w", env, err)
		}
	default:
		return nil, fmt.Errorf("unknown environment: %s", env)
	}

	// Validate the configuration
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the settings of a TOML file onto cfg. Durations are
// written as strings such as "25s".
func LoadFile(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// loadCIConfig loads configuration for CI environment using ONLY environment variables
func loadCIConfig(cfg *Config) error {
	if err := applyEnv(cfg); err != nil {
		return err
	}

	// GitHub Actions secrets - use environment variables directly
	cfg.WebhookSecret = os.Getenv("TEST_N8N_SECRET")
	cfg.LLMAPIKey = os.Getenv("TEST_LLM_API_KEY")
	cfg.RedisPassword = os.Getenv("TEST_REDIS_PASSWORD")
	return nil
}

// loadEnvConfig loads environment variables, then sensitive values from
// the environment or Docker secrets
func loadEnvConfig(cfg *Config) error {
	if err := applyEnv(cfg); err != nil {
		return err
	}

	cfg.WebhookSecret = firstNonEmpty(os.Getenv("N8N_SECRET"), readSecret("n8n_secret"))
	cfg.LLMAPIKey = firstNonEmpty(os.Getenv("DEEPSEEK_API_KEY"), readSecretFile(os.Getenv("DEEPSEEK_API_KEY_FILE")), readSecret("llm_api_key"))
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), readSecret("redis_password"))
	return nil
}

// applyEnv overrides cfg with every non-sensitive variable that is set
func applyEnv(cfg *Config) error {
	setString(&cfg.ServerPort, "SERVER_PORT")
	setString(&cfg.ServerHost, "SERVER_HOST")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.Provider, "PROVIDER")
	setString(&cfg.WebhookURL, "N8N_WEBHOOK_URL")
	setString(&cfg.LLMAPIURL, "DEEPSEEK_API_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.RedisHost, "REDIS_HOST")
	setString(&cfg.RedisPort, "REDIS_PORT")
	setString(&cfg.RedisURL, "REDIS_URL")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"REDIS_DB", &cfg.RedisDB},
		{"RATE_LIMIT", &cfg.RateLimit},
		{"LLM_MAX_RETRIES", &cfg.LLMMaxRetries},
	}
	for _, i := range ints {
		if v := os.Getenv(i.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", i.name, v, err)
			}
			*i.dst = n
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"UPSTREAM_TIMEOUT", &cfg.UpstreamTimeout},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"RATE_LIMIT_WINDOW", &cfg.RateLimitWindow},
	}
	for _, d := range durations {
		if v := os.Getenv(d.name); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", d.name, v, err)
			}
			*d.dst = parsed
		}
	}

	return nil
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	return readSecretFile(filepath.Join(secretsDir, name))
}

func readSecretFile(path string) string {
	if path == "" {
		return ""
	}
	if data, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}
