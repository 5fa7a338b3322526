package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in a Config
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return strings.Join(msgs, "\n")
}

// ValidateConfig checks the configuration for values the server cannot
// run with. A missing webhook URL is not an error here: the proxy route
// reports it per request.
func ValidateConfig(cfg *Config) error {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if port, err := strconv.Atoi(cfg.ServerPort); err != nil || port <= 0 || port > 65535 {
		add("SERVER_PORT", fmt.Sprintf("invalid port %q", cfg.ServerPort))
	}

	switch cfg.Provider {
	case ProviderWebhook:
		if cfg.WebhookURL != "" {
			if u, err := url.Parse(cfg.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
				add("N8N_WEBHOOK_URL", "must be an absolute URL")
			}
		}
	case ProviderLLM:
		if cfg.LLMAPIKey == "" {
			add("DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY or DEEPSEEK_API_KEY_FILE must be set")
		}
		if cfg.LLMAPIURL == "" {
			add("DEEPSEEK_API_URL", "must be set")
		}
		if cfg.LLMMaxRetries < 0 {
			add("LLM_MAX_RETRIES", "must not be negative")
		}
	default:
		add("PROVIDER", fmt.Sprintf("unknown provider %q (want %s or %s)", cfg.Provider, ProviderWebhook, ProviderLLM))
	}

	if cfg.UpstreamTimeout <= 0 {
		add("UPSTREAM_TIMEOUT", "must be positive")
	}
	if cfg.SessionTTL <= 0 {
		add("SESSION_TTL", "must be positive")
	}
	if cfg.RateLimit < 0 {
		add("RATE_LIMIT", "must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateLimitWindow <= 0 {
		add("RATE_LIMIT_WINDOW", "must be positive when RATE_LIMIT is set")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
