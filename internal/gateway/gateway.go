// Package gateway forwards sanitized chat payloads to the recipe assistant
// upstream, either an n8n webhook or a chat-completions LLM API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/pageza/nutriado/backend/config"
)

// Limits applied by Sanitize
const (
	MaxMessageLength   = 2000
	MaxSessionIDLength = 100
)

var (
	// ErrMissingWebhookURL is returned when the webhook provider has no URL
	ErrMissingWebhookURL = errors.New("missing N8N_WEBHOOK_URL")
	// ErrUpstreamTimeout is returned when the upstream did not answer in time
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrInvalidPayload is returned by Sanitize for bodies that are not JSON
	ErrInvalidPayload = errors.New("invalid payload")
)

// Context is the free-form chat context sent with every message. Pantry is
// always present; every other key is passed through untouched.
type Context struct {
	Pantry []string
	Fields map[string]json.RawMessage
}

// Set stores a pass-through context field
func (c *Context) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal context field %s: %w", key, err)
	}
	if c.Fields == nil {
		c.Fields = make(map[string]json.RawMessage)
	}
	c.Fields[key] = raw
	return nil
}

// MarshalJSON implements json.Marshaler
func (c Context) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Fields)+1)
	for k, v := range c.Fields {
		out[k] = v
	}
	pantry := c.Pantry
	if pantry == nil {
		pantry = []string{}
	}
	raw, err := json.Marshal(pantry)
	if err != nil {
		return nil, err
	}
	out["pantry"] = raw
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Context) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["pantry"]; ok {
		c.Pantry = stringList(raw)
		delete(fields, "pantry")
	}
	c.Fields = fields
	return nil
}

// Payload is the body forwarded upstream
type Payload struct {
	Message   string  `json:"message"`
	SessionID string  `json:"sessionId"`
	Context   Context `json:"context"`
}

// Response is the raw upstream answer
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Provider forwards one payload to one upstream
type Provider interface {
	Name() string
	Forward(ctx context.Context, p Payload) (*Response, error)
}

// New builds the provider selected by cfg.Provider
func New(cfg *config.Config, log logrus.FieldLogger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderWebhook, "":
		if cfg.WebhookURL == "" {
			return nil, ErrMissingWebhookURL
		}
		return NewWebhookProvider(cfg.WebhookURL, cfg.WebhookSecret, cfg.UpstreamTimeout, log), nil
	case config.ProviderLLM:
		p, err := NewLLMProvider(LLMOptions{
			APIURL:     cfg.LLMAPIURL,
			APIKey:     cfg.LLMAPIKey,
			Model:      cfg.LLMModel,
			Timeout:    cfg.UpstreamTimeout,
			MaxRetries: cfg.LLMMaxRetries,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewPayload builds a Payload from trusted values, applying the same length
// limits as Sanitize
func NewPayload(message, sessionID string, pantry []string) Payload {
	return Payload{
		Message:   truncate(message, MaxMessageLength),
		SessionID: truncate(sessionID, MaxSessionIDLength),
		Context:   Context{Pantry: pantry},
	}
}

// Sanitize builds a Payload from an untrusted request body. An empty body
// is treated as {}. The message and session ID are truncated, and the
// pantry is derived from the message when the context does not carry one.
func Sanitize(body []byte) (Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return Payload{}, ErrInvalidPayload
	}

	var raw struct {
		Message   json.RawMessage `json:"message"`
		SessionID json.RawMessage `json:"sessionId"`
		Context   json.RawMessage `json:"context"`
	}
	// Non-object bodies decode to an empty request.
	_ = json.Unmarshal(body, &raw)

	message := stringify(raw.Message)
	p := NewPayload(message, stringify(raw.SessionID), nil)

	var ctx Context
	if len(raw.Context) > 0 && json.Unmarshal(raw.Context, &ctx) == nil {
		p.Context = ctx
	}
	if p.Context.Pantry == nil {
		p.Context.Pantry = SplitPantry(message)
	}
	return p, nil
}

// SplitPantry splits free text on commas only, so multi-word ingredients
// such as "esencia de vainilla" stay whole
func SplitPantry(text string) []string {
	out := []string{}
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// stringList decodes a JSON array, stringifying non-string items. Anything
// that is not an array yields nil.
func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, stringify(item))
	}
	return out
}

// stringify converts a JSON value to text: strings verbatim, null or
// absent as "", anything else as its compact JSON.
func stringify(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
