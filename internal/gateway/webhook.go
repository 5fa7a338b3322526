package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// maxResponseBytes caps how much of an upstream body is read
const maxResponseBytes = 4 << 20

// WebhookProvider posts payloads to an n8n webhook
type WebhookProvider struct {
	url    string
	secret string
	client *http.Client
	log    logrus.FieldLogger
}

// NewWebhookProvider creates a WebhookProvider. The secret, when set, is
// sent as X-API-KEY.
func NewWebhookProvider(url, secret string, timeout time.Duration, log logrus.FieldLogger) *WebhookProvider {
	return &WebhookProvider{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Name implements Provider
func (w *WebhookProvider) Name() string { return "webhook" }

// Forward implements Provider
func (w *WebhookProvider) Forward(ctx context.Context, p Payload) (*Response, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if w.secret != "" {
		req.Header.Set("X-API-KEY", w.secret)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("fetch to n8n failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}

	w.log.WithFields(logrus.Fields{
		"provider":     w.Name(),
		"status":       resp.StatusCode,
		"content_type": ct,
		"bytes":        len(data),
		"elapsed_ms":   time.Since(start).Milliseconds(),
	}).Debug("webhook responded")

	return &Response{StatusCode: resp.StatusCode, ContentType: ct, Body: data}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
