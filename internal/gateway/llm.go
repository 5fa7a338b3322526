package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const systemPrompt = `Sos un asistente de cocina saludable. Con la despensa y el perfil del usuario, sugerí un plato.
Respondé solo con JSON con esta forma:
{
    "dish": {
        "nombre": "Nombre del plato",
        "metodo": "plancha | horno | hervido | salteado | crudo",
        "bebida": "Bebida sugerida",
        "proporciones": {"verduras_y_frutas": 0.5, "proteinas": 0.25, "cereales_tuberculos_legumbres": 0.25},
        "porciones_sugeridas": "1 plato",
        "ingredientes_usados": ["ingrediente"],
        "pasos": ["Paso 1"]
    },
    "alternativas_si_falta_algo": ["alternativa"],
    "consejos": {"sodio": "", "azucar": "", "higiene": ""}
}
Si el mensaje no pide una receta, respondé {"reply": "texto"}.`

// Message represents a message in the chat
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents a chat-completions request
type Request struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type completion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// LLMOptions configures an LLMProvider
type LLMOptions struct {
	APIURL     string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// LLMProvider asks a DeepSeek-compatible chat-completions API directly
type LLMProvider struct {
	opts    LLMOptions
	client  *http.Client
	md      goldmark.Markdown
	log     logrus.FieldLogger
	backoff func() backoff.BackOff
}

// NewLLMProvider creates an LLMProvider
func NewLLMProvider(opts LLMOptions, log logrus.FieldLogger) (*LLMProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("DEEPSEEK_API_KEY or DEEPSEEK_API_KEY_FILE must be set")
	}
	if opts.APIURL == "" {
		opts.APIURL = "https://api.deepseek.com/v1/chat/completions"
	}
	if opts.Model == "" {
		opts.Model = "deepseek-chat"
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &LLMProvider{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		// Raw HTML in model output is dropped: the result is inserted as
		// trusted markup.
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		log: log,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 300 * time.Millisecond
			b.MaxInterval = 3 * time.Second
			return b
		},
	}, nil
}

// Name implements Provider
func (l *LLMProvider) Name() string { return "llm" }

// retryableStatus is returned for responses worth another attempt
type retryableStatus struct{ code int }

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("API request failed with status %d", e.code)
}

// Forward implements Provider. Rate-limit and server errors are retried;
// when retries run out the last upstream response is returned as-is.
func (l *LLMProvider) Forward(ctx context.Context, p Payload) (*Response, error) {
	userContent, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	reqBody, err := json.Marshal(Request{
		Model: l.opts.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userContent)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var last *Response
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := l.do(ctx, reqBody)
		if err != nil {
			if isTimeout(err) {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrUpstreamTimeout, err))
			}
			return err
		}
		last = resp
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			l.log.WithFields(logrus.Fields{
				"provider": l.Name(),
				"status":   resp.StatusCode,
				"attempt":  attempt,
			}).Warn("LLM request failed, retrying")
			return &retryableStatus{code: resp.StatusCode}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(l.backoff(), uint64(l.opts.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if _, ok := err.(*retryableStatus); ok && last != nil {
			return last, nil
		}
		return nil, err
	}

	if last.StatusCode != http.StatusOK {
		return last, nil
	}
	return l.toResponse(last.Body)
}

func (l *LLMProvider) do(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.opts.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.opts.APIKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	return &Response{StatusCode: resp.StatusCode, ContentType: ct, Body: data}, nil
}

// toResponse extracts the first choice. JSON content is passed through;
// anything else is treated as Markdown and wrapped as {"reply": html}.
func (l *LLMProvider) toResponse(body []byte) (*Response, error) {
	var result completion
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no response from API")
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	l.log.WithField("provider", l.Name()).WithField("bytes", len(content)).Debug("LLM content received")

	if isJSONDocument(content) {
		return &Response{StatusCode: http.StatusOK, ContentType: "application/json", Body: []byte(content)}, nil
	}

	rendered, err := l.markdown(content)
	if err != nil {
		return nil, err
	}
	reply, err := json.Marshal(map[string]string{"reply": rendered})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply: %w", err)
	}
	return &Response{StatusCode: http.StatusOK, ContentType: "application/json", Body: reply}, nil
}

func (l *LLMProvider) markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := l.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func isJSONDocument(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}
