package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/nutriado/backend/internal/logging"
)

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
	return body
}

func newTestLLM(t *testing.T, url string, retries int) *LLMProvider {
	t.Helper()
	p, err := NewLLMProvider(LLMOptions{
		APIURL:     url,
		APIKey:     "test-api-key",
		Timeout:    time.Second,
		MaxRetries: retries,
	}, logging.Discard())
	require.NoError(t, err)
	p.backoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return p
}

func TestNewLLMProvider(t *testing.T) {
	t.Run("should fail without API key", func(t *testing.T) {
		p, err := NewLLMProvider(LLMOptions{}, logging.Discard())
		assert.Error(t, err)
		assert.Nil(t, p)
		assert.Contains(t, err.Error(), "DEEPSEEK_API_KEY or DEEPSEEK_API_KEY_FILE must be set")
	})

	t.Run("should apply defaults", func(t *testing.T) {
		p, err := NewLLMProvider(LLMOptions{APIKey: "k", MaxRetries: -1}, logging.Discard())
		require.NoError(t, err)
		assert.Equal(t, "deepseek-chat", p.opts.Model)
		assert.Equal(t, "https://api.deepseek.com/v1/chat/completions", p.opts.APIURL)
		assert.Equal(t, 0, p.opts.MaxRetries)
	})
}

func TestLLMProviderForward(t *testing.T) {
	t.Run("should pass JSON content through", func(t *testing.T) {
		var req Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(completionBody(t, `{"dish":{"nombre":"Tortilla"}}`))
		}))
		defer server.Close()

		p := newTestLLM(t, server.URL, 0)
		resp, err := p.Forward(context.Background(), Payload{Message: "huevo, papa", Context: Context{Pantry: []string{"huevo", "papa"}}})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.ContentType)
		assert.JSONEq(t, `{"dish":{"nombre":"Tortilla"}}`, string(resp.Body))

		assert.Equal(t, "deepseek-chat", req.Model)
		assert.Equal(t, "json_object", req.ResponseFormat["type"])
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, `"pantry":["huevo","papa"]`)
	})

	t.Run("should render markdown content as a reply", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(completionBody(t, "Probá con **arroz** <script>x</script>"))
		}))
		defer server.Close()

		p := newTestLLM(t, server.URL, 0)
		resp, err := p.Forward(context.Background(), Payload{Message: "hola"})
		require.NoError(t, err)

		var out map[string]string
		require.NoError(t, json.Unmarshal(resp.Body, &out))
		assert.Contains(t, out["reply"], "<strong>arroz</strong>")
		assert.NotContains(t, out["reply"], "<script>")
	})

	t.Run("should retry server errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write(completionBody(t, `{"reply":"listo"}`))
		}))
		defer server.Close()

		p := newTestLLM(t, server.URL, 3)
		resp, err := p.Forward(context.Background(), Payload{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"reply":"listo"}`, string(resp.Body))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("should return the last response when retries run out", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
		}))
		defer server.Close()

		p := newTestLLM(t, server.URL, 2)
		resp, err := p.Forward(context.Background(), Payload{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.JSONEq(t, `{"error":"rate limited"}`, string(resp.Body))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("should not retry client errors", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		p := newTestLLM(t, server.URL, 3)
		resp, err := p.Forward(context.Background(), Payload{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("should fail on empty choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		p := newTestLLM(t, server.URL, 0)
		_, err := p.Forward(context.Background(), Payload{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no response from API")
	})
}
