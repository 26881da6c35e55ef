package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentforge/pkg/cerr"
)

type fakeProvider struct {
	srv    *httptest.Server
	calls  atomic.Int32
	prompt atomic.Value
}

func newFakeProvider(t *testing.T, status int, content string) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && len(req.Messages) > 0 {
			p.prompt.Store(req.Messages[len(req.Messages)-1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) config() ProviderConfig {
	return ProviderConfig{APIKey: "key", BaseURL: p.srv.URL + "/v1", Model: "test-model"}
}

func TestClient_GenerateUsesPrimary(t *testing.T) {
	primary := newFakeProvider(t, http.StatusOK, "analysis done")
	secondary := newFakeProvider(t, http.StatusOK, "unused")

	c, err := NewClient(Config{Primary: primary.config(), Secondary: secondary.config(), MaxTokens: 100})
	require.NoError(t, err)

	text, err := c.Generate(context.Background(), "analyse this")
	require.NoError(t, err)
	assert.Equal(t, "analysis done", text)
	assert.Equal(t, "analyse this", primary.prompt.Load())
	assert.Zero(t, secondary.calls.Load())
}

func TestClient_GenerateFallsBackToSecondary(t *testing.T) {
	primary := newFakeProvider(t, http.StatusInternalServerError, "")
	secondary := newFakeProvider(t, http.StatusOK, "from secondary")

	c, err := NewClient(Config{Primary: primary.config(), Secondary: secondary.config()})
	require.NoError(t, err)

	text, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "from secondary", text)
	assert.Equal(t, int32(1), primary.calls.Load())
}

func TestClient_GenerateFailsWhenAllProvidersFail(t *testing.T) {
	primary := newFakeProvider(t, http.StatusInternalServerError, "")
	secondary := newFakeProvider(t, http.StatusOK, "   ")

	c, err := NewClient(Config{Primary: primary.config(), Secondary: secondary.config()})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.True(t, cerr.IsCode(err, cerr.Unavailable))
}

func TestNewClient_RequiresPrimary(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
