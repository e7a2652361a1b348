package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinfund/internal/types"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestCallSuccess(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		json.NewEncoder(w).Encode(chatResponse("Bullish"))
	}))
	defer srv.Close()

	c := &OpenAIChatClient{
		ProviderID: "openai",
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "gpt-4o-mini",
	}
	out, err := c.Call(context.Background(), "you are an analyst", "what now")
	require.NoError(t, err)
	assert.Equal(t, "Bullish", out)
	assert.Equal(t, "gpt-4o-mini", gotModel)
}

func TestCallRetriesOn429(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer srv.Close()

	c := &OpenAIChatClient{ProviderID: "openai", BaseURL: srv.URL, Model: "m", MaxRetries: 2}
	out, err := c.Call(context.Background(), "", "ping")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestCallNoRetryOn400(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad prompt"}})
	}))
	defer srv.Close()

	c := &OpenAIChatClient{ProviderID: "openai", BaseURL: srv.URL, Model: "m", MaxRetries: 3}
	_, err := c.Call(context.Background(), "", "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad prompt")
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestEndpointNormalization(t *testing.T) {
	c := &OpenAIChatClient{BaseURL: "https://api.example.com/v1/chat/completions/"}
	assert.Equal(t, "https://api.example.com/v1/chat/completions", c.endpoint())
	c.BaseURL = "https://api.example.com/v1"
	assert.Equal(t, "https://api.example.com/v1/chat/completions", c.endpoint())
}

func TestCallContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(chatResponse("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := &OpenAIChatClient{ProviderID: "openai", BaseURL: srv.URL, Model: "m"}
	_, err := c.Call(ctx, "", "ping")
	require.Error(t, err)
}

// One client instance is shared by every analyst and they run in parallel,
// so Call must not mutate the receiver. Run with -race.
func TestCallConcurrentSharedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer srv.Close()

	p, err := New(types.ModelConfig{Provider: "openai", Model: "m"},
		Options{BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Call(context.Background(), "", "ping")
			assert.NoError(t, err)
			assert.Equal(t, "ok", out)
		}()
	}
	wg.Wait()
}

func TestFactoryDefaults(t *testing.T) {
	p, err := New(types.ModelConfig{Provider: "deepseek", Model: "deepseek-chat"}, Options{APIKey: "k"})
	require.NoError(t, err)
	client, ok := p.(*OpenAIChatClient)
	require.True(t, ok)
	assert.Equal(t, "https://api.deepseek.com/v1", client.BaseURL)
	assert.NotNil(t, client.httpc)

	_, err = New(types.ModelConfig{Provider: "mystery", Model: "m"}, Options{})
	assert.Error(t, err)

	_, err = New(types.ModelConfig{Provider: "openai"}, Options{})
	assert.Error(t, err)
}
