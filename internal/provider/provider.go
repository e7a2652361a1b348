// Package provider abstracts the chat-completion backends the analysts and
// the manager talk to.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"skinfund/internal/types"
)

// ModelProvider is one chat-completion backend.
type ModelProvider interface {
	ID() string
	// Call sends one system+user exchange and returns the raw model output.
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Options configures the factory.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerMinute caps the shared call rate; 0 disables the limiter.
	RequestsPerMinute int
}

// Known provider IDs and their default endpoints.
var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"qwen":       "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// New builds a provider for the given model config. All supported backends
// speak the OpenAI chat-completions dialect, so they share one client.
func New(mc types.ModelConfig, opts Options) (ModelProvider, error) {
	providerID := strings.ToLower(strings.TrimSpace(mc.Provider))
	if providerID == "" {
		return nil, fmt.Errorf("provider: provider name cannot be empty")
	}
	if strings.TrimSpace(mc.Model) == "" {
		return nil, fmt.Errorf("provider: model name cannot be empty")
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		known, ok := defaultBaseURLs[providerID]
		if !ok {
			return nil, fmt.Errorf("provider: unknown provider %q and no base_url configured", providerID)
		}
		baseURL = known
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	client := &OpenAIChatClient{
		ProviderID: providerID,
		BaseURL:    baseURL,
		APIKey:     opts.APIKey,
		Model:      mc.Model,
		Timeout:    timeout,
		MaxRetries: opts.MaxRetries,
		httpc:      &http.Client{Timeout: timeout},
	}
	client.setRateLimit(opts.RequestsPerMinute)
	return client, nil
}
