package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"skinfund/internal/logger"
)

// OpenAIChatClient talks to any OpenAI-compatible /v1/chat/completions
// endpoint (OpenAI, DeepSeek, Qwen, OpenRouter).
type OpenAIChatClient struct {
	ProviderID string
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	// MaxRetries bounds 429/5xx retries; 0 means the default of 2.
	MaxRetries int

	limiter *rate.Limiter
	httpc   *http.Client
}

func (c *OpenAIChatClient) ID() string { return c.ProviderID }

func (c *OpenAIChatClient) setRateLimit(requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

// endpoint normalizes BaseURL so a configured value already ending in
// /chat/completions does not produce a doubled path.
func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimRight(c.BaseURL, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

// Call sends one exchange, retrying 429/5xx with Retry-After or exponential
// backoff.
func (c *OpenAIChatClient) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	// The receiver is shared across concurrently running analysts, so Call
	// must never write to it. The factory sets httpc; a zero-value client
	// gets a throwaway one.
	httpc := c.httpc
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}

	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})
	body, err := json.Marshal(map[string]any{
		"model":       c.Model,
		"messages":    messages,
		"temperature": 0.5,
	})
	if err != nil {
		return "", err
	}

	url := c.endpoint()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			break
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if decodeErr != nil {
				return "", decodeErr
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("%s: empty choices", c.ProviderID)
			}
			return r.Choices[0].Message.Content, nil
		}

		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("%s status=%d: %s", c.ProviderID, resp.StatusCode, msg)
		if !retryable(resp.StatusCode) || attempt >= maxRetries {
			break
		}
		wait := retryWait(resp.Header.Get("Retry-After"), attempt)
		logger.Warnf("[model] %s returned %d, retrying in %s", c.ProviderID, resp.StatusCode, wait)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryWait(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := 800 * time.Millisecond << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}
