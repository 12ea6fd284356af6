package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spachava753/peerlab/internal/models"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Client talks to an OpenAI-compatible chat completions endpoint. The default
// configuration points at Gemini's compatibility endpoint.
type Client struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float32
	maxTokens   int
	http        *http.Client
}

// NewClient builds a client from the llm section of the config.
func NewClient(cfg models.LLMConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Produce sends the prompt as a system + user message pair. Rate limiting,
// server errors and network failures wrap models.ErrTransient; an unreadable
// body wraps models.ErrMalformedResponse.
func (c *Client) Produce(ctx context.Context, p Prompt) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("llm base URL is not configured")
	}
	req := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if p.Temperature > 0 {
		req.Temperature = p.Temperature
	}
	if p.MaxTokens > 0 {
		req.MaxTokens = p.MaxTokens
	}
	if p.System != "" {
		req.Messages = append(req.Messages, message{Role: "system", Content: p.System})
	}
	req.Messages = append(req.Messages, message{Role: "user", Content: p.User})

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("request failed: %v: %w", err, models.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", fmt.Errorf("status %s: %s: %w", resp.Status, detail, models.ErrTransient)
		}
		return "", fmt.Errorf("status %s: %s", resp.Status, detail)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %v: %w", err, models.ErrMalformedResponse)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("response missing choices: %w", models.ErrTransient)
	}
	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		// blocked or truncated generations come back empty and usually succeed on retry
		return "", fmt.Errorf("response empty (finish reason %q): %w", decoded.Choices[0].FinishReason, models.ErrTransient)
	}
	return content, nil
}
