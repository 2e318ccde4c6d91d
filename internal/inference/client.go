// Package inference is an OpenAI-compatible chat client for LazAI inference
// nodes and hosted providers, plus a small conversational agent on top.
package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"lazkit/internal/logging"
	"lazkit/internal/usage"
)

// Client talks to a /chat/completions endpoint.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a client, filling zero config values with defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// endpoint names the server in usage records.
func (c *Client) endpoint() string {
	if u, err := url.Parse(c.cfg.BaseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return c.cfg.BaseURL
}

func (c *Client) trackUsage(ctx context.Context, model string, u *Usage) {
	if u == nil {
		return
	}
	if model == "" {
		model = c.cfg.Model
	}
	usage.FromContext(ctx).Track(ctx, model, c.endpoint(), u.PromptTokens, u.CompletionTokens)
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// SetModel changes the model used for completions.
func (c *Client) SetModel(model string) {
	c.cfg.Model = model
}

func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.cfg.MinInterval {
		time.Sleep(c.cfg.MinInterval - elapsed)
	}
	c.lastRequest = time.Now()
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	t := time.NewTimer(c.cfg.RetryBase * time.Duration(1<<uint(attempt-1)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) newRequest(ctx context.Context, body chatRequest) (*http.Request, error) {
	if c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("inference base url not configured")
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range c.cfg.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// do sends body with retries and returns the first non-retryable response.
// The caller owns resp.Body.
func (c *Client) do(ctx context.Context, body chatRequest) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, err
		}
		c.throttle()

		req, err := c.newRequest(ctx, body)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			logging.InferenceWarn("Attempt %d to %s failed: %v", attempt+1, c.cfg.BaseURL, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(raw)))
			logging.InferenceWarn("Attempt %d rate limited", attempt+1)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// APIError is a non-200, non-429 reply.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Chat sends messages and returns the reply.
func (c *Client) Chat(ctx context.Context, messages []Message) (*Completion, error) {
	start := time.Now()
	logging.InferenceDebug("Chat: model=%s messages=%d", c.cfg.Model, len(messages))

	resp, err := c.do(ctx, chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		logging.InferenceError("Chat failed after %v: %v", time.Since(start), err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no completion returned")
	}

	out := &Completion{
		Content: strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:   parsed.Model,
		Usage:   parsed.Usage,
	}
	c.trackUsage(ctx, parsed.Model, parsed.Usage)
	logging.Inference("Chat completed in %v (response_len=%d)", time.Since(start), len(out.Content))
	return out, nil
}

// Complete is Chat with an optional system prompt and a single user turn.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	var msgs []Message
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})
	out, err := c.Chat(ctx, msgs)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// Stream sends messages with SSE streaming. Deltas arrive on the first
// channel; the error channel yields at most one error. Both close when the
// stream ends.
func (c *Client) Stream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		start := time.Now()
		resp, err := c.do(ctx, chatRequest{
			Model:         c.cfg.Model,
			Messages:      messages,
			MaxTokens:     c.cfg.MaxTokens,
			Temperature:   c.cfg.Temperature,
			Stream:        true,
			StreamOptions: &streamOptions{IncludeUsage: true},
		})
		if err != nil {
			errorChan <- err
			return
		}
		defer resp.Body.Close()

		model, u, err := readSSE(ctx, resp.Body, contentChan)
		c.trackUsage(ctx, model, u)
		if err != nil {
			logging.InferenceError("Stream error after %v: %v", time.Since(start), err)
			errorChan <- err
			return
		}
		logging.Inference("Stream completed in %v", time.Since(start))
	}()

	return contentChan, errorChan
}

// readSSE forwards content deltas to out and returns the model and the
// usage block, when the server sends one.
func readSSE(ctx context.Context, r io.Reader, out chan<- string) (string, *Usage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		model string
		u     *Usage
	)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return model, u, nil
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return model, u, fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			u = chunk.Usage
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case out <- chunk.Choices[0].Delta.Content:
		case <-ctx.Done():
			return model, u, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return model, u, ctx.Err()
		}
		return model, u, fmt.Errorf("stream error: %w", err)
	}
	return model, u, nil
}
