package inference

import "time"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds configuration for an OpenAI-compatible chat client.
type Config struct {
	// BaseURL is the API root, e.g. "<node url>/v1" or "https://api.groq.com/openai/v1".
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	// Temperature is omitted from requests when nil. Zero is sent as zero.
	Temperature *float64
	// Headers are added to every request; settlement headers go here.
	Headers map[string][]string
	// MaxRetries bounds retries on 429 and transport errors (3 when zero).
	MaxRetries int
	// RetryBase is the first backoff delay, doubled per attempt (1s when zero).
	RetryBase time.Duration
	// MinInterval spaces consecutive requests (100ms when zero).
	MinInterval time.Duration
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

// Usage is the token accounting reported by the node.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta,omitempty"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Completion is a finished chat reply.
type Completion struct {
	Content string
	Model   string
	Usage   *Usage
}
