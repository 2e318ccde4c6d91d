package inference

import (
	"context"
	"strings"
	"sync"
)

// Agent keeps a system preamble and the running conversation for a Client.
type Agent struct {
	client   *Client
	preamble string

	mu      sync.Mutex
	history []Message
}

// NewAgent binds a preamble to client.
func NewAgent(client *Client, preamble string) *Agent {
	return &Agent{client: client, preamble: preamble}
}

// Model returns the model the agent prompts.
func (a *Agent) Model() string {
	return a.client.Model()
}

// Preamble returns the system prompt.
func (a *Agent) Preamble() string {
	return a.preamble
}

func (a *Agent) messages(prompt string) []Message {
	msgs := make([]Message, 0, len(a.history)+2)
	if strings.TrimSpace(a.preamble) != "" {
		msgs = append(msgs, Message{Role: "system", Content: a.preamble})
	}
	msgs = append(msgs, a.history...)
	return append(msgs, Message{Role: "user", Content: prompt})
}

// Prompt sends prompt with the preamble and history, then records the exchange.
// A failed prompt leaves the history untouched.
func (a *Agent) Prompt(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out, err := a.client.Chat(ctx, a.messages(prompt))
	if err != nil {
		return "", err
	}
	a.history = append(a.history,
		Message{Role: "user", Content: prompt},
		Message{Role: "assistant", Content: out.Content},
	)
	return out.Content, nil
}

// PromptStream streams the reply to prompt and records the exchange once the
// stream finishes cleanly.
func (a *Agent) PromptStream(ctx context.Context, prompt string, onDelta func(string)) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	contentChan, errorChan := a.client.Stream(ctx, a.messages(prompt))
	var sb strings.Builder
	for delta := range contentChan {
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := <-errorChan; err != nil {
		return "", err
	}

	reply := strings.TrimSpace(sb.String())
	a.history = append(a.history,
		Message{Role: "user", Content: prompt},
		Message{Role: "assistant", Content: reply},
	)
	return reply, nil
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.history))
	copy(out, a.history)
	return out
}

// Reset clears the conversation.
func (a *Agent) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}
