package twin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"lazkit/internal/logging"
)

// Prompter answers one user turn. *inference.Agent satisfies it.
type Prompter interface {
	Prompt(ctx context.Context, text string) (string, error)
}

// Session is a read-eval loop between a terminal and a persona.
type Session struct {
	Name   string
	Agent  Prompter
	In     io.Reader
	Out    io.Writer
	Prompt string
}

// Run reads lines until "exit" or EOF. Prompt failures are printed and the
// loop continues. It returns the number of answered turns.
func (s *Session) Run(ctx context.Context) (int, error) {
	prompt := s.Prompt
	if prompt == "" {
		prompt = "You: "
	}
	fmt.Fprintf(s.Out, "%s is ready. Type \"exit\" to end the conversation.\n\n", s.Name)

	scanner := bufio.NewScanner(s.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	turns := 0
	for {
		if err := ctx.Err(); err != nil {
			return turns, err
		}
		fmt.Fprint(s.Out, prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return turns, fmt.Errorf("failed to read input: %w", err)
			}
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "exit") {
			break
		}
		if line == "" {
			continue
		}

		reply, err := s.Agent.Prompt(ctx, line)
		if err != nil {
			logging.Twin("Prompt failed: %v", err)
			fmt.Fprintf(s.Out, "\nError: failed to get response: %v\n\n", err)
			continue
		}
		turns++
		fmt.Fprintf(s.Out, "\n%s: %s\n\n", s.Name, reply)
	}
	fmt.Fprintf(s.Out, "\nGoodbye from %s.\n", s.Name)
	logging.Twin("Session with %s ended after %d turns", s.Name, turns)
	return turns, nil
}
