// Package twin turns a character file into a chat persona and runs a
// terminal conversation with it.
package twin

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Character is an eliza-style character.json.
type Character struct {
	Name            string             `json:"name"`
	Username        string             `json:"username,omitempty"`
	Bio             []string           `json:"bio"`
	Lore            []string           `json:"lore"`
	Adjectives      []string           `json:"adjectives"`
	Topics          []string           `json:"topics"`
	Style           Style              `json:"style"`
	MessageExamples [][]ExampleMessage `json:"messageExamples"`
	PostExamples    []string           `json:"postExamples"`
}

// Style holds the character's writing guidance.
type Style struct {
	All  []string `json:"all"`
	Chat []string `json:"chat"`
	Post []string `json:"post"`
}

// ExampleMessage is one line of a sample conversation.
type ExampleMessage struct {
	User    string         `json:"user"`
	Content MessageContent `json:"content"`
}

// MessageContent is the payload of an example message.
type MessageContent struct {
	Text string `json:"text"`
}

// LoadCharacter reads a character file.
func LoadCharacter(path string) (*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character file: %w", err)
	}
	var c Character
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse character file %s: %w", path, err)
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "Twin"
	}
	return &c, nil
}

// Preamble renders the character as a system prompt.
func Preamble(c *Character) string {
	var examples []string
	for _, convo := range c.MessageExamples {
		lines := make([]string, 0, len(convo))
		for _, m := range convo {
			lines = append(lines, fmt.Sprintf("%s: %s", m.User, m.Content.Text))
		}
		examples = append(examples, strings.Join(lines, "\n"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Here's everything about you:\n\n", c.Name)
	fmt.Fprintf(&b, "BIOGRAPHY:\n%s\n\n", strings.Join(c.Bio, " "))
	fmt.Fprintf(&b, "KEY FACTS & ACHIEVEMENTS:\n%s\n\n", strings.Join(c.Lore, " "))
	fmt.Fprintf(&b, "PERSONALITY TRAITS:\n%s\n\n", strings.Join(c.Adjectives, ", "))
	fmt.Fprintf(&b, "INTERESTS & EXPERTISE:\n%s\n\n", strings.Join(c.Topics, ", "))
	b.WriteString("COMMUNICATION STYLE:\n")
	fmt.Fprintf(&b, "General: %s\n", strings.Join(c.Style.All, " "))
	fmt.Fprintf(&b, "Chat: %s\n", strings.Join(c.Style.Chat, " "))
	fmt.Fprintf(&b, "Posts: %s\n\n", strings.Join(c.Style.Post, " "))
	fmt.Fprintf(&b, "CONVERSATION EXAMPLES:\n%s\n\n", strings.Join(examples, "\n\n"))
	fmt.Fprintf(&b, "POST EXAMPLES:\n%s\n\n", strings.Join(c.PostExamples, "\n"))
	fmt.Fprintf(&b, "Always respond as %s, in the voice described above.", c.Name)
	return b.String()
}
