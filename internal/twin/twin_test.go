package twin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const characterJSON = `{
  "name": "Ada",
  "bio": ["Builder.", "Hacker."],
  "lore": ["Won a hackathon."],
  "adjectives": ["curious", "kind"],
  "topics": ["web3", "zk"],
  "style": {"all": ["short"], "chat": ["casual"], "post": ["punchy"]},
  "messageExamples": [[{"user": "bob", "content": {"text": "gm"}}, {"user": "Ada", "content": {"text": "gm ser"}}]],
  "postExamples": ["ship it", "again"]
}`

func writeCharacter(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "character.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestPreamble(t *testing.T) {
	c, err := LoadCharacter(writeCharacter(t, characterJSON))
	require.NoError(t, err)

	p := Preamble(c)
	assert.True(t, strings.HasPrefix(p, "You are Ada."))
	for _, want := range []string{
		"BIOGRAPHY:\nBuilder. Hacker.\n",
		"KEY FACTS & ACHIEVEMENTS:\nWon a hackathon.\n",
		"PERSONALITY TRAITS:\ncurious, kind\n",
		"INTERESTS & EXPERTISE:\nweb3, zk\n",
		"General: short\nChat: casual\nPosts: punchy\n",
		"CONVERSATION EXAMPLES:\nbob: gm\nAda: gm ser\n",
		"POST EXAMPLES:\nship it\nagain\n",
	} {
		assert.Contains(t, p, want)
	}
}

func TestPreamble_MissingFields(t *testing.T) {
	c, err := LoadCharacter(writeCharacter(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, "Twin", c.Name)

	p := Preamble(c)
	assert.Contains(t, p, "BIOGRAPHY:\n\n")
	assert.Contains(t, p, "General: \n")
}

func TestLoadCharacter_Errors(t *testing.T) {
	_, err := LoadCharacter(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	_, err = LoadCharacter(writeCharacter(t, "{not json"))
	assert.Error(t, err)
}

type scriptedAgent struct {
	prompts []string
	fail    string
}

func (a *scriptedAgent) Prompt(_ context.Context, text string) (string, error) {
	a.prompts = append(a.prompts, text)
	if text == a.fail {
		return "", errors.New("node unavailable")
	}
	return "re: " + text, nil
}

func TestSession_RunUntilExit(t *testing.T) {
	agent := &scriptedAgent{fail: "broken"}
	var out bytes.Buffer
	s := &Session{
		Name:  "Ada",
		Agent: agent,
		In:    strings.NewReader("hello\n\nbroken\n  EXIT  \nnever read\n"),
		Out:   &out,
	}

	turns, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, turns)
	assert.Equal(t, []string{"hello", "broken"}, agent.prompts)
	assert.Contains(t, out.String(), "Ada: re: hello")
	assert.Contains(t, out.String(), "node unavailable")
	assert.Contains(t, out.String(), "Goodbye from Ada.")
}

func TestSession_EOF(t *testing.T) {
	agent := &scriptedAgent{}
	var out bytes.Buffer
	turns, err := (&Session{Name: "Ada", Agent: agent, In: strings.NewReader("one\ntwo"), Out: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, turns)
}

func TestSession_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Session{Name: "Ada", Agent: &scriptedAgent{}, In: strings.NewReader("hi\n"), Out: &bytes.Buffer{}}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
