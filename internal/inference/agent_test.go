package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer replies with the number of messages it received.
func echoServer(t *testing.T, seen *[][]Message) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*seen = append(*seen, req.Messages)
		if req.Stream {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"n=%d\"}}]}\n\ndata: [DONE]\n\n", len(req.Messages))
			return
		}
		replyJSON(w, fmt.Sprintf("n=%d", len(req.Messages)))
	}))
}

func TestAgent_PromptKeepsHistory(t *testing.T) {
	var seen [][]Message
	srv := echoServer(t, &seen)
	defer srv.Close()

	a := NewAgent(NewClient(testConfig(srv.URL)), "You are Ada.")

	out, err := a.Prompt(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "n=2", out)

	out, err = a.Prompt(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "n=4", out)

	require.Len(t, seen, 2)
	assert.Equal(t, Message{Role: "system", Content: "You are Ada."}, seen[1][0])
	assert.Equal(t, Message{Role: "assistant", Content: "n=2"}, seen[1][2])
	assert.Len(t, a.History(), 4)

	a.Reset()
	assert.Empty(t, a.History())
	out, err = a.Prompt(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "n=2", out)
}

func TestAgent_NoPreamble(t *testing.T) {
	var seen [][]Message
	srv := echoServer(t, &seen)
	defer srv.Close()

	out, err := NewAgent(NewClient(testConfig(srv.URL)), "").Prompt(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "n=1", out)
}

func TestAgent_FailedPromptLeavesHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()

	a := NewAgent(NewClient(testConfig(srv.URL)), "p")
	_, err := a.Prompt(context.Background(), "hi")
	require.Error(t, err)
	assert.Empty(t, a.History())
}

func TestAgent_PromptStream(t *testing.T) {
	var seen [][]Message
	srv := echoServer(t, &seen)
	defer srv.Close()

	a := NewAgent(NewClient(testConfig(srv.URL)), "p")
	var deltas []string
	out, err := a.PromptStream(context.Background(), "hi", func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	assert.Equal(t, "n=2", out)
	assert.Equal(t, []string{"n=2"}, deltas)
	assert.Len(t, a.History(), 2)
}
