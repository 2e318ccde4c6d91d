package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lazkit/internal/usage"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:     url + "/v1",
		Model:       "llama-3.3-70b-versatile",
		Timeout:     5 * time.Second,
		RetryBase:   time.Millisecond,
		MinInterval: time.Millisecond,
	}
}

func replyJSON(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"id":"c1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, content)
}

func TestChat_SendsHeadersAndMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "0xabc", r.Header.Get("X-LazAI-User"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.False(t, req.Stream)

		replyJSON(w, "  hello there ")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Headers = map[string][]string{"X-LazAI-User": {"0xabc"}}
	c := NewClient(cfg)

	out, err := c.Chat(context.Background(), []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out.Content)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 5, out.Usage.TotalTokens)
}

func TestChat_Temperature(t *testing.T) {
	var bodies []map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		replyJSON(w, "ok")
	}))
	defer srv.Close()

	zero := 0.0
	cfg := testConfig(srv.URL)
	cfg.Temperature = &zero
	_, err := NewClient(cfg).Complete(context.Background(), "", "hi")
	require.NoError(t, err)

	_, err = NewClient(testConfig(srv.URL)).Complete(context.Background(), "", "hi")
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.JSONEq(t, "0", string(bodies[0]["temperature"]))
	assert.NotContains(t, bodies[1], "temperature")
}

func TestChat_BearerKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))
		replyJSON(w, "ok")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = "gsk_test"
	out, err := NewClient(cfg).Complete(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestChat_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		replyJSON(w, "finally")
	}))
	defer srv.Close()

	out, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, "finally", out)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestChat_MaxRetriesExceeded(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestChat_APIErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"detail":"insufficient balance"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), "", "hi")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "insufficient balance")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), "", "hi")
	assert.EqualError(t, err, "no completion returned")
}

func TestChat_NoBaseURL(t *testing.T) {
	_, err := NewClient(Config{}).Complete(context.Background(), "", "hi")
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Hel", "lo", ""} {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		_, _ = io.WriteString(w, ": keepalive\n\ndata: not-json\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	contentChan, errorChan := NewClient(testConfig(srv.URL)).Stream(context.Background(), []Message{{Role: "user", Content: "hi"}})
	var got string
	for d := range contentChan {
		got += d
	}
	assert.NoError(t, <-errorChan)
	assert.Equal(t, "Hello", got)
}

func TestStream_ErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"error\":{\"message\":\"node overloaded\"}}\n\n")
	}))
	defer srv.Close()

	contentChan, errorChan := NewClient(testConfig(srv.URL)).Stream(context.Background(), nil)
	for range contentChan {
	}
	err := <-errorChan
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node overloaded")
}

func TestChat_TracksUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		replyJSON(w, "ok")
	}))
	defer srv.Close()

	tracker, err := usage.NewTracker(t.TempDir())
	require.NoError(t, err)
	defer tracker.Close()

	ctx := usage.WithOperation(usage.NewContext(context.Background(), tracker), "infer")
	_, err = NewClient(testConfig(srv.URL)).Complete(ctx, "", "hi")
	require.NoError(t, err)

	u, _ := url.Parse(srv.URL)
	stats := tracker.Stats()
	assert.EqualValues(t, 5, stats.Total.Total)
	assert.EqualValues(t, 5, stats.ByModel["m"].Total)
	assert.EqualValues(t, 5, stats.ByEndpoint[u.Host].Total)
	assert.EqualValues(t, 5, stats.ByOperation["infer"].Total)
}

func TestStream_TracksUsageChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"model\":\"m\",\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":1,\"total_tokens\":5}}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	tracker, err := usage.NewTracker(t.TempDir())
	require.NoError(t, err)
	defer tracker.Close()

	ctx := usage.NewContext(context.Background(), tracker)
	contentChan, errorChan := NewClient(testConfig(srv.URL)).Stream(ctx, nil)
	for range contentChan {
	}
	require.NoError(t, <-errorChan)

	stats := tracker.Stats()
	assert.Equal(t, usage.TokenCounts{Input: 4, Output: 1, Total: 5}, stats.Total)
	assert.EqualValues(t, 5, stats.ByOperation["chat"].Total)
}
