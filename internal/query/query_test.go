package query

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query/rag", r.URL.Path)
		assert.Equal(t, "0xuser", r.Header.Get("X-LazAI-User"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 2411, body["file_id"])
		assert.Equal(t, "summarise the best character?", body["query"])
		_, hasLimit := body["limit"]
		assert.False(t, hasLimit)

		_, _ = io.WriteString(w, `{"data":["plain",{"content":"from content"},{"score":0.3}]}`)
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("X-LazAI-User", "0xuser")
	resp, err := NewClient(time.Second).RAG(context.Background(), srv.URL, h, RAGRequest{
		FileID: big.NewInt(2411),
		Query:  "summarise the best character?",
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, []string{"plain", "from content", `{"score":0.3}`}, resp.Texts())
	assert.Contains(t, string(resp.Raw), `"data"`)
}

func TestRAG_NodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(time.Second).RAG(context.Background(), srv.URL, nil, RAGRequest{FileID: big.NewInt(1), Query: "q"})
	var qErr *Error
	require.True(t, errors.As(err, &qErr))
	assert.Equal(t, http.StatusUnauthorized, qErr.StatusCode)
	assert.Equal(t, "invalid signature", qErr.Body)
}

func TestRAG_Validation(t *testing.T) {
	c := NewClient(0)
	_, err := c.RAG(context.Background(), "", nil, RAGRequest{FileID: big.NewInt(1), Query: "q"})
	assert.Error(t, err)
	_, err = c.RAG(context.Background(), "http://x", nil, RAGRequest{Query: "q"})
	assert.Error(t, err)
	_, err = c.RAG(context.Background(), "http://x", nil, RAGRequest{FileID: big.NewInt(1), Query: "  "})
	assert.Error(t, err)
}
