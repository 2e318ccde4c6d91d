// Package query calls the retrieval endpoint of LazAI query nodes.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"lazkit/internal/logging"
)

// RAGRequest is the body of POST /query/rag.
type RAGRequest struct {
	FileID *big.Int `json:"file_id"`
	Query  string   `json:"query"`
	Limit  int      `json:"limit,omitempty"`
}

// RAGResponse holds the retrieved items. Items are opaque to lazkit.
type RAGResponse struct {
	Data []json.RawMessage `json:"data"`
	// Raw is the unmodified response body.
	Raw json.RawMessage `json:"-"`
}

// Texts returns a best-effort string rendering of each item: plain strings
// as-is, objects by their "content", "text" or "document" field, anything
// else as compact JSON.
func (r *RAGResponse) Texts() []string {
	out := make([]string, 0, len(r.Data))
	for _, item := range r.Data {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(item, &obj); err == nil {
			found := false
			for _, key := range []string{"content", "text", "document"} {
				if v, ok := obj[key].(string); ok {
					out = append(out, v)
					found = true
					break
				}
			}
			if found {
				continue
			}
		}
		out = append(out, string(item))
	}
	return out
}

// Error is a non-200 reply from a query node.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("query node returned %d: %s", e.StatusCode, e.Body)
}

// Client posts retrieval queries.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// RAG posts req to <nodeURL>/query/rag with the given settlement headers.
func (c *Client) RAG(ctx context.Context, nodeURL string, headers http.Header, req RAGRequest) (*RAGResponse, error) {
	timer := logging.StartTimer(logging.CategoryQuery, "RAG")
	defer timer.Stop()

	if nodeURL == "" {
		return nil, fmt.Errorf("query node url is empty")
	}
	if req.FileID == nil {
		return nil, fmt.Errorf("file id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}
	endpoint := strings.TrimRight(nodeURL, "/") + "/query/rag"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logging.QueryError("RAG request to %s failed: %v", endpoint, err)
		return nil, fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		qErr := &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		logging.QueryError("%v", qErr)
		return nil, qErr
	}

	out := &RAGResponse{Raw: raw}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	logging.Query("RAG for file %s returned %d items", req.FileID, len(out.Data))
	return out, nil
}
