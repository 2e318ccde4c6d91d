// Package proof submits verified-computing proof requests to LazAI nodes.
package proof

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

// Request is the body a verified computing node expects on POST /proof.
type Request struct {
	JobID          *big.Int `json:"job_id"`
	FileID         *big.Int `json:"file_id"`
	FileURL        string   `json:"file_url"`
	EncryptionKey  string   `json:"encryption_key"`
	EncryptionSeed string   `json:"encryption_seed"`
	ProofURL       *string  `json:"proof_url"`
}

// NodeError is returned for a non-200 reply from the node.
type NodeError struct {
	StatusCode int
	// Body is the decoded JSON reply, or the raw text when it is not JSON.
	Body interface{}
}

func (e *NodeError) Error() string {
	switch b := e.Body.(type) {
	case string:
		return fmt.Sprintf("proof node returned %d: %s", e.StatusCode, b)
	default:
		raw, _ := json.Marshal(b)
		return fmt.Sprintf("proof node returned %d: %s", e.StatusCode, raw)
	}
}

// NodeClient posts proof requests.
type NodeClient struct {
	httpClient *http.Client
}

// NewNodeClient creates a client with the given request timeout.
func NewNodeClient(timeout time.Duration) *NodeClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &NodeClient{httpClient: &http.Client{Timeout: timeout}}
}

// Submit posts req to <nodeURL>/proof. Only a 200 reply counts as accepted.
func (c *NodeClient) Submit(ctx context.Context, nodeURL string, req Request) error {
	timer := logging.StartTimer(logging.CategoryProof, "Submit")
	defer timer.Stop()

	if nodeURL == "" {
		return fmt.Errorf("proof node url is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal proof request: %w", err)
	}

	endpoint := strings.TrimRight(nodeURL, "/") + "/proof"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logging.Proof("Submitting proof request for job %s (file %s) to %s", req.JobID, req.FileID, endpoint)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logging.ProofError("Proof request to %s failed: %v", endpoint, err)
		return fmt.Errorf("proof request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		nodeErr := &NodeError{StatusCode: resp.StatusCode}
		var decoded interface{}
		if err := json.Unmarshal(respBody, &decoded); err == nil {
			nodeErr.Body = decoded
		} else {
			nodeErr.Body = strings.TrimSpace(string(respBody))
		}
		logging.ProofError("%v", nodeErr)
		return nodeErr
	}

	logging.Proof("Proof request accepted for job %s", req.JobID)
	return nil
}
