package hub

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lazkit/internal/ledger"
	"lazkit/internal/logging"
	"lazkit/internal/query"
)

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, fileID *big.Int, system, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, fileID *big.Int, system, prompt string) (string, error) {
	return f(ctx, fileID, system, prompt)
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

// upstreamStatus maps a failed node call to the status the hub reports.
func upstreamStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) record(ctx context.Context, q *ledger.QueryRecord) {
	if s.deps.Ledger == nil {
		return
	}
	if err := s.deps.Ledger.RecordQuery(ctx, q); err != nil {
		logging.HubWarn("Failed to record %s query: %v", q.Kind, err)
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Wallet string `json:"wallet,omitempty"`
	Chain  string `json:"chain"`
	Ledger string `json:"ledger"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{
		Status: "ok",
		Wallet: s.cfg.Wallet,
		Chain:  "unconfigured",
		Ledger: "disabled",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}

	if s.deps.ChainCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		err := s.deps.ChainCheck(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.Chain = err.Error()
		} else {
			resp.Chain = "ok"
		}
	}
	if s.deps.Ledger != nil {
		if err := s.deps.Ledger.Ping(); err != nil {
			resp.Status = "degraded"
			resp.Ledger = err.Error()
		} else {
			resp.Ledger = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

type ragRequest struct {
	FileID *big.Int `json:"file_id"`
	Query  string   `json:"query"`
	Limit  int      `json:"limit"`
}

type ragResponse struct {
	FileID  string   `json:"file_id"`
	Query   string   `json:"query"`
	Results []string `json:"results"`
	TookMs  int64    `json:"took_ms"`
}

func (s *Server) handleRAG(c *gin.Context) {
	if s.deps.Retriever == nil {
		errorJSON(c, http.StatusServiceUnavailable, "query_node_unavailable", "no query node configured")
		return
	}

	var req ragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.FileID == nil || req.FileID.Sign() <= 0 {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "file_id must be a positive integer")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}

	start := time.Now()
	resp, err := s.deps.Retriever.Retrieve(c.Request.Context(), query.RAGRequest{
		FileID: req.FileID,
		Query:  req.Query,
		Limit:  req.Limit,
	})
	if err != nil {
		logging.HubWarn("RAG query for file %s failed: %v", req.FileID, err)
		errorJSON(c, upstreamStatus(err), "query_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, ragResponse{
		FileID:  req.FileID.String(),
		Query:   req.Query,
		Results: resp.Texts(),
		TookMs:  time.Since(start).Milliseconds(),
	})
}

type localRequest struct {
	Content    string `json:"content"`
	Query      string `json:"query"`
	Collection string `json:"collection"`
	Limit      int    `json:"limit"`
}

type localResponse struct {
	Collection string  `json:"collection"`
	Query      string  `json:"query"`
	Chunks     int     `json:"chunks"`
	Results    []Match `json:"results"`
}

func (s *Server) handleLocal(c *gin.Context) {
	var req localRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if req.Collection == "" {
		req.Collection = "default"
	}
	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}

	start := time.Now()
	if strings.TrimSpace(req.Content) != "" {
		s.local.Put(req.Collection, req.Content)
	}
	chunks, ok := s.local.Get(req.Collection)
	if !ok {
		errorJSON(c, http.StatusNotFound, "collection_not_found", "no content indexed for collection "+req.Collection)
		return
	}
	matches := Search(chunks, req.Query, req.Limit)

	s.record(c.Request.Context(), &ledger.QueryRecord{
		Query:       req.Query,
		Kind:        ledger.KindLocal,
		ResultCount: len(matches),
		Latency:     time.Since(start),
	})

	c.JSON(http.StatusOK, localResponse{
		Collection: req.Collection,
		Query:      req.Query,
		Chunks:     len(chunks),
		Results:    matches,
	})
}

func (s *Server) handleTrends(c *gin.Context) {
	if s.deps.Ledger == nil {
		errorJSON(c, http.StatusServiceUnavailable, "ledger_disabled", "no ledger configured")
		return
	}

	window := 7 * 24 * time.Hour
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errorJSON(c, http.StatusBadRequest, "invalid_request", "since must be a positive duration such as 24h")
			return
		}
		window = d
	}

	trends, err := s.deps.Ledger.QueryTrends(c.Request.Context(), time.Now().Add(-window), 5)
	if err != nil {
		logging.HubWarn("Trend query failed: %v", err)
		errorJSON(c, http.StatusInternalServerError, "ledger_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, trends)
}
