package hub

import (
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"lazkit/internal/ledger"
	"lazkit/internal/logging"
	"lazkit/internal/query"
)

// insightQueries lists the retrieval queries run for each analysis type.
var insightQueries = map[string][]string{
	"summary":      {"overview of the content", "main topics", "key facts"},
	"skills":       {"skills and abilities", "experience", "tools used"},
	"technologies": {"technologies and frameworks", "programming languages", "platforms and infrastructure"},
	"interests":    {"interests and hobbies", "goals", "preferences"},
}

// AnalysisTypes returns the supported analysis types in sorted order.
func AnalysisTypes() []string {
	out := make([]string, 0, len(insightQueries))
	for k := range insightQueries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const insightsSystem = "You are a data analyst. Answer only from the provided excerpts. " +
	"If the excerpts do not cover the question, say so."

type insightsRequest struct {
	FileID       *big.Int `json:"file_id"`
	AnalysisType string   `json:"analysis_type"`
}

type insightsResponse struct {
	FileID       string   `json:"file_id"`
	AnalysisType string   `json:"analysis_type"`
	Insight      string   `json:"insight"`
	Sources      []string `json:"sources"`
	TookMs       int64    `json:"took_ms"`
}

func (s *Server) handleInsights(c *gin.Context) {
	retriever := s.deps.InsightRetriever
	if retriever == nil {
		retriever = s.deps.Retriever
	}
	if retriever == nil || s.deps.Completer == nil {
		errorJSON(c, http.StatusServiceUnavailable, "insights_unavailable", "insights need both a query node and an inference node")
		return
	}

	var req insightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.FileID == nil || req.FileID.Sign() <= 0 {
		errorJSON(c, http.StatusBadRequest, "invalid_request", "file_id must be a positive integer")
		return
	}
	if req.AnalysisType == "" {
		req.AnalysisType = "summary"
	}
	queries, ok := insightQueries[req.AnalysisType]
	if !ok {
		errorJSON(c, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("analysis_type must be one of %s", strings.Join(AnalysisTypes(), ", ")))
		return
	}

	start := time.Now()
	ctx := c.Request.Context()
	rec := &ledger.QueryRecord{FileID: req.FileID.String(), Query: req.AnalysisType, Kind: ledger.KindInsights}
	defer func() {
		rec.Latency = time.Since(start)
		s.record(ctx, rec)
	}()

	results := make([][]string, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			resp, err := retriever.Retrieve(gctx, query.RAGRequest{
				FileID: req.FileID,
				Query:  q,
				Limit:  s.cfg.DefaultLimit,
			})
			if err != nil {
				return fmt.Errorf("retrieve %q: %w", q, err)
			}
			results[i] = resp.Texts()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		rec.Error = err.Error()
		logging.HubWarn("Insight retrieval for file %s failed: %v", req.FileID, err)
		errorJSON(c, upstreamStatus(err), "query_failed", err.Error())
		return
	}

	sources := dedupe(results)
	rec.ResultCount = len(sources)
	if len(sources) == 0 {
		c.JSON(http.StatusOK, insightsResponse{
			FileID:       req.FileID.String(),
			AnalysisType: req.AnalysisType,
			Insight:      "No relevant content found for this file.",
			Sources:      sources,
			TookMs:       time.Since(start).Milliseconds(),
		})
		return
	}

	insight, err := s.deps.Completer.Complete(ctx, req.FileID, insightsSystem, insightPrompt(req.AnalysisType, sources))
	if err != nil {
		rec.Error = err.Error()
		logging.HubWarn("Insight completion for file %s failed: %v", req.FileID, err)
		errorJSON(c, upstreamStatus(err), "inference_failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, insightsResponse{
		FileID:       req.FileID.String(),
		AnalysisType: req.AnalysisType,
		Insight:      strings.TrimSpace(insight),
		Sources:      sources,
		TookMs:       time.Since(start).Milliseconds(),
	})
}

func dedupe(groups [][]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, g := range groups {
		for _, t := range g {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func insightPrompt(kind string, sources []string) string {
	var b strings.Builder
	switch kind {
	case "summary":
		b.WriteString("Write a concise summary of the data described by these excerpts.\n\n")
	default:
		fmt.Fprintf(&b, "List the %s evident in these excerpts, one per line with a short justification.\n\n", kind)
	}
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, src)
	}
	return b.String()
}
