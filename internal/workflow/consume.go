package workflow

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lazkit/internal/inference"
	"lazkit/internal/ledger"
	"lazkit/internal/logging"
	"lazkit/internal/query"
	"lazkit/internal/settlement"
	"lazkit/internal/wallet"
)

// Inferer builds settlement-signed agents bound to a LazAI inference node.
type Inferer struct {
	Wallet *wallet.Wallet
	Chain  Chain
	// Client holds model and transport settings. Headers are filled per
	// node. A preset BaseURL skips the on-chain node lookup.
	Client inference.Config
	// Ledger, when set, receives prompts sent through RecordedAgent.
	Ledger QueryRecorder
}

// Agent resolves node's URL and returns an agent that talks to <url>/v1.
// fileID may be nil.
func (i *Inferer) Agent(ctx context.Context, node common.Address, fileID *big.Int, preamble string) (*inference.Agent, error) {
	cfg := i.Client
	if cfg.BaseURL == "" {
		n, err := i.Chain.GetInferenceNode(ctx, node)
		if err != nil {
			return nil, stepErr(StepResolveNode, err)
		}
		cfg.BaseURL = strings.TrimRight(n.URL, "/") + "/v1"
	}
	h, err := settlement.RequestHeaders(i.Wallet, node, settlement.Options{FileID: fileID, Kind: "inference"})
	if err != nil {
		return nil, stepErr(StepHeaders, err)
	}
	cfg.Headers = h
	logging.Workflow("Inference agent bound to %s (model %s)", cfg.BaseURL, cfg.Model)
	return inference.NewAgent(inference.NewClient(cfg), preamble), nil
}

// RecordedAgent is an inference agent whose prompts are written to the
// ledger as inference queries.
type RecordedAgent struct {
	*inference.Agent
	Ledger QueryRecorder
	FileID *big.Int
}

// RecordedAgent is Agent with ledger recording.
func (i *Inferer) RecordedAgent(ctx context.Context, node common.Address, fileID *big.Int, preamble string) (*RecordedAgent, error) {
	agent, err := i.Agent(ctx, node, fileID, preamble)
	if err != nil {
		return nil, err
	}
	return &RecordedAgent{Agent: agent, Ledger: i.Ledger, FileID: fileID}, nil
}

func (a *RecordedAgent) Prompt(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := a.Agent.Prompt(ctx, prompt)
	a.record(ctx, prompt, start, err)
	return out, err
}

func (a *RecordedAgent) PromptStream(ctx context.Context, prompt string, onDelta func(string)) (string, error) {
	start := time.Now()
	out, err := a.Agent.PromptStream(ctx, prompt, onDelta)
	a.record(ctx, prompt, start, err)
	return out, err
}

func (a *RecordedAgent) record(ctx context.Context, prompt string, start time.Time, err error) {
	q := &ledger.QueryRecord{Query: prompt, Kind: ledger.KindInference, Latency: time.Since(start)}
	if a.FileID != nil {
		q.FileID = a.FileID.String()
	}
	if err != nil {
		q.Error = err.Error()
	} else {
		q.ResultCount = 1
	}
	recordQuery(ctx, a.Ledger, q)
}

// Retriever runs settlement-signed RAG queries against a LazAI query node.
type Retriever struct {
	Wallet *wallet.Wallet
	Chain  Chain
	Query  *query.Client
	Ledger QueryRecorder
	// BaseURL, when set, is used instead of the node's registered URL.
	BaseURL string
}

// Retrieve resolves node's URL and posts the query. Query headers carry no
// file id.
func (r *Retriever) Retrieve(ctx context.Context, node common.Address, req query.RAGRequest) (*query.RAGResponse, error) {
	start := time.Now()
	resp, err := r.retrieve(ctx, node, req)

	q := &ledger.QueryRecord{Query: req.Query, Kind: ledger.KindRAG, Latency: time.Since(start)}
	if req.FileID != nil {
		q.FileID = req.FileID.String()
	}
	if err != nil {
		q.Error = err.Error()
	} else {
		q.ResultCount = len(resp.Data)
	}
	recordQuery(ctx, r.Ledger, q)
	return resp, err
}

// Unrecorded returns a copy of r that writes nothing to the ledger.
func (r *Retriever) Unrecorded() *Retriever {
	c := *r
	c.Ledger = nil
	return &c
}

func (r *Retriever) retrieve(ctx context.Context, node common.Address, req query.RAGRequest) (*query.RAGResponse, error) {
	url := r.BaseURL
	if url == "" {
		n, err := r.Chain.GetQueryNode(ctx, node)
		if err != nil {
			return nil, stepErr(StepResolveNode, err)
		}
		url = n.URL
	}
	h, err := settlement.RequestHeaders(r.Wallet, node, settlement.Options{Kind: "query"})
	if err != nil {
		return nil, stepErr(StepHeaders, err)
	}
	resp, err := r.Query.RAG(ctx, url, h, req)
	if err != nil {
		return nil, stepErr(StepQuery, err)
	}
	return resp, nil
}
