package main

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lazkit/internal/hub"
	"lazkit/internal/query"
	"lazkit/internal/usage"
	"lazkit/internal/workflow"
)

var (
	hubListen string
	hubDocs   string
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve the intelligence hub HTTP API",
	Long: `Starts an HTTP server exposing:
  GET  /health
  POST /query/rag
  POST /query/local
  POST /analytics/insights
  GET  /analytics/trends
  GET  /metrics

RAG and insights calls are settlement-signed with the configured wallet and
go to the configured query and inference nodes.`,
	RunE: runHub,
}

func init() {
	hubCmd.Flags().StringVar(&hubListen, "listen", "", "Listen address (default: hub.listen)")
	hubCmd.Flags().StringVar(&hubDocs, "docs", "", "Directory of documents to serve as local collections (default: hub.docs_dir)")
}

// boundRetriever pins a workflow retriever to one query node.
type boundRetriever struct {
	r    *workflow.Retriever
	node common.Address
}

func (b boundRetriever) Retrieve(ctx context.Context, req query.RAGRequest) (*query.RAGResponse, error) {
	return b.r.Retrieve(ctx, b.node, req)
}

// inferCompleter answers with a fresh agent per call so each request gets
// its own settlement nonce.
func inferCompleter(inf *workflow.Inferer, node common.Address) hub.CompleterFunc {
	return func(ctx context.Context, fileID *big.Int, system, prompt string) (string, error) {
		ctx = usage.WithOperation(usage.NewContext(ctx, tracker), "insights")
		agent, err := inf.Agent(ctx, node, fileID, system)
		if err != nil {
			return "", err
		}
		return agent.Prompt(ctx, prompt)
	}
}

func runHub(cmd *cobra.Command, args []string) error {
	if hubListen != "" {
		cfg.Hub.Listen = hubListen
	}
	if hubDocs != "" {
		cfg.Hub.DocsDir = hubDocs
	}

	ctx, cancel := interactiveContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	deps := hub.Deps{
		Ledger: e.ledger,
		ChainCheck: func(ctx context.Context) error {
			_, err := e.chain.Balance(ctx)
			return err
		},
	}
	if node, err := nodeAddress("", cfg.Query.Node, "query"); err == nil {
		r := e.retriever()
		deps.Retriever = boundRetriever{r: r, node: node}
		deps.InsightRetriever = boundRetriever{r: r.Unrecorded(), node: node}
	} else {
		logger.Warn("RAG endpoints disabled", zap.Error(err))
	}
	if node, err := nodeAddress("", cfg.Inference.Node, "inference"); err == nil {
		deps.Completer = inferCompleter(e.inferer(), node)
	} else {
		logger.Warn("Insights disabled", zap.Error(err))
	}

	s := hub.NewServer(hub.Config{
		Listen:          cfg.Hub.Listen,
		CORSOrigins:     cfg.Hub.CORSOrigins,
		RateLimitRPS:    cfg.Hub.RateLimitRPS,
		RateLimitBurst:  cfg.Hub.RateLimitBurst,
		ReadTimeout:     cfg.GetHubReadTimeout(),
		WriteTimeout:    cfg.GetHubWriteTimeout(),
		ShutdownTimeout: cfg.GetHubShutdownTimeout(),
		DefaultLimit:    cfg.Query.Limit,
		Wallet:          e.wallet.Address().Hex(),
		DocsDir:         cfg.Hub.DocsDir,
	}, deps)

	logger.Info("Starting hub", zap.String("listen", cfg.Hub.Listen))
	return s.Run(ctx)
}
