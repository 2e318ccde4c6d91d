package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lazkit/internal/query"
)

var (
	queryNode   string
	queryFileID string
	queryLimit  int
	queryRaw    bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Run a settlement-signed RAG query against an iDAO query node",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryNode, "node", "", "Query node address (default: query.node)")
	queryCmd.Flags().StringVar(&queryFileID, "file-id", "", "Data file to search")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Maximum results (default: query.limit)")
	queryCmd.Flags().BoolVar(&queryRaw, "raw", false, "Print the node's raw JSON response")
	_ = queryCmd.MarkFlagRequired("file-id")
}

func runQuery(cmd *cobra.Command, args []string) error {
	node, err := nodeAddress(queryNode, cfg.Query.Node, "query")
	if err != nil {
		return err
	}
	fileID, err := parseFileID(queryFileID)
	if err != nil {
		return err
	}
	limit := queryLimit
	if limit <= 0 {
		limit = cfg.Query.Limit
	}

	ctx, cancel := commandContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	resp, err := e.retriever().Retrieve(ctx, node, query.RAGRequest{
		FileID: fileID,
		Query:  strings.Join(args, " "),
		Limit:  limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryRaw {
		_, err := fmt.Fprintln(out, string(resp.Raw))
		return err
	}
	texts := resp.Texts()
	if len(texts) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, t := range texts {
		fmt.Fprintf(out, "[%d] %s\n", i+1, t)
	}
	return nil
}
