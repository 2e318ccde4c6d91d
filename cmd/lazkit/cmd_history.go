package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lazkit/internal/ledger"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded contributions from the local ledger",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	l, err := ledger.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := commandContext()
	defer cancel()

	list, err := l.ListContributions(ctx, historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if historyJSON {
		return printJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No contributions recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tNAME\tSTATUS\tFILE ID\tCID")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.CreatedAt.Local().Format(time.DateTime), c.Name, c.Status, dash(c.FileID), dash(c.CID))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
