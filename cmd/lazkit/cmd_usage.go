package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lazkit/internal/usage"
)

var usageJSON bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage recorded from inference calls",
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "Print JSON")
}

func runUsage(cmd *cobra.Command, args []string) error {
	if tracker == nil {
		return fmt.Errorf("usage tracking is unavailable")
	}
	stats := tracker.Stats()
	out := cmd.OutOrStdout()
	if usageJSON {
		return printJSON(out, stats)
	}
	if stats.Requests == 0 {
		fmt.Fprintln(out, "No token usage recorded.")
		return nil
	}

	fmt.Fprintf(out, "Requests: %d\nTokens:   %d (prompt %d, completion %d)\n",
		stats.Requests, stats.Total.Total, stats.Total.Input, stats.Total.Output)
	for _, section := range []struct {
		title string
		m     map[string]usage.TokenCounts
	}{
		{"ENDPOINT", stats.ByEndpoint},
		{"MODEL", stats.ByModel},
		{"OPERATION", stats.ByOperation},
	} {
		fmt.Fprintln(out)
		if err := writeCounts(out, section.title, section.m); err != nil {
			return err
		}
	}
	return nil
}

func writeCounts(out io.Writer, title string, m map[string]usage.TokenCounts) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]].Total > m[keys[j]].Total })

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tPROMPT\tCOMPLETION\tTOTAL\n", title)
	for _, k := range keys {
		c := m[k]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", k, c.Input, c.Output, c.Total)
	}
	return tw.Flush()
}
