package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lazkit/internal/workflow"
)

var (
	contributeFile     string
	contributeName     string
	contributeWithHash bool
)

var contributeCmd = &cobra.Command{
	Use:   "contribute",
	Short: "Seal, pin, anchor, prove and claim a reward for a data file",
	Long: `Runs the full contribution pipeline for one file:
  sign -> encrypt -> upload -> anchor -> prove -> reward

A file already anchored under the same URL is reused without a new
transaction. On failure the failing step is reported.`,
	RunE: runContribute,
}

func init() {
	contributeCmd.Flags().StringVarP(&contributeFile, "file", "f", "", "File to contribute")
	contributeCmd.Flags().StringVar(&contributeName, "name", "", "Upload name (default: file base name)")
	contributeCmd.Flags().BoolVar(&contributeWithHash, "with-hash", false, "Anchor the plaintext sha256 alongside the URL")
	_ = contributeCmd.MarkFlagRequired("file")
}

func runContribute(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(contributeFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", contributeFile, err)
	}
	name := contributeName
	if name == "" {
		name = filepath.Base(contributeFile)
	}

	ctx, cancel := commandContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	logger.Info("Contributing file", zap.String("name", name), zap.Int("bytes", len(data)))
	res, err := e.contributor().Contribute(ctx, workflow.Contribution{
		Name:     name,
		Data:     data,
		WithHash: contributeWithHash,
	})
	if err != nil {
		var se *workflow.StepError
		if errors.As(err, &se) {
			logger.Error("Contribution failed", zap.String("step", se.Step), zap.Error(se.Err))
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
