// Command lazkit contributes encrypted data to LazAI, runs settlement-signed
// inference and retrieval against iDAO nodes, and serves the intelligence hub.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lazkit/internal/config"
	"lazkit/internal/logging"
	"lazkit/internal/usage"
)

var (
	// Global flags
	configPath string
	verbose    bool
	timeout    time.Duration

	logger  *zap.Logger
	cfg     *config.Config
	tracker *usage.Tracker
)

var rootCmd = &cobra.Command{
	Use:   "lazkit",
	Short: "lazkit - private data contribution and iDAO client for LazAI",
	Long: `lazkit seals a file with a wallet-derived key, pins it to IPFS, anchors it
in the LazAI data registry, requests a verified-computing proof and claims the
contribution reward.

It also talks to iDAO inference and query nodes with settlement-signed
headers, reveals your own contributions, and serves a small HTTP hub.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.DebugMode = true
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(cfg.StateDir(), logging.Settings{
			DebugMode:  cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			logger.Warn("File logging disabled", zap.Error(err))
		} else if err := logging.InitAudit(); err != nil {
			logger.Warn("Audit log disabled", zap.Error(err))
		}
		if tracker, err = usage.NewTracker(cfg.StateDir()); err != nil {
			logger.Warn("Usage tracking disabled", zap.Error(err))
		}
		logging.BootDebug("lazkit %s starting: %s", cfg.Version, cmd.CommandPath())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := tracker.Close(); err != nil {
			logger.Warn("Failed to save usage", zap.Error(err))
		}
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(contributeCmd)
	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(revealCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(headersCmd)
	rootCmd.AddCommand(twinCmd)
	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
