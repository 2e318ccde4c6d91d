package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lazkit/internal/wallet"
	"lazkit/internal/workflow"
)

var (
	revealFileID string
	revealURL    string
	revealOut    string
)

var revealCmd = &cobra.Command{
	Use:   "reveal",
	Short: "Download and decrypt one of your contributions",
	Long: `Fetches a sealed file by registry id (--file-id) or gateway URL (--url),
decrypts it with the wallet-derived key and, when the registry holds a
content hash, verifies it.`,
	RunE: runReveal,
}

func init() {
	revealCmd.Flags().StringVar(&revealFileID, "file-id", "", "Registry file id")
	revealCmd.Flags().StringVar(&revealURL, "url", "", "Gateway URL of the sealed file")
	revealCmd.Flags().StringVarP(&revealOut, "out", "o", "", "Write plaintext here instead of stdout")
	revealCmd.MarkFlagsMutuallyExclusive("file-id", "url")
	revealCmd.MarkFlagsOneRequired("file-id", "url")
}

func runReveal(cmd *cobra.Command, args []string) error {
	fileID, err := parseFileID(revealFileID)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	r := &workflow.Revealer{
		Wallet:         e.wallet,
		Chain:          e.chain,
		Storage:        e.storage(),
		Seed:           cfg.Wallet.EncryptionSeed,
		PasswordFormat: wallet.PasswordFormat(cfg.Wallet.PasswordFormat),
	}
	res, err := r.Reveal(ctx, workflow.RevealRequest{FileID: fileID, URL: revealURL})
	if err != nil {
		return err
	}
	logger.Info("Revealed file",
		zap.String("url", res.URL),
		zap.Int("bytes", len(res.Data)),
		zap.Bool("verified", res.Verified))

	if revealOut == "" {
		_, err := cmd.OutOrStdout().Write(res.Data)
		return err
	}
	if err := os.WriteFile(revealOut, res.Data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", revealOut, err)
	}
	return nil
}
