package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"lazkit/internal/settlement"
	"lazkit/internal/wallet"
)

var (
	headersNode   string
	headersFileID string
)

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "Print settlement request headers for a node as JSON",
	Long: `Signs a fresh nonce for the given node and prints the X-LazAI-* headers a
node expects. Useful for calling nodes with curl. Needs only the private key.`,
	RunE: runHeaders,
}

var headersVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify settlement headers read as JSON from stdin",
	RunE:  runHeadersVerify,
}

func init() {
	headersCmd.PersistentFlags().StringVar(&headersNode, "node", "", "Node address (default: inference.node)")
	headersCmd.Flags().StringVar(&headersFileID, "file-id", "", "Include X-LazAI-Token-ID")
	headersCmd.AddCommand(headersVerifyCmd)
}

func runHeaders(cmd *cobra.Command, args []string) error {
	node, err := nodeAddress(headersNode, cfg.Inference.Node, "inference")
	if err != nil {
		return err
	}
	fileID, err := parseFileID(headersFileID)
	if err != nil {
		return err
	}
	w, err := wallet.Load(cfg.Wallet.PrivateKey)
	if err != nil {
		return err
	}

	h, err := settlement.RequestHeaders(w, node, settlement.Options{FileID: fileID, Kind: "cli"})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), settlement.ToMap(h))
}

type verifyResult struct {
	Valid  bool   `json:"valid"`
	User   string `json:"user,omitempty"`
	Node   string `json:"node"`
	Nonce  string `json:"nonce,omitempty"`
	FileID string `json:"file_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runHeadersVerify(cmd *cobra.Command, args []string) error {
	node, err := nodeAddress(headersNode, cfg.Inference.Node, "inference")
	if err != nil {
		return err
	}

	var m map[string]string
	if err := json.NewDecoder(cmd.InOrStdin()).Decode(&m); err != nil {
		return fmt.Errorf("failed to read headers JSON: %w", err)
	}

	res := verifyResult{Node: node.Hex()}
	claims, verr := settlement.Verify(settlement.FromMap(m), node)
	if verr != nil {
		res.Error = verr.Error()
	} else {
		res.Valid = true
		res.User = claims.User.Hex()
		res.Nonce = claims.Nonce.String()
		if claims.FileID != nil {
			res.FileID = claims.FileID.String()
		}
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if verr != nil {
		return fmt.Errorf("headers do not verify for node %s", node.Hex())
	}
	return nil
}
