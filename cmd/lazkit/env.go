package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lazkit/internal/chain"
	"lazkit/internal/inference"
	"lazkit/internal/ledger"
	"lazkit/internal/proof"
	"lazkit/internal/query"
	"lazkit/internal/storage"
	"lazkit/internal/usage"
	"lazkit/internal/wallet"
	"lazkit/internal/workflow"
)

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT/SIGTERM. It carries the usage tracker.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(usage.NewContext(context.Background(), tracker), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// interactiveContext is cancelled only by SIGINT/SIGTERM. Long-running
// commands (twin, hub) use it instead of --timeout.
func interactiveContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(usage.NewContext(context.Background(), tracker), os.Interrupt, syscall.SIGTERM)
}

// env holds the clients a chain-touching command needs.
type env struct {
	wallet *wallet.Wallet
	chain  *chain.Client
	ledger *ledger.Ledger
}

// openEnv validates the config, loads the wallet, dials the RPC endpoint
// and opens the ledger. The ledger is optional: failures are logged.
func openEnv(ctx context.Context) (*env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w, err := wallet.Load(cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.GetChainTimeout())
	defer cancel()
	c, err := chain.Dial(dialCtx, chain.Config{
		RPCURL:  cfg.Chain.RPCURL,
		ChainID: big.NewInt(cfg.Chain.ChainID),
		Addresses: chain.Addresses{
			DataRegistry:      common.HexToAddress(cfg.Contracts.DataRegistry),
			VerifiedComputing: common.HexToAddress(cfg.Contracts.VerifiedComputing),
			Settlement:        common.HexToAddress(cfg.Contracts.Settlement),
			InferenceProcess:  common.HexToAddress(cfg.Contracts.InferenceProcess),
			QueryProcess:      common.HexToAddress(cfg.Contracts.QueryProcess),
		},
		ReceiptTimeout:  cfg.GetReceiptTimeout(),
		ReceiptInterval: cfg.GetReceiptInterval(),
	}, w)
	if err != nil {
		return nil, err
	}

	e := &env{wallet: w, chain: c}
	if l, err := ledger.Open(cfg.Store.DatabasePath); err != nil {
		logger.Warn("Ledger unavailable, continuing without history", zap.Error(err))
	} else {
		e.ledger = l
	}
	logger.Debug("Environment ready",
		zap.String("wallet", w.Address().Hex()),
		zap.String("rpc", cfg.Chain.RPCURL))
	return e, nil
}

func (e *env) Close() {
	if e.ledger != nil {
		e.ledger.Close()
	}
	e.chain.Close()
}

func (e *env) storage() *storage.PinataIPFS {
	return storage.NewPinataIPFS(storage.PinataConfig{
		UploadURL:  cfg.IPFS.UploadURL,
		GatewayURL: cfg.IPFS.GatewayURL,
		Timeout:    cfg.GetIPFSTimeout(),
	})
}

func (e *env) contributor() *workflow.Contributor {
	c := &workflow.Contributor{
		Wallet:         e.wallet,
		Chain:          e.chain,
		Storage:        e.storage(),
		Proofs:         proof.NewNodeClient(cfg.GetProofTimeout()),
		Seed:           cfg.Wallet.EncryptionSeed,
		IPFSToken:      cfg.IPFS.JWT,
		Bid:            big.NewInt(cfg.Proof.Bid),
		ProofIndex:     big.NewInt(cfg.Proof.ProofIndex),
		PasswordFormat: wallet.PasswordFormat(cfg.Wallet.PasswordFormat),
	}
	if e.ledger != nil {
		c.Ledger = e.ledger
	}
	return c
}

func (e *env) inferer() *workflow.Inferer {
	i := &workflow.Inferer{
		Wallet: e.wallet,
		Chain:  e.chain,
		Client: inferenceConfig(),
	}
	if e.ledger != nil {
		i.Ledger = e.ledger
	}
	return i
}

func (e *env) retriever() *workflow.Retriever {
	r := &workflow.Retriever{
		Wallet:  e.wallet,
		Chain:   e.chain,
		Query:   query.NewClient(cfg.GetQueryTimeout()),
		BaseURL: cfg.Query.BaseURL,
	}
	if e.ledger != nil {
		r.Ledger = e.ledger
	}
	return r
}

// inferenceConfig maps the inference section onto a client config.
func inferenceConfig() inference.Config {
	temp := cfg.Inference.Temperature
	return inference.Config{
		BaseURL:     cfg.Inference.BaseURL,
		APIKey:      cfg.Inference.APIKey,
		Model:       cfg.Inference.Model,
		Timeout:     cfg.GetInferenceTimeout(),
		MaxTokens:   cfg.Inference.MaxTokens,
		Temperature: &temp,
	}
}

// nodeAddress resolves a --node flag, falling back to a configured address.
func nodeAddress(flag, fallback, what string) (common.Address, error) {
	v := flag
	if v == "" {
		v = fallback
	}
	if v == "" {
		return common.Address{}, fmt.Errorf("no %s node configured (pass --node or set it in config)", what)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s node address %q", what, v)
	}
	return common.HexToAddress(v), nil
}

// parseFileID parses a positive decimal file id. Empty input gives nil.
func parseFileID(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("invalid file id %q", s)
	}
	return n, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
