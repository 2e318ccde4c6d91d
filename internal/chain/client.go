// Package chain talks to the LazAI registry contracts: data registry,
// verified computing, settlement and the inference/query process contracts.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"lazkit/internal/logging"
	"lazkit/internal/metrics"
	"lazkit/internal/wallet"
)

// Backend is the subset of ethclient.Client the registry client uses.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Addresses holds the deployed contract addresses.
type Addresses struct {
	DataRegistry      common.Address
	VerifiedComputing common.Address
	Settlement        common.Address
	InferenceProcess  common.Address
	QueryProcess      common.Address
}

// Config holds configuration for the registry client.
type Config struct {
	RPCURL          string
	ChainID         *big.Int
	Addresses       Addresses
	ReceiptTimeout  time.Duration
	ReceiptInterval time.Duration
	// GasMultiplier scales the node's gas estimate (1.2 when zero).
	GasMultiplier float64
}

type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
}

// Client reads and writes the LazAI contracts on behalf of one wallet.
type Client struct {
	backend Backend
	wallet  *wallet.Wallet
	chainID *big.Int

	dataRegistry      contract
	verifiedComputing contract
	settlement        contract
	inferenceProcess  contract
	queryProcess      contract

	receiptTimeout  time.Duration
	receiptInterval time.Duration
	gasMultiplier   float64

	// serializes nonce assignment for the wallet
	txMu sync.Mutex

	closer func()
}

// NewClient builds a client over an existing backend.
func NewClient(backend Backend, w *wallet.Wallet, cfg Config) *Client {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = 2 * time.Second
	}
	if cfg.GasMultiplier <= 0 {
		cfg.GasMultiplier = 1.2
	}
	return &Client{
		backend:           backend,
		wallet:            w,
		chainID:           cfg.ChainID,
		dataRegistry:      contract{"DataRegistry", cfg.Addresses.DataRegistry, DataRegistryABI},
		verifiedComputing: contract{"VerifiedComputing", cfg.Addresses.VerifiedComputing, VerifiedComputingABI},
		settlement:        contract{"Settlement", cfg.Addresses.Settlement, SettlementABI},
		inferenceProcess:  contract{"InferenceProcess", cfg.Addresses.InferenceProcess, AIProcessABI},
		queryProcess:      contract{"QueryProcess", cfg.Addresses.QueryProcess, AIProcessABI},
		receiptTimeout:    cfg.ReceiptTimeout,
		receiptInterval:   cfg.ReceiptInterval,
		gasMultiplier:     cfg.GasMultiplier,
	}
}

// Dial connects to cfg.RPCURL and verifies the remote chain id.
func Dial(ctx context.Context, cfg Config, w *wallet.Wallet) (*Client, error) {
	timer := logging.StartTimer(logging.CategoryChain, "Dial")
	defer timer.Stop()

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	remote, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if cfg.ChainID == nil {
		cfg.ChainID = remote
	} else if remote.Cmp(cfg.ChainID) != 0 {
		ec.Close()
		return nil, fmt.Errorf("chain id mismatch: rpc reports %s, configured %s", remote, cfg.ChainID)
	}

	logging.Chain("Connected to %s (chain %s)", cfg.RPCURL, remote)
	c := NewClient(ec, w, cfg)
	c.closer = ec.Close
	return c, nil
}

// Close releases the RPC connection when the client owns it.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Wallet returns the signing wallet.
func (c *Client) Wallet() *wallet.Wallet {
	return c.wallet
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Balance returns the wallet's native balance in wei.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, c.wallet.Address(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	return bal, nil
}

// isRevert reports whether an RPC error came from a reverted execution.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func (c *Client) call(ctx context.Context, ct *contract, method string, args ...interface{}) ([]interface{}, error) {
	if ct.address == (common.Address{}) {
		return nil, fmt.Errorf("%s: %w", ct.name, ErrContractNotConfigured)
	}

	input, err := ct.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: failed to pack args: %w", ct.name, method, err)
	}

	to := ct.address
	msg := ethereum.CallMsg{To: &to, Data: input}
	if c.wallet != nil {
		msg.From = c.wallet.Address()
	}

	logging.ChainDebug("eth_call %s.%s", ct.name, method)
	out, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%s.%s: %w: %v", ct.name, method, ErrReverted, err)
		}
		return nil, fmt.Errorf("%s.%s: %w", ct.name, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s: empty result (is %s deployed on this chain?)", ct.name, method, ct.address.Hex())
	}

	vals, err := ct.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: failed to unpack result: %w", ct.name, method, err)
	}
	return vals, nil
}

func (c *Client) transact(ctx context.Context, ct *contract, method string, value *big.Int, args ...interface{}) (*Receipt, error) {
	if ct.address == (common.Address{}) {
		return nil, fmt.Errorf("%s: %w", ct.name, ErrContractNotConfigured)
	}
	if c.wallet == nil {
		return nil, fmt.Errorf("%s.%s: no wallet configured", ct.name, method)
	}
	if value == nil {
		value = new(big.Int)
	}

	input, err := ct.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: failed to pack args: %w", ct.name, method, err)
	}

	c.txMu.Lock()
	signed, err := c.signAndSend(ctx, ct, method, value, input)
	c.txMu.Unlock()
	if err != nil {
		metrics.ChainTransactions.WithLabelValues(ct.name, method, "error").Inc()
		return nil, err
	}

	receipt, err := c.waitReceipt(ctx, signed.Hash())
	if err != nil {
		metrics.ChainTransactions.WithLabelValues(ct.name, method, "error").Inc()
		return nil, fmt.Errorf("%s.%s: %w", ct.name, method, err)
	}
	audit := logging.AuditForWallet(c.wallet.Address().Hex())
	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.ChainTransactions.WithLabelValues(ct.name, method, "failed").Inc()
		logging.ChainError("%s.%s tx %s failed on-chain", ct.name, method, signed.Hash().Hex())
		txErr := &TxFailedError{Contract: ct.name, Method: method, TxHash: signed.Hash().Hex()}
		audit.TxResult(ct.name, method, txErr.TxHash, blockNumber(receipt), receipt.GasUsed, false, txErr.Error())
		return nil, txErr
	}

	metrics.ChainTransactions.WithLabelValues(ct.name, method, "success").Inc()
	r := &Receipt{TxHash: signed.Hash().Hex(), BlockNumber: blockNumber(receipt), GasUsed: receipt.GasUsed}
	audit.TxResult(ct.name, method, r.TxHash, r.BlockNumber, r.GasUsed, true, "")
	logging.Chain("%s.%s mined in block %d (tx %s, gas %d)", ct.name, method, r.BlockNumber, r.TxHash, r.GasUsed)
	return r, nil
}

func (c *Client) signAndSend(ctx context.Context, ct *contract, method string, value *big.Int, input []byte) (*types.Transaction, error) {
	from := c.wallet.Address()
	to := ct.address

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: failed to get nonce: %w", ct.name, method, err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: failed to get gas price: %w", ct.name, method, err)
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     input,
	})
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%s.%s: %w: %v", ct.name, method, ErrReverted, err)
		}
		return nil, fmt.Errorf("%s.%s: failed to estimate gas: %w", ct.name, method, err)
	}
	gas = uint64(float64(gas) * c.gasMultiplier)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.wallet.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("%s.%s: failed to sign tx: %w", ct.name, method, err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%s.%s: failed to send tx: %w", ct.name, method, err)
	}
	logging.Chain("Sent %s.%s tx %s (nonce %d, gas %d, value %s)", ct.name, method, signed.Hash().Hex(), nonce, gas, value)
	logging.AuditForWallet(from.Hex()).TxSent(ct.name, method, signed.Hash().Hex(), nonce, gas, value.String())
	return signed, nil
}

func blockNumber(r *types.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logging.ChainWarn("Receipt lookup for %s failed: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
