package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrReverted marks an eth_call or gas estimation that reverted.
	ErrReverted = errors.New("execution reverted")
	// ErrUserNotFound is returned by GetUser for unregistered wallets.
	ErrUserNotFound = errors.New("user not found")
	// ErrFileNotFound is returned when a file id is unknown to the registry.
	ErrFileNotFound = errors.New("file not found")
	// ErrNoJobs is returned when a file has no proof jobs yet.
	ErrNoJobs = errors.New("no proof jobs for file")
	// ErrContractNotConfigured is returned when a contract address is unset.
	ErrContractNotConfigured = errors.New("contract address not configured")
)

// TxFailedError reports a mined transaction with status 0.
type TxFailedError struct {
	Contract string
	Method   string
	TxHash   string
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("%s.%s transaction %s failed on-chain", e.Contract, e.Method, e.TxHash)
}

// Receipt summarizes a successful transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

// File is a data registry entry.
type File struct {
	ID           *big.Int       `json:"id"`
	Owner        common.Address `json:"owner"`
	URL          string         `json:"url"`
	Hash         string         `json:"hash"`
	ProofIndex   *big.Int       `json:"proof_index"`
	RewardAmount *big.Int       `json:"reward_amount"`
}

// Job is a verified computing proof job.
type Job struct {
	FileID         *big.Int       `json:"file_id"`
	BidAmount      *big.Int       `json:"bid_amount"`
	Status         uint8          `json:"status"`
	AddedTimestamp *big.Int       `json:"added_timestamp"`
	Owner          common.Address `json:"owner"`
	Node           common.Address `json:"node"`
}

// Node is a verified computing, inference or query node registration.
type Node struct {
	Address   common.Address `json:"address"`
	URL       string         `json:"url"`
	Status    uint8          `json:"status"`
	Amount    *big.Int       `json:"amount"`
	JobsCount *big.Int       `json:"jobs_count"`
	PublicKey string         `json:"public_key"`
}

// User is a settlement account.
type User struct {
	Address          common.Address   `json:"address"`
	AvailableBalance *big.Int         `json:"available_balance"`
	TotalBalance     *big.Int         `json:"total_balance"`
	InferenceNodes   []common.Address `json:"inference_nodes"`
	QueryNodes       []common.Address `json:"query_nodes"`
}

// Account is a user's balance with a specific inference or query node.
type Account struct {
	User    common.Address `json:"user"`
	Node    common.Address `json:"node"`
	Nonce   *big.Int       `json:"nonce"`
	Balance *big.Int       `json:"balance"`
}

// On-chain struct layouts. Field names follow the ABI component names so
// abi.ConvertType can map the unpacked tuple onto them.

type fileTuple struct {
	Id           *big.Int
	OwnerAddress common.Address
	Url          string
	Hash         string
	ProofIndex   *big.Int
	RewardAmount *big.Int
}

type jobTuple struct {
	FileId         *big.Int
	BidAmount      *big.Int
	Status         uint8
	AddedTimestamp *big.Int
	OwnerAddress   common.Address
	NodeAddress    common.Address
}

type nodeTuple struct {
	NodeAddress common.Address
	Url         string
	Status      uint8
	Amount      *big.Int
	JobsCount   *big.Int
	PublicKey   string
}

type userTuple struct {
	User             common.Address
	AvailableBalance *big.Int
	TotalBalance     *big.Int
	InferenceNodes   []common.Address
	QueryNodes       []common.Address
}

type accountTuple struct {
	User    common.Address
	Node    common.Address
	Nonce   *big.Int
	Balance *big.Int
}

// unpackStruct converts the single tuple returned by a struct getter.
func unpackStruct[T any](method string, vals []interface{}) (out T, err error) {
	if len(vals) != 1 {
		return out, fmt.Errorf("%s: expected 1 return value, got %d", method, len(vals))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: unexpected return layout: %v", method, r)
		}
	}()
	out = *abi.ConvertType(vals[0], new(T)).(*T)
	return out, nil
}

// decoder pulls typed values out of abi.Unpack output and keeps the first error.
type decoder struct {
	method string
	vals   []interface{}
	err    error
}

func newDecoder(method string, vals []interface{}, want int) *decoder {
	d := &decoder{method: method, vals: vals}
	if len(vals) != want {
		d.err = fmt.Errorf("%s: expected %d return values, got %d", method, want, len(vals))
	}
	return d
}

func (d *decoder) fail(i int, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("%s: return value %d is %T, want %s", d.method, i, d.vals[i], want)
	}
}

func (d *decoder) bigInt(i int) *big.Int {
	if d.err != nil {
		return nil
	}
	v, ok := d.vals[i].(*big.Int)
	if !ok {
		d.fail(i, "*big.Int")
		return nil
	}
	return v
}

func (d *decoder) bigSlice(i int) []*big.Int {
	if d.err != nil {
		return nil
	}
	v, ok := d.vals[i].([]*big.Int)
	if !ok {
		d.fail(i, "[]*big.Int")
	}
	return v
}
