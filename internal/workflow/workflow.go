// Package workflow sequences the LazAI data contribution and consumption
// flows over the chain, storage and node clients.
package workflow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lazkit/internal/chain"
	"lazkit/internal/ledger"
	"lazkit/internal/logging"
	"lazkit/internal/proof"
)

// Pipeline step names, in execution order.
const (
	StepSign    = "sign"
	StepEncrypt = "encrypt"
	StepUpload  = "upload"
	StepAnchor  = "anchor"
	StepProve   = "prove"
	StepReward  = "reward"
)

// Onboarding and consumption steps.
const (
	StepGetUser          = "get_user"
	StepAddUser          = "add_user"
	StepDeposit          = "deposit"
	StepDepositInference = "deposit_inference"
	StepDepositQuery     = "deposit_query"
	StepResolveNode      = "resolve_node"
	StepResolveFile      = "resolve_file"
	StepHeaders          = "headers"
	StepQuery            = "query"
	StepDownload         = "download"
	StepDecrypt          = "decrypt"
	StepVerify           = "verify"
)

// StepError names the step that failed. Pipelines stop at the first failed
// step, so a proof the node rejects ends a contribution at StepProve and no
// reward is requested for it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

// Chain is the contract surface the workflows need. *chain.Client implements it.
type Chain interface {
	GetFileIDByURL(ctx context.Context, url string) (*big.Int, error)
	GetFile(ctx context.Context, fileID *big.Int) (*chain.File, error)
	AddFile(ctx context.Context, url string) (*chain.Receipt, error)
	AddFileWithHash(ctx context.Context, url, hash string) (*chain.Receipt, error)
	RequestProof(ctx context.Context, fileID, bid *big.Int) (*chain.Receipt, error)
	LatestJobID(ctx context.Context, fileID *big.Int) (*big.Int, error)
	GetJob(ctx context.Context, jobID *big.Int) (*chain.Job, error)
	GetNode(ctx context.Context, node common.Address) (*chain.Node, error)
	RequestReward(ctx context.Context, fileID, proofIndex *big.Int) (*chain.Receipt, error)

	GetUser(ctx context.Context, addr common.Address) (*chain.User, error)
	AddUser(ctx context.Context, amount *big.Int) (*chain.Receipt, error)
	Deposit(ctx context.Context, amount *big.Int) (*chain.Receipt, error)
	DepositInference(ctx context.Context, node common.Address, amount *big.Int) (*chain.Receipt, error)
	GetInferenceNode(ctx context.Context, node common.Address) (*chain.Node, error)
	GetQueryNode(ctx context.Context, node common.Address) (*chain.Node, error)
	GetInferenceAccount(ctx context.Context, user, node common.Address) (*chain.Account, error)
	DepositQuery(ctx context.Context, node common.Address, amount *big.Int) (*chain.Receipt, error)
	GetQueryAccount(ctx context.Context, user, node common.Address) (*chain.Account, error)
}

// ProofSubmitter delivers proof requests to verified computing nodes.
type ProofSubmitter interface {
	Submit(ctx context.Context, nodeURL string, req proof.Request) error
}

// ContributionRecorder persists pipeline progress. *ledger.Ledger implements it.
type ContributionRecorder interface {
	CreateContribution(ctx context.Context, c *ledger.Contribution) error
	UpdateContribution(ctx context.Context, c *ledger.Contribution) error
}

// QueryRecorder persists query outcomes. *ledger.Ledger implements it.
type QueryRecorder interface {
	RecordQuery(ctx context.Context, q *ledger.QueryRecord) error
}

func recordQuery(ctx context.Context, rec QueryRecorder, q *ledger.QueryRecord) {
	if rec == nil {
		return
	}
	if err := rec.RecordQuery(ctx, q); err != nil {
		logging.WorkflowWarn("Failed to record %s query: %v", q.Kind, err)
	}
}
