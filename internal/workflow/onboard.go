package workflow

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"lazkit/internal/chain"
	"lazkit/internal/logging"
	"lazkit/internal/wallet"
)

// Amounts are the wei values used when registering a new user.
type Amounts struct {
	UserDeposit      *big.Int
	Deposit          *big.Int
	InferenceDeposit *big.Int
}

// QueryFunding describes the wallet's account with a query node after
// FundQuery.
type QueryFunding struct {
	Node    common.Address `json:"node"`
	Funded  bool           `json:"funded"`
	Tx      string         `json:"tx,omitempty"`
	Account *chain.Account `json:"account,omitempty"`
}

// OnboardResult describes the settlement state after Ensure.
type OnboardResult struct {
	User    *chain.User    `json:"user"`
	Created bool           `json:"created"`
	Txs     []string       `json:"txs,omitempty"`
	Account *chain.Account `json:"account,omitempty"`
	// Warning is set when the node holds no account for this wallet.
	Warning string `json:"warning,omitempty"`
	// Query is set when a query node was funded or checked.
	Query *QueryFunding `json:"query,omitempty"`
}

// Onboarder registers the wallet with the settlement contract once.
type Onboarder struct {
	Wallet *wallet.Wallet
	Chain  Chain
}

// Ensure registers the wallet and funds node when the user does not exist
// yet, then checks the wallet's account with the inference node.
func (o *Onboarder) Ensure(ctx context.Context, node common.Address, amounts Amounts) (*OnboardResult, error) {
	addr := o.Wallet.Address()
	res := &OnboardResult{}

	user, err := o.Chain.GetUser(ctx, addr)
	switch {
	case err == nil:
		logging.Workflow("User %s already registered", addr.Hex())
	case errors.Is(err, chain.ErrUserNotFound):
		logging.Workflow("User %s not registered, adding", addr.Hex())
		if err := o.register(ctx, node, amounts, res); err != nil {
			return res, err
		}
		res.Created = true
		if user, err = o.Chain.GetUser(ctx, addr); err != nil {
			return res, stepErr(StepGetUser, err)
		}
	default:
		return res, stepErr(StepGetUser, err)
	}
	res.User = user

	acct, err := o.Chain.GetInferenceAccount(ctx, addr, node)
	if err != nil || acct == nil || acct.User != addr {
		res.Warning = "no account with inference node " + node.Hex() + "; requests may fail settlement"
		if err != nil {
			res.Warning += ": " + err.Error()
		}
		logging.WorkflowWarn("%s", res.Warning)
	}
	res.Account = acct
	return res, nil
}

func (o *Onboarder) register(ctx context.Context, node common.Address, amounts Amounts, res *OnboardResult) error {
	steps := []struct {
		name string
		send func() (*chain.Receipt, error)
	}{
		{StepAddUser, func() (*chain.Receipt, error) { return o.Chain.AddUser(ctx, orZero(amounts.UserDeposit)) }},
		{StepDeposit, func() (*chain.Receipt, error) { return o.Chain.Deposit(ctx, orZero(amounts.Deposit)) }},
		{StepDepositInference, func() (*chain.Receipt, error) {
			return o.Chain.DepositInference(ctx, node, orZero(amounts.InferenceDeposit))
		}},
	}
	for _, step := range steps {
		r, err := step.send()
		if err != nil {
			return stepErr(step.name, err)
		}
		res.Txs = append(res.Txs, r.TxHash)
	}
	return nil
}

// FundQuery deposits amount with a query node unless the wallet already
// holds a funded account there. The user must already be registered.
func (o *Onboarder) FundQuery(ctx context.Context, node common.Address, amount *big.Int) (*QueryFunding, error) {
	addr := o.Wallet.Address()
	res := &QueryFunding{Node: node}

	acct, err := o.Chain.GetQueryAccount(ctx, addr, node)
	if err == nil && acct != nil && acct.User == addr && acct.Balance != nil && acct.Balance.Sign() > 0 {
		logging.Workflow("Query account with %s already funded", node.Hex())
		res.Account = acct
		return res, nil
	}

	logging.Workflow("Depositing %v wei with query node %s", orZero(amount), node.Hex())
	r, err := o.Chain.DepositQuery(ctx, node, orZero(amount))
	if err != nil {
		return res, stepErr(StepDepositQuery, err)
	}
	res.Funded = true
	res.Tx = r.TxHash

	if acct, err = o.Chain.GetQueryAccount(ctx, addr, node); err != nil {
		logging.WorkflowWarn("Query account lookup after deposit failed: %v", err)
	} else {
		res.Account = acct
	}
	return res, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
