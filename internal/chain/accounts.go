package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GetUser reads the settlement account for addr.
func (c *Client) GetUser(ctx context.Context, addr common.Address) (*User, error) {
	vals, err := c.call(ctx, &c.settlement, "getUser", addr)
	if err != nil {
		if errors.Is(err, ErrReverted) {
			return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrUserNotFound)
		}
		return nil, err
	}
	t, err := unpackStruct[userTuple]("getUser", vals)
	if err != nil {
		return nil, err
	}
	u := &User{
		Address:          t.User,
		AvailableBalance: t.AvailableBalance,
		TotalBalance:     t.TotalBalance,
		InferenceNodes:   t.InferenceNodes,
		QueryNodes:       t.QueryNodes,
	}
	if u.Address == (common.Address{}) {
		return nil, fmt.Errorf("%s: %w", addr.Hex(), ErrUserNotFound)
	}
	return u, nil
}

// AddUser registers the wallet with the settlement contract, funding it
// with amount wei.
func (c *Client) AddUser(ctx context.Context, amount *big.Int) (*Receipt, error) {
	return c.transact(ctx, &c.settlement, "addUser", amount, amount)
}

// Deposit tops up the wallet's settlement balance.
func (c *Client) Deposit(ctx context.Context, amount *big.Int) (*Receipt, error) {
	return c.transact(ctx, &c.settlement, "deposit", amount, amount)
}

// DepositInference moves amount of the settlement balance to an inference node.
func (c *Client) DepositInference(ctx context.Context, node common.Address, amount *big.Int) (*Receipt, error) {
	return c.transact(ctx, &c.settlement, "depositInference", nil, node, amount)
}

// DepositQuery moves amount of the settlement balance to a query node.
func (c *Client) DepositQuery(ctx context.Context, node common.Address, amount *big.Int) (*Receipt, error) {
	return c.transact(ctx, &c.settlement, "depositQuery", nil, node, amount)
}

// GetInferenceNode reads an inference node registration.
func (c *Client) GetInferenceNode(ctx context.Context, node common.Address) (*Node, error) {
	return c.getNode(ctx, &c.inferenceProcess, node)
}

// GetQueryNode reads a query node registration.
func (c *Client) GetQueryNode(ctx context.Context, node common.Address) (*Node, error) {
	return c.getNode(ctx, &c.queryProcess, node)
}

// GetInferenceAccount reads user's balance with an inference node.
func (c *Client) GetInferenceAccount(ctx context.Context, user, node common.Address) (*Account, error) {
	return c.getAccount(ctx, &c.inferenceProcess, user, node)
}

// GetQueryAccount reads user's balance with a query node.
func (c *Client) GetQueryAccount(ctx context.Context, user, node common.Address) (*Account, error) {
	return c.getAccount(ctx, &c.queryProcess, user, node)
}

func (c *Client) getAccount(ctx context.Context, ct *contract, user, node common.Address) (*Account, error) {
	vals, err := c.call(ctx, ct, "getAccount", user, node)
	if err != nil {
		return nil, err
	}
	t, err := unpackStruct[accountTuple]("getAccount", vals)
	if err != nil {
		return nil, err
	}
	return &Account{User: t.User, Node: t.Node, Nonce: t.Nonce, Balance: t.Balance}, nil
}
