package main

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lazkit/internal/workflow"
)

var onboardNode, onboardQueryNode string

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Register a settlement account and fund an inference node",
	Long: `Checks the wallet's settlement account. When none exists it registers one
and deposits the configured amounts, including the inference deposit for the
given node. It then reports the wallet's account with that node.

With --query-node (or query.node) it also funds a query node account, so RAG
queries against that node can settle. An account that already holds a
balance is left alone.`,
	RunE: runOnboard,
}

func init() {
	onboardCmd.Flags().StringVar(&onboardNode, "node", "", "Inference node address (default: inference.node)")
	onboardCmd.Flags().StringVar(&onboardQueryNode, "query-node", "", "Query node to fund (default: query.node)")
}

func runOnboard(cmd *cobra.Command, args []string) error {
	node, err := nodeAddress(onboardNode, cfg.Inference.Node, "inference")
	if err != nil {
		return err
	}
	var qnode common.Address
	fundQuery := onboardQueryNode != "" || cfg.Query.Node != ""
	if fundQuery {
		if qnode, err = nodeAddress(onboardQueryNode, cfg.Query.Node, "query"); err != nil {
			return err
		}
	}

	ctx, cancel := commandContext()
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	o := &workflow.Onboarder{Wallet: e.wallet, Chain: e.chain}
	res, err := o.Ensure(ctx, node, workflow.Amounts{
		UserDeposit:      big.NewInt(cfg.Onboarding.UserDeposit),
		Deposit:          big.NewInt(cfg.Onboarding.Deposit),
		InferenceDeposit: big.NewInt(cfg.Onboarding.InferenceDeposit),
	})
	if err != nil {
		return err
	}
	if res.Warning != "" {
		logger.Warn(res.Warning, zap.String("node", node.Hex()))
	}

	if fundQuery {
		res.Query, err = o.FundQuery(ctx, qnode, big.NewInt(cfg.Onboarding.QueryDeposit))
		if err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), res)
}
