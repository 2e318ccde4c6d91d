package main

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lazkit/internal/chain"
)

var statusFileID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet, settlement account and (optionally) file state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFileID, "file-id", "", "Also show this registry file and its latest proof job")
}

type statusReport struct {
	Wallet           string         `json:"wallet"`
	ChainID          string         `json:"chain_id"`
	Balance          string         `json:"balance_wei"`
	User             *chain.User    `json:"user,omitempty"`
	InferenceAccount *chain.Account `json:"inference_account,omitempty"`
	QueryAccount     *chain.Account `json:"query_account,omitempty"`
	File             *chain.File    `json:"file,omitempty"`
	JobID            *big.Int       `json:"job_id,omitempty"`
	Job              *chain.Job     `json:"job,omitempty"`
	Notes            []string       `json:"notes,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	fileID, err := parseFileID(statusFileID)
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

	report, err := collectStatus(ctx, e.chain, e.wallet.Address(), fileID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

// statusReader is the read side of the chain client.
type statusReader interface {
	ChainID() *big.Int
	Balance(ctx context.Context) (*big.Int, error)
	GetUser(ctx context.Context, addr common.Address) (*chain.User, error)
	GetInferenceAccount(ctx context.Context, user, node common.Address) (*chain.Account, error)
	GetQueryAccount(ctx context.Context, user, node common.Address) (*chain.Account, error)
	GetFile(ctx context.Context, fileID *big.Int) (*chain.File, error)
	LatestJobID(ctx context.Context, fileID *big.Int) (*big.Int, error)
	GetJob(ctx context.Context, jobID *big.Int) (*chain.Job, error)
}

// collectStatus issues the independent reads concurrently. Missing user,
// file or job records become notes; any other failure aborts.
func collectStatus(ctx context.Context, c statusReader, addr common.Address, fileID *big.Int) (*statusReport, error) {
	report := &statusReport{Wallet: addr.Hex()}
	if id := c.ChainID(); id != nil {
		report.ChainID = id.String()
	}

	var userNote, fileNote, jobNote string
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bal, err := c.Balance(gctx)
		if err != nil {
			return err
		}
		report.Balance = bal.String()
		return nil
	})

	g.Go(func() error {
		u, err := c.GetUser(gctx, addr)
		if errors.Is(err, chain.ErrUserNotFound) {
			userNote = "no settlement account; run lazkit onboard"
			return nil
		}
		report.User = u
		return err
	})

	if common.IsHexAddress(cfg.Inference.Node) {
		g.Go(func() error {
			a, err := c.GetInferenceAccount(gctx, addr, common.HexToAddress(cfg.Inference.Node))
			report.InferenceAccount = a
			return err
		})
	}
	if common.IsHexAddress(cfg.Query.Node) {
		g.Go(func() error {
			a, err := c.GetQueryAccount(gctx, addr, common.HexToAddress(cfg.Query.Node))
			report.QueryAccount = a
			return err
		})
	}

	if fileID != nil {
		g.Go(func() error {
			f, err := c.GetFile(gctx, fileID)
			if errors.Is(err, chain.ErrFileNotFound) {
				fileNote = "file " + fileID.String() + " is not registered"
				return nil
			}
			report.File = f
			return err
		})
		g.Go(func() error {
			jobID, err := c.LatestJobID(gctx, fileID)
			if errors.Is(err, chain.ErrNoJobs) || errors.Is(err, chain.ErrReverted) {
				jobNote = "no proof jobs for file " + fileID.String()
				return nil
			}
			if err != nil {
				return err
			}
			job, err := c.GetJob(gctx, jobID)
			if err != nil {
				return err
			}
			report.JobID, report.Job = jobID, job
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, n := range []string{userNote, fileNote, jobNote} {
		if n != "" {
			report.Notes = append(report.Notes, n)
		}
	}
	return report, nil
}
