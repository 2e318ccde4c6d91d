package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RequestProof asks the verified computing contract to assign a proof job,
// paying bid wei.
func (c *Client) RequestProof(ctx context.Context, fileID, bid *big.Int) (*Receipt, error) {
	return c.transact(ctx, &c.verifiedComputing, "requestProof", bid, fileID)
}

// FileJobIDs lists the proof jobs created for a file, oldest first.
func (c *Client) FileJobIDs(ctx context.Context, fileID *big.Int) ([]*big.Int, error) {
	vals, err := c.call(ctx, &c.verifiedComputing, "fileJobIds", fileID)
	if err != nil {
		return nil, err
	}
	d := newDecoder("fileJobIds", vals, 1)
	ids := d.bigSlice(0)
	if d.err != nil {
		return nil, d.err
	}
	return ids, nil
}

// LatestJobID returns the most recent job for a file.
func (c *Client) LatestJobID(ctx context.Context, fileID *big.Int) (*big.Int, error) {
	ids, err := c.FileJobIDs(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNoJobs)
	}
	return ids[len(ids)-1], nil
}

// GetJob reads a proof job.
func (c *Client) GetJob(ctx context.Context, jobID *big.Int) (*Job, error) {
	vals, err := c.call(ctx, &c.verifiedComputing, "getJob", jobID)
	if err != nil {
		return nil, err
	}
	t, err := unpackStruct[jobTuple]("getJob", vals)
	if err != nil {
		return nil, err
	}
	return &Job{
		FileID:         t.FileId,
		BidAmount:      t.BidAmount,
		Status:         t.Status,
		AddedTimestamp: t.AddedTimestamp,
		Owner:          t.OwnerAddress,
		Node:           t.NodeAddress,
	}, nil
}

// GetNode reads a verified computing node registration.
func (c *Client) GetNode(ctx context.Context, node common.Address) (*Node, error) {
	return c.getNode(ctx, &c.verifiedComputing, node)
}

func (c *Client) getNode(ctx context.Context, ct *contract, node common.Address) (*Node, error) {
	vals, err := c.call(ctx, ct, "getNode", node)
	if err != nil {
		return nil, err
	}
	t, err := unpackStruct[nodeTuple]("getNode", vals)
	if err != nil {
		return nil, err
	}
	n := &Node{
		Address:   t.NodeAddress,
		URL:       t.Url,
		Status:    t.Status,
		Amount:    t.Amount,
		JobsCount: t.JobsCount,
		PublicKey: t.PublicKey,
	}
	if n.URL == "" {
		return nil, fmt.Errorf("%s node %s is not registered", ct.name, node.Hex())
	}
	return n, nil
}
