package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// GetFileIDByURL returns the registry id for url, or zero when unregistered.
func (c *Client) GetFileIDByURL(ctx context.Context, url string) (*big.Int, error) {
	vals, err := c.call(ctx, &c.dataRegistry, "getFileIdByUrl", url)
	if err != nil {
		return nil, err
	}
	d := newDecoder("getFileIdByUrl", vals, 1)
	id := d.bigInt(0)
	if d.err != nil {
		return nil, d.err
	}
	return id, nil
}

// GetFile reads a registry entry.
func (c *Client) GetFile(ctx context.Context, fileID *big.Int) (*File, error) {
	vals, err := c.call(ctx, &c.dataRegistry, "getFile", fileID)
	if err != nil {
		if errors.Is(err, ErrReverted) {
			return nil, fmt.Errorf("file %s: %w", fileID, ErrFileNotFound)
		}
		return nil, err
	}
	t, err := unpackStruct[fileTuple]("getFile", vals)
	if err != nil {
		return nil, err
	}
	f := &File{
		ID:           t.Id,
		Owner:        t.OwnerAddress,
		URL:          t.Url,
		Hash:         t.Hash,
		ProofIndex:   t.ProofIndex,
		RewardAmount: t.RewardAmount,
	}
	if f.ID == nil || f.ID.Sign() == 0 {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrFileNotFound)
	}
	return f, nil
}

// AddFile registers url and returns the mined receipt.
func (c *Client) AddFile(ctx context.Context, url string) (*Receipt, error) {
	return c.transact(ctx, &c.dataRegistry, "addFile", nil, url)
}

// AddFileWithHash registers url together with a content hash.
func (c *Client) AddFileWithHash(ctx context.Context, url, hash string) (*Receipt, error) {
	return c.transact(ctx, &c.dataRegistry, "addFileWithHash", nil, url, hash)
}

// RequestReward claims the DAT reward for a proven file.
func (c *Client) RequestReward(ctx context.Context, fileID, proofIndex *big.Int) (*Receipt, error) {
	return c.transact(ctx, &c.dataRegistry, "requestReward", nil, fileID, proofIndex)
}
