package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lazkit/internal/logging"
)

// Contribution statuses. A contribution advances through them in order,
// or stops at StatusFailed.
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusAnchored = "anchored"
	StatusProved   = "proved"
	StatusRewarded = "rewarded"
	StatusFailed   = "failed"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Contribution is one run of the contribution pipeline.
type Contribution struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CID       string    `json:"cid,omitempty"`
	URL       string    `json:"url,omitempty"`
	FileID    string    `json:"file_id,omitempty"`
	FileHash  string    `json:"file_hash,omitempty"`
	AnchorTx  string    `json:"anchor_tx,omitempty"`
	ProofTx   string    `json:"proof_tx,omitempty"`
	RewardTx  string    `json:"reward_tx,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	NodeURL   string    `json:"node_url,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const contributionColumns = `id, name, cid, url, file_id, file_hash, anchor_tx, proof_tx, reward_tx,
	job_id, node_url, status, error, created_at, updated_at`

// CreateContribution inserts c, assigning an ID and timestamps when unset.
func (l *Ledger) CreateContribution(ctx context.Context, c *Contribution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusPending
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := l.db.ExecContext(ctx, `INSERT INTO contributions (`+contributionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.CID, c.URL, c.FileID, c.FileHash, c.AnchorTx, c.ProofTx, c.RewardTx,
		c.JobID, c.NodeURL, c.Status, c.Error, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		logging.StoreError("Failed to insert contribution %s: %v", c.ID, err)
		return fmt.Errorf("failed to insert contribution: %w", err)
	}
	logging.StoreDebug("Created contribution %s (%s)", c.ID, c.Name)
	return nil
}

// UpdateContribution rewrites every mutable field of c.
func (l *Ledger) UpdateContribution(ctx context.Context, c *Contribution) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c.UpdatedAt = time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `UPDATE contributions SET
		name = ?, cid = ?, url = ?, file_id = ?, file_hash = ?, anchor_tx = ?, proof_tx = ?,
		reward_tx = ?, job_id = ?, node_url = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.CID, c.URL, c.FileID, c.FileHash, c.AnchorTx, c.ProofTx,
		c.RewardTx, c.JobID, c.NodeURL, c.Status, c.Error, c.UpdatedAt.UnixMilli(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("contribution %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// GetContribution loads a contribution by ID.
func (l *Ledger) GetContribution(ctx context.Context, id string) (*Contribution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row := l.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contribution %s: %w", id, ErrNotFound)
	}
	return c, err
}

// ListContributions returns the newest contributions first.
func (l *Ledger) ListContributions(ctx context.Context, limit int) ([]*Contribution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var out []*Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContribution(s scanner) (*Contribution, error) {
	var c Contribution
	var created, updated int64
	err := s.Scan(&c.ID, &c.Name, &c.CID, &c.URL, &c.FileID, &c.FileHash, &c.AnchorTx, &c.ProofTx,
		&c.RewardTx, &c.JobID, &c.NodeURL, &c.Status, &c.Error, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(created).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return &c, nil
}
