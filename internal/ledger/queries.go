package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Query kinds.
const (
	KindRAG       = "rag"
	KindLocal     = "local"
	KindInsights  = "insights"
	KindInference = "inference"
)

// QueryRecord is one retrieval or inference call.
type QueryRecord struct {
	ID          string        `json:"id"`
	FileID      string        `json:"file_id,omitempty"`
	Query       string        `json:"query"`
	Kind        string        `json:"kind"`
	ResultCount int           `json:"result_count"`
	Latency     time.Duration `json:"latency"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// FileCount pairs a file id with how often it was queried.
type FileCount struct {
	FileID string `json:"file_id"`
	Count  int    `json:"count"`
}

// Trends summarizes queries since a point in time.
type Trends struct {
	Since        time.Time      `json:"since"`
	Total        int            `json:"total"`
	ByKind       map[string]int `json:"by_kind"`
	AvgLatencyMs float64        `json:"avg_latency_ms"`
	ErrorRate    float64        `json:"error_rate"`
	TopFiles     []FileCount    `json:"top_files"`
}

// RecordQuery stores q, assigning an ID and timestamp when unset.
func (l *Ledger) RecordQuery(ctx context.Context, q *QueryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO queries
		(id, file_id, query, kind, result_count, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.FileID, q.Query, q.Kind, q.ResultCount, q.Latency.Milliseconds(), q.Error, q.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	return nil
}

// QueryTrends aggregates queries recorded at or after since.
func (l *Ledger) QueryTrends(ctx context.Context, since time.Time, topN int) (*Trends, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if topN <= 0 {
		topN = 5
	}
	cutoff := since.UnixMilli()
	t := &Trends{Since: since.UTC(), ByKind: make(map[string]int), TopFiles: []FileCount{}}

	var failed int
	var avg float64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(latency_ms), 0),
		COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0)
		FROM queries WHERE created_at >= ?`, cutoff).Scan(&t.Total, &avg, &failed)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queries: %w", err)
	}
	t.AvgLatencyMs = avg
	if t.Total > 0 {
		t.ErrorRate = float64(failed) / float64(t.Total)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM queries
		WHERE created_at >= ? GROUP BY kind`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to count query kinds: %w", err)
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, err
		}
		t.ByKind[kind] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = l.db.QueryContext(ctx, `SELECT file_id, COUNT(*) AS n FROM queries
		WHERE created_at >= ? AND file_id != '' GROUP BY file_id ORDER BY n DESC, file_id ASC LIMIT ?`, cutoff, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to rank files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fc FileCount
		if err := rows.Scan(&fc.FileID, &fc.Count); err != nil {
			return nil, err
		}
		t.TopFiles = append(t.TopFiles, fc)
	}
	return t, rows.Err()
}
