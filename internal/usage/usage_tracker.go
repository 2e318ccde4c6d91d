// Package usage accumulates token usage reported by inference endpoints and
// persists it under the lazkit state directory.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lazkit/internal/logging"
	"lazkit/internal/metrics"
)

// FileName is the usage file inside the state directory.
const FileName = "usage.json"

const autoSaveDelay = 5 * time.Second

type (
	trackerKey   struct{}
	operationKey struct{}
)

// Tracker records token usage and saves it to disk, debounced.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
	dirty    bool
	timer    *time.Timer
}

// NewTracker opens (or creates) the usage file in stateDir.
func NewTracker(stateDir string) (*Tracker, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(stateDir, FileName),
		data:     UsageData{Version: "1.0", Aggregate: newAggregate()},
	}
	if err := t.Load(); err != nil {
		logging.InferenceWarn("Ignoring unreadable usage file %s: %v", t.filePath, err)
		t.data.Aggregate = newAggregate()
	}
	return t, nil
}

// Path returns the usage file location.
func (t *Tracker) Path() string {
	return t.filePath
}

// Load reads the usage file. A missing file is not an error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var data UsageData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}

	agg := &data.Aggregate
	if agg.ByEndpoint == nil {
		agg.ByEndpoint = make(map[string]TokenCounts)
	}
	if agg.ByModel == nil {
		agg.ByModel = make(map[string]TokenCounts)
	}
	if agg.ByOperation == nil {
		agg.ByOperation = make(map[string]TokenCounts)
	}
	t.data = data
	return nil
}

// Save writes the usage file.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.filePath, raw, 0o644); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Track records one completion. The operation comes from the context
// (see WithOperation) and defaults to "chat". A nil tracker is a no-op.
func (t *Tracker) Track(ctx context.Context, model, endpoint string, input, output int) {
	if t == nil {
		return
	}
	op := OperationFrom(ctx)
	metrics.RecordTokens(op, input, output)

	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Total.Add(input, output)
	agg.Requests++
	addToMap(agg.ByEndpoint, endpoint, input, output)
	addToMap(agg.ByModel, model, input, output)
	addToMap(agg.ByOperation, op, input, output)

	if !t.dirty {
		t.dirty = true
		t.timer = time.AfterFunc(autoSaveDelay, func() {
			if err := t.Save(); err != nil {
				logging.InferenceWarn("Usage autosave failed: %v", err)
			}
		})
	}
}

// Close cancels any pending autosave and flushes unsaved usage.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if !t.dirty {
		return nil
	}
	return t.saveLocked()
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByEndpoint = copyTokenCountsMap(stats.ByEndpoint)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByOperation = copyTokenCountsMap(stats.ByOperation)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	if key == "" {
		key = "unknown"
	}
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// NewContext returns a context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext returns the tracker in ctx, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// WithOperation labels usage recorded under ctx, e.g. "infer" or "insights".
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// OperationFrom returns the operation label in ctx, defaulting to "chat".
func OperationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return "chat"
}
