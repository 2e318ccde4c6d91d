package usage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_TrackAggregatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir)
	require.NoError(t, err)
	defer tracker.Close()

	ctx := WithOperation(context.Background(), "infer")
	tracker.Track(ctx, "llama-3.3", "node.example", 10, 5)
	tracker.Track(context.Background(), "llama-3.3", "node.example", 2, 3)

	stats := tracker.Stats()
	assert.Equal(t, TokenCounts{Input: 12, Output: 8, Total: 20}, stats.Total)
	assert.EqualValues(t, 2, stats.Requests)
	assert.EqualValues(t, 20, stats.ByEndpoint["node.example"].Total)
	assert.EqualValues(t, 20, stats.ByModel["llama-3.3"].Total)
	assert.EqualValues(t, 15, stats.ByOperation["infer"].Total)
	assert.EqualValues(t, 5, stats.ByOperation["chat"].Total)

	require.NoError(t, tracker.Close())

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	var persisted UsageData
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.EqualValues(t, 20, persisted.Aggregate.Total.Total)

	reopened, err := NewTracker(dir)
	require.NoError(t, err)
	assert.Equal(t, stats, reopened.Stats())
}

func TestTracker_StatsIsACopy(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	defer tracker.Close()

	tracker.Track(context.Background(), "m", "", 1, 1)
	stats := tracker.Stats()
	stats.ByModel["m"] = TokenCounts{}

	assert.EqualValues(t, 2, tracker.Stats().ByModel["m"].Total)
	assert.EqualValues(t, 2, tracker.Stats().ByEndpoint["unknown"].Total)
}

func TestTracker_CorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))

	tracker, err := NewTracker(dir)
	require.NoError(t, err)
	defer tracker.Close()

	tracker.Track(context.Background(), "m", "e", 1, 2)
	assert.EqualValues(t, 3, tracker.Stats().Total.Total)
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tracker *Tracker
	tracker.Track(context.Background(), "m", "e", 1, 1)
	assert.NoError(t, tracker.Close())
	assert.Nil(t, FromContext(NewContext(context.Background(), nil)))
}

func TestContextHelpers(t *testing.T) {
	tracker, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	defer tracker.Close()

	ctx := NewContext(context.Background(), tracker)
	assert.Same(t, tracker, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))

	assert.Equal(t, "chat", OperationFrom(context.Background()))
	assert.Equal(t, "insights", OperationFrom(WithOperation(ctx, "insights")))
}
