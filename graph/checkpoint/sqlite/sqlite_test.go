package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchain-ai/langgraph-go/graph"
)

func newTestSaver(t *testing.T) *Saver {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func putCheckpoint(t *testing.T, s *Saver, threadID string, values map[string]any, step int) *graph.Checkpoint {
	t.Helper()
	ckpt := graph.NewCheckpoint(values, map[string]any{"c": int64(step + 1)}, nil)
	_, err := s.Put(context.Background(), graph.PutRequest{
		Config:     graph.CreateCheckpointConfig(threadID, "", ""),
		Checkpoint: ckpt,
		Metadata:   graph.NewCheckpointMetadata(graph.SourceLoop, step),
	})
	require.NoError(t, err)
	return ckpt
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	ckpt := putCheckpoint(t, s, "t1", map[string]any{
		"messages": []any{"a", "b"},
		"count":    float64(2),
	}, 0)

	tuple, err := s.GetTuple(ctx, graph.CreateCheckpointConfig("t1", "", ""))
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, ckpt.ID, tuple.Checkpoint.ID)
	assert.Equal(t, []any{"a", "b"}, tuple.Checkpoint.ChannelValues["messages"])
	assert.Equal(t, float64(2), tuple.Checkpoint.ChannelValues["count"])
	assert.Equal(t, graph.SourceLoop, tuple.Metadata.Source)
}

func TestSQLiteLatestByCheckpointID(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	putCheckpoint(t, s, "t1", map[string]any{"c": "old"}, 0)
	newest := putCheckpoint(t, s, "t1", map[string]any{"c": "new"}, 1)

	tuple, err := s.GetTuple(ctx, graph.CreateCheckpointConfig("t1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, newest.ID, tuple.Checkpoint.ID)
}

func TestSQLiteList(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, putCheckpoint(t, s, "t1", map[string]any{"c": i}, i).ID)
	}

	tuples, err := s.List(ctx, graph.CreateCheckpointConfig("t1", "", ""), nil)
	require.NoError(t, err)
	require.Len(t, tuples, 4)
	assert.Equal(t, ids[3], tuples[0].Checkpoint.ID, "newest first")

	limited, err := s.List(ctx, graph.CreateCheckpointConfig("t1", "", ""),
		&graph.CheckpointFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLitePutWritesIdempotent(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()
	ckpt := putCheckpoint(t, s, "t1", map[string]any{"c": "v"}, 0)

	req := graph.PutWritesRequest{
		Config: graph.CreateCheckpointConfig("t1", ckpt.ID, ""),
		TaskID: "task-1",
		Writes: []graph.PendingWrite{
			{Channel: "c", Value: "w0", Sequence: 0},
			{Channel: "c", Value: "w1", Sequence: 1},
		},
	}
	require.NoError(t, s.PutWrites(ctx, req))
	require.NoError(t, s.PutWrites(ctx, req))

	tuple, err := s.GetTuple(ctx, graph.CreateCheckpointConfig("t1", ckpt.ID, ""))
	require.NoError(t, err)
	require.Len(t, tuple.PendingWrites, 2)
	assert.Equal(t, "w0", tuple.PendingWrites[0].Value)
}

func TestSQLiteDeleteThread(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	putCheckpoint(t, s, "t1", map[string]any{"c": "v"}, 0)
	putCheckpoint(t, s, "t2", map[string]any{"c": "v"}, 0)

	require.NoError(t, s.DeleteThread(ctx, "t1"))

	tuple, err := s.GetTuple(ctx, graph.CreateCheckpointConfig("t1", "", ""))
	require.NoError(t, err)
	assert.Nil(t, tuple)

	tuple, err = s.GetTuple(ctx, graph.CreateCheckpointConfig("t2", "", ""))
	require.NoError(t, err)
	assert.NotNil(t, tuple)
}

func TestSQLiteMissingThread(t *testing.T) {
	s := newTestSaver(t)
	tuple, err := s.GetTuple(context.Background(), graph.CreateCheckpointConfig("ghost", "", ""))
	require.NoError(t, err)
	assert.Nil(t, tuple)
}
