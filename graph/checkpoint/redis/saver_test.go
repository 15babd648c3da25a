package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchain-ai/langgraph-go/graph"
)

func newTestSaver(t *testing.T) *Saver {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, err := NewSaver(WithClient(client))
	require.NoError(t, err)
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

func TestRedisRoundTrip(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	ckpt := putCheckpoint(t, s, "t1", map[string]any{"messages": []any{"a"}}, 0)

	tuple, err := s.GetTuple(ctx, graph.CreateCheckpointConfig("t1", "", ""))
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, ckpt.ID, tuple.Checkpoint.ID)
	assert.Equal(t, []any{"a"}, tuple.Checkpoint.ChannelValues["messages"])
}

func TestRedisLatestByCheckpointID(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	old := putCheckpoint(t, s, "t1", map[string]any{"c": "old"}, 0)
	newest := putCheckpoint(t, s, "t1", map[string]any{"c": "new"}, 1)

	tuple, err := s.GetTuple(ctx, graph.CreateCheckpointConfig("t1", "", ""))
	require.NoError(t, err)
	assert.Equal(t, newest.ID, tuple.Checkpoint.ID)

	tuple, err = s.GetTuple(ctx, graph.CreateCheckpointConfig("t1", old.ID, ""))
	require.NoError(t, err)
	assert.Equal(t, "old", tuple.Checkpoint.ChannelValues["c"])
}

func TestRedisList(t *testing.T) {
	s := newTestSaver(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, putCheckpoint(t, s, "t1", map[string]any{"c": i}, i).ID)
	}

	tuples, err := s.List(ctx, graph.CreateCheckpointConfig("t1", "", ""), nil)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	assert.Equal(t, ids[2], tuples[0].Checkpoint.ID, "newest first")

	limited, err := s.List(ctx, graph.CreateCheckpointConfig("t1", "", ""),
		&graph.CheckpointFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRedisPutWritesIdempotent(t *testing.T) {
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
	assert.Equal(t, "w1", tuple.PendingWrites[1].Value)
}

func TestRedisDeleteThread(t *testing.T) {
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
