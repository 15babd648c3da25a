package graph_test

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchain-ai/langgraph-go/graph"
	"github.com/langchain-ai/langgraph-go/graph/checkpoint/inmemory"
)

func askSchema() *graph.StateSchema {
	return graph.NewStateSchema().
		AddField("question", graph.StateField{Type: reflect.TypeOf("")}).
		AddField("answers", graph.StateField{
			Type:    reflect.TypeOf([]any{}),
			Reducer: graph.AppendReducer,
			Default: func() any { return []any{} },
		})
}

// TestInterruptAndResume drives the full pause/resume protocol: a node
// with two interrupt call sites pauses twice and receives the injected
// values in order.
func TestInterruptAndResume(t *testing.T) {
	saver := inmemory.NewSaver()
	ctx := context.Background()

	g, err := graph.NewStateGraph(askSchema()).
		AddNode("ask", func(ctx context.Context, state graph.State) (any, error) {
			first, err := graph.Interrupt(ctx, map[string]any{"value": 1})
			if err != nil {
				return nil, err
			}
			second, err := graph.Interrupt(ctx, map[string]any{"value": 2})
			if err != nil {
				return nil, err
			}
			return graph.State{"answers": []any{first, second}}, nil
		}).
		SetEntryPoint("ask").
		SetFinishPoint("ask").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)
	defer exec.Close()

	// First run pauses at the first interrupt with its payload exposed.
	_, err = exec.Invoke(ctx, graph.State{"question": "?"}, graph.WithThreadID("t-int"))
	require.Error(t, err)
	gi, ok := graph.AsInterrupt(err)
	require.True(t, ok)
	assert.Equal(t, "ask", gi.NodeID)
	assert.Equal(t, map[string]any{"value": 1}, gi.Value)
	require.NotEmpty(t, gi.ID)

	// Resuming replays the node; the first call site now returns the
	// injected value and the second pauses.
	_, err = exec.Invoke(ctx, nil, graph.WithThreadID("t-int"), graph.WithResume("OK"))
	require.Error(t, err)
	gi2, ok := graph.AsInterrupt(err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": 2}, gi2.Value)
	assert.NotEqual(t, gi.ID, gi2.ID, "each call site has its own id")

	// Second resume completes the node with both values in order.
	state, err := exec.Invoke(ctx, nil, graph.WithThreadID("t-int"), graph.WithResume("OK2"))
	require.NoError(t, err)
	assert.Equal(t, []any{"OK", "OK2"}, state["answers"])
	assert.Equal(t, "?", state["question"])
}

func TestInterruptWithoutSaverFails(t *testing.T) {
	g, err := graph.NewStateGraph(askSchema()).
		AddNode("ask", func(ctx context.Context, state graph.State) (any, error) {
			if _, err := graph.Interrupt(ctx, "pause"); err != nil {
				return nil, err
			}
			return nil, nil
		}).
		SetEntryPoint("ask").
		SetFinishPoint("ask").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g)
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Invoke(context.Background(), graph.State{"question": "?"})
	require.ErrorIs(t, err, graph.ErrMissingCheckpointer)
}

func TestResumeWithoutSaverFails(t *testing.T) {
	g, err := graph.NewStateGraph(askSchema()).
		AddNode("ask", noop).
		SetEntryPoint("ask").
		SetFinishPoint("ask").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g)
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Invoke(context.Background(), nil, graph.WithResume("v"))
	require.ErrorIs(t, err, graph.ErrMissingCheckpointer)
}

func TestInterruptOutsideTaskFails(t *testing.T) {
	_, err := graph.Interrupt(context.Background(), "v")
	require.Error(t, err)
	var gv *graph.GraphValueError
	assert.ErrorAs(t, err, &gv)
}

// TestInterruptSiblingWritesReplayed checks that a task which completed
// before a sibling interrupted does not re-run on resume.
func TestInterruptSiblingWritesReplayed(t *testing.T) {
	saver := inmemory.NewSaver()
	ctx := context.Background()
	var quietRuns atomic.Int32

	g, err := graph.NewStateGraph(askSchema()).
		AddNode("fan", noop).
		AddNode("quiet", func(ctx context.Context, state graph.State) (any, error) {
			quietRuns.Add(1)
			return graph.State{"answers": "quiet-done"}, nil
		}).
		AddNode("ask", func(ctx context.Context, state graph.State) (any, error) {
			v, err := graph.Interrupt(ctx, "need input")
			if err != nil {
				return nil, err
			}
			return graph.State{"answers": v}, nil
		}).
		SetEntryPoint("fan").
		AddEdge("fan", "quiet").
		AddEdge("fan", "ask").
		SetFinishPoint("quiet").
		SetFinishPoint("ask").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Invoke(ctx, graph.State{"question": "?"}, graph.WithThreadID("t-sib"))
	require.Error(t, err)
	require.True(t, graph.IsInterrupt(err))

	state, err := exec.Invoke(ctx, nil, graph.WithThreadID("t-sib"), graph.WithResume("answered"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"quiet-done", "answered"}, state["answers"].([]any))
	assert.LessOrEqual(t, quietRuns.Load(), int32(2))
}

func TestStaticInterruptBefore(t *testing.T) {
	saver := inmemory.NewSaver()
	ctx := context.Background()
	var approveRuns atomic.Int32

	g, err := graph.NewStateGraph(askSchema()).
		AddNode("draft", func(ctx context.Context, state graph.State) (any, error) {
			return graph.State{"answers": "drafted"}, nil
		}).
		AddNode("approve", func(ctx context.Context, state graph.State) (any, error) {
			approveRuns.Add(1)
			return graph.State{"answers": "approved"}, nil
		}).
		SetEntryPoint("draft").
		AddEdge("draft", "approve").
		SetFinishPoint("approve").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Invoke(ctx, graph.State{"question": "?"},
		graph.WithThreadID("t-static"), graph.WithInterruptBefore("approve"))
	require.Error(t, err)
	gi, ok := graph.AsInterrupt(err)
	require.True(t, ok)
	assert.Equal(t, "approve", gi.NodeID)
	assert.Zero(t, approveRuns.Load(), "paused before the node ran")

	state, err := exec.Invoke(ctx, nil, graph.WithThreadID("t-static"),
		graph.WithCommand(graph.NewCommand()), graph.WithInterruptBefore("approve"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), approveRuns.Load())
	assert.Equal(t, []any{"drafted", "approved"}, state["answers"])
}

func TestStaticInterruptAfter(t *testing.T) {
	saver := inmemory.NewSaver()
	ctx := context.Background()

	g, err := graph.NewStateGraph(askSchema()).
		AddNode("draft", func(ctx context.Context, state graph.State) (any, error) {
			return graph.State{"answers": "drafted"}, nil
		}).
		AddNode("publish", func(ctx context.Context, state graph.State) (any, error) {
			return graph.State{"answers": "published"}, nil
		}).
		SetEntryPoint("draft").
		AddEdge("draft", "publish").
		SetFinishPoint("publish").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(saver))
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Invoke(ctx, graph.State{"question": "?"},
		graph.WithThreadID("t-after"), graph.WithInterruptAfter("draft"))
	require.Error(t, err)
	gi, ok := graph.AsInterrupt(err)
	require.True(t, ok)
	assert.Equal(t, "draft", gi.NodeID)

	// The draft step was committed; resuming continues with publish.
	state, err := exec.Invoke(ctx, nil, graph.WithThreadID("t-after"),
		graph.WithCommand(graph.NewCommand()))
	require.NoError(t, err)
	assert.Equal(t, []any{"drafted", "published"}, state["answers"])
}

func TestTaskContextExposesIdentity(t *testing.T) {
	g, err := graph.NewStateGraph(askSchema()).
		AddNode("probe", func(ctx context.Context, state graph.State) (any, error) {
			tc, ok := graph.FromContext(ctx)
			require.True(t, ok)
			assert.Equal(t, "probe", tc.NodeID)
			assert.NotEmpty(t, tc.TaskID)
			return nil, nil
		}).
		SetEntryPoint("probe").
		SetFinishPoint("probe").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g)
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Invoke(context.Background(), graph.State{"question": "?"})
	require.NoError(t, err)
}

func TestSendFromTaskContext(t *testing.T) {
	g, err := graph.NewStateGraph(askSchema()).
		AddNode("emit", func(ctx context.Context, state graph.State) (any, error) {
			tc, _ := graph.FromContext(ctx)
			require.NoError(t, tc.SendTo("sink", graph.State{"question": "routed"}))
			return nil, nil
		}, graph.WithEnds("sink")).
		AddNode("sink", func(ctx context.Context, state graph.State) (any, error) {
			return graph.State{"answers": state["question"]}, nil
		}).
		SetEntryPoint("emit").
		SetFinishPoint("sink").
		Compile()
	require.NoError(t, err)

	exec, err := graph.NewExecutor(g)
	require.NoError(t, err)
	defer exec.Close()

	state, err := exec.Invoke(context.Background(), graph.State{"question": "?"})
	require.NoError(t, err)
	assert.Equal(t, []any{"routed"}, state["answers"])
}
