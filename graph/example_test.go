package graph_test

import (
	"context"
	"fmt"

	"github.com/langchain-ai/langgraph-go/graph"
	"github.com/langchain-ai/langgraph-go/graph/checkpoint/inmemory"
)

func ExampleStateGraph() {
	schema := graph.NewStateSchema().AddField("messages", graph.StateField{
		Reducer: graph.AppendReducer,
		Default: func() any { return []any{} },
	})

	g, err := graph.NewStateGraph(schema).
		AddNode("greet", func(ctx context.Context, state graph.State) (any, error) {
			return graph.State{"messages": "hello"}, nil
		}).
		SetEntryPoint("greet").
		SetFinishPoint("greet").
		Compile()
	if err != nil {
		panic(err)
	}

	exec, err := graph.NewExecutor(g)
	if err != nil {
		panic(err)
	}
	defer exec.Close()

	state, err := exec.Invoke(context.Background(), graph.State{"messages": []any{"hi"}})
	if err != nil {
		panic(err)
	}
	fmt.Println(state["messages"])
	// Output: [hi hello]
}

func ExampleInterrupt() {
	schema := graph.NewStateSchema().AddField("approved", graph.StateField{})

	g, err := graph.NewStateGraph(schema).
		AddNode("review", func(ctx context.Context, state graph.State) (any, error) {
			answer, err := graph.Interrupt(ctx, "approve the release?")
			if err != nil {
				return nil, err
			}
			return graph.State{"approved": answer}, nil
		}).
		SetEntryPoint("review").
		SetFinishPoint("review").
		Compile()
	if err != nil {
		panic(err)
	}

	exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(inmemory.NewSaver()))
	if err != nil {
		panic(err)
	}
	defer exec.Close()

	ctx := context.Background()
	_, err = exec.Invoke(ctx, graph.State{"approved": false}, graph.WithThreadID("release-1"))
	if gi, ok := graph.AsInterrupt(err); ok {
		fmt.Println("paused:", gi.Value)
	}

	state, err := exec.Invoke(ctx, nil, graph.WithThreadID("release-1"), graph.WithResume("yes"))
	if err != nil {
		panic(err)
	}
	fmt.Println("approved:", state["approved"])
	// Output:
	// paused: approve the release?
	// approved: yes
}
