package graph

import (
	"context"
	"time"

	intchannel "github.com/langchain-ai/langgraph-go/graph/internal/channel"
)

// StateSnapshot describes one point in a thread's history: the state
// values at a checkpoint, the nodes planned next, and the references
// needed to resume or fork from it.
type StateSnapshot struct {
	// Values is the state restored from the checkpoint.
	Values State
	// Next lists the nodes that would run in the next superstep.
	Next []string
	// Config references the snapshot's checkpoint.
	Config map[string]any
	// Metadata is the checkpoint metadata.
	Metadata *CheckpointMetadata
	// ParentConfig references the parent checkpoint, if any.
	ParentConfig map[string]any
	// CreatedAt is the checkpoint timestamp.
	CreatedAt time.Time
	// Interrupt carries the pending interrupt recorded at this point.
	Interrupt *InterruptState
}

func (e *Executor) snapshotFromTuple(tuple *CheckpointTuple) (*StateSnapshot, error) {
	channels := e.graph.newChannelSet()
	restoreChannels(channels, tuple.Checkpoint)
	p := &planner{g: e.graph}
	tasks, err := p.plan(channels, tuple.Checkpoint)
	if err != nil {
		return nil, err
	}
	next := make([]string, 0, len(tasks))
	for _, t := range tasks {
		next = append(next, t.NodeID)
	}
	return &StateSnapshot{
		Values:       readStateSnapshot(e.graph, channels),
		Next:         next,
		Config:       CreateCheckpointConfig(GetThreadID(tuple.Config), tuple.Checkpoint.ID, GetNamespace(tuple.Config)),
		Metadata:     tuple.Metadata,
		ParentConfig: tuple.ParentConfig,
		CreatedAt:    tuple.Checkpoint.Timestamp,
		Interrupt:    tuple.Checkpoint.InterruptState,
	}, nil
}

// GetState returns the snapshot of the latest (or explicitly referenced)
// checkpoint of a thread.
func (e *Executor) GetState(ctx context.Context, opts ...RunOption) (*StateSnapshot, error) {
	ro := newRunOptions(opts...)
	if e.saver == nil {
		return nil, ErrMissingCheckpointer
	}
	if ro.ThreadID == "" {
		return nil, ErrThreadIDRequired
	}
	tuple, err := e.saver.GetTuple(ctx, CreateCheckpointConfig(ro.ThreadID, ro.CheckpointID, ro.CheckpointNS))
	if err != nil {
		return nil, err
	}
	if tuple == nil {
		return nil, ErrCheckpointNotFound
	}
	return e.snapshotFromTuple(tuple)
}

// GetStateHistory returns the thread's snapshots, newest first.
func (e *Executor) GetStateHistory(ctx context.Context, opts ...RunOption) ([]*StateSnapshot, error) {
	ro := newRunOptions(opts...)
	if e.saver == nil {
		return nil, ErrMissingCheckpointer
	}
	if ro.ThreadID == "" {
		return nil, ErrThreadIDRequired
	}
	tuples, err := e.saver.List(ctx, CreateCheckpointConfig(ro.ThreadID, "", ro.CheckpointNS), nil)
	if err != nil {
		return nil, err
	}
	snapshots := make([]*StateSnapshot, 0, len(tuples))
	for _, tuple := range tuples {
		snap, err := e.snapshotFromTuple(tuple)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// UpdateState forks the referenced checkpoint, applies the update through
// the schema's reducers, and commits the fork as a new checkpoint. It
// returns the config referencing the fork, which a subsequent run can
// resume from.
func (e *Executor) UpdateState(ctx context.Context, update State, opts ...RunOption) (map[string]any, error) {
	ro := newRunOptions(opts...)
	if e.saver == nil {
		return nil, ErrMissingCheckpointer
	}
	if ro.ThreadID == "" {
		return nil, ErrThreadIDRequired
	}
	tuple, err := e.saver.GetTuple(ctx, CreateCheckpointConfig(ro.ThreadID, ro.CheckpointID, ro.CheckpointNS))
	if err != nil {
		return nil, err
	}
	if tuple == nil {
		return nil, ErrCheckpointNotFound
	}

	channels := e.graph.newChannelSet()
	restoreChannels(channels, tuple.Checkpoint)
	writes := make([]PendingWrite, 0, len(update))
	for k, v := range update {
		writes = append(writes, PendingWrite{Channel: k, Value: v})
	}
	seed := &Task{Writes: writes}
	if _, _, err := applyWrites(e.graph, channels, []*Task{seed}); err != nil {
		return nil, err
	}

	fork := tuple.Checkpoint.Fork()
	fork.ChannelValues = make(map[string]any)
	fork.ChannelVersions = make(map[string]any)
	for name, ch := range channels {
		snap := ch.Checkpoint()
		if snap.Version > 0 {
			fork.ChannelVersions[name] = snap.Version
		}
		if !snap.Available {
			continue
		}
		switch ch.Type() {
		case intchannel.TypeTopic:
			fork.ChannelValues[name] = snap.Values
		case intchannel.TypeBarrier:
			fork.ChannelValues[name] = snap.Contribs
		default:
			fork.ChannelValues[name] = snap.Value
		}
	}

	meta := NewCheckpointMetadata(SourceFork, tuple.Metadata.Step)
	meta.Parents[ro.CheckpointNS] = tuple.Checkpoint.ID
	if _, err := e.saver.Put(ctx, PutRequest{
		Config:      CreateCheckpointConfig(ro.ThreadID, "", ro.CheckpointNS),
		Checkpoint:  fork,
		Metadata:    meta,
		NewVersions: fork.ChannelVersions,
	}); err != nil {
		return nil, err
	}
	return CreateCheckpointConfig(ro.ThreadID, fork.ID, ro.CheckpointNS), nil
}
