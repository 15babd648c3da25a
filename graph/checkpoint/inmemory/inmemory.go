// Package inmemory provides an in-memory CheckpointSaver, suitable for
// tests and single-process use.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/langchain-ai/langgraph-go/graph"
)

// Saver is an in-memory implementation of graph.CheckpointSaver. All
// operations are guarded by a single mutex, so a reader sees either the
// prior checkpoint or the new one in full, never a partial write.
type Saver struct {
	mu sync.RWMutex
	// thread -> namespace -> checkpoint id -> tuple
	storage map[string]map[string]map[string]*graph.CheckpointTuple
	// thread -> namespace -> checkpoint id -> (task id, sequence) -> write
	writes map[string]map[string]map[string]map[writeKey]graph.PendingWrite
}

type writeKey struct {
	taskID string
	seq    int
}

// NewSaver creates an empty in-memory saver.
func NewSaver() *Saver {
	return &Saver{
		storage: make(map[string]map[string]map[string]*graph.CheckpointTuple),
		writes:  make(map[string]map[string]map[string]map[writeKey]graph.PendingWrite),
	}
}

// Get retrieves a checkpoint by configuration.
func (s *Saver) Get(ctx context.Context, config map[string]any) (*graph.Checkpoint, error) {
	tuple, err := s.GetTuple(ctx, config)
	if err != nil || tuple == nil {
		return nil, err
	}
	return tuple.Checkpoint, nil
}

// GetTuple retrieves a checkpoint tuple by configuration. With no
// checkpoint id in the config, the latest checkpoint of the thread and
// namespace is returned.
func (s *Saver) GetTuple(_ context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threadID := graph.GetThreadID(config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	checkpoints := s.storage[threadID][namespace]
	if len(checkpoints) == 0 {
		return nil, nil
	}
	if checkpointID == "" {
		// Version-6 ids are lexically time-ordered, so the greatest id is
		// the latest checkpoint.
		for id := range checkpoints {
			if id > checkpointID {
				checkpointID = id
			}
		}
	}
	tuple, ok := checkpoints[checkpointID]
	if !ok {
		return nil, nil
	}
	return s.copyTuple(threadID, namespace, tuple), nil
}

// copyTuple clones a stored tuple and attaches its pending writes. Callers
// must hold at least the read lock.
func (s *Saver) copyTuple(threadID, namespace string, tuple *graph.CheckpointTuple) *graph.CheckpointTuple {
	out := &graph.CheckpointTuple{
		Config:       tuple.Config,
		Checkpoint:   tuple.Checkpoint.Copy(),
		Metadata:     tuple.Metadata,
		ParentConfig: tuple.ParentConfig,
	}
	if stored, ok := s.writes[threadID][namespace][tuple.Checkpoint.ID]; ok && len(stored) > 0 {
		keys := make([]writeKey, 0, len(stored))
		for k := range stored {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].taskID != keys[j].taskID {
				return keys[i].taskID < keys[j].taskID
			}
			return keys[i].seq < keys[j].seq
		})
		out.PendingWrites = make([]graph.PendingWrite, 0, len(keys))
		for _, k := range keys {
			out.PendingWrites = append(out.PendingWrites, stored[k])
		}
	}
	return out
}

// List retrieves checkpoints matching the filter, newest first.
func (s *Saver) List(_ context.Context, config map[string]any, filter *graph.CheckpointFilter) ([]*graph.CheckpointTuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threadID := graph.GetThreadID(config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(config)

	checkpoints := s.storage[threadID][namespace]
	ids := make([]string, 0, len(checkpoints))
	for id := range checkpoints {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	var before string
	if filter != nil && filter.Before != nil {
		before = graph.GetCheckpointID(filter.Before)
	}
	var results []*graph.CheckpointTuple
	for _, id := range ids {
		if before != "" && id >= before {
			continue
		}
		tuple := checkpoints[id]
		if filter != nil && !matchesMetadata(tuple.Metadata, filter.Metadata) {
			continue
		}
		results = append(results, s.copyTuple(threadID, namespace, tuple))
		if filter != nil && filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

func matchesMetadata(meta *graph.CheckpointMetadata, want map[string]any) bool {
	if len(want) == 0 {
		return true
	}
	if meta == nil {
		return false
	}
	for key, value := range want {
		switch key {
		case "source":
			if meta.Source != fmt.Sprintf("%v", value) {
				return false
			}
		case "step":
			if fmt.Sprintf("%v", meta.Step) != fmt.Sprintf("%v", value) {
				return false
			}
		default:
			if fmt.Sprintf("%v", meta.Extra[key]) != fmt.Sprintf("%v", value) {
				return false
			}
		}
	}
	return true
}

// Put stores a checkpoint and returns the config referencing it.
func (s *Saver) Put(_ context.Context, req graph.PutRequest) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threadID := graph.GetThreadID(req.Config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(req.Config)
	if req.Checkpoint == nil {
		return nil, fmt.Errorf("checkpoint is nil")
	}

	if s.storage[threadID] == nil {
		s.storage[threadID] = make(map[string]map[string]*graph.CheckpointTuple)
	}
	if s.storage[threadID][namespace] == nil {
		s.storage[threadID][namespace] = make(map[string]*graph.CheckpointTuple)
	}

	resultConfig := graph.CreateCheckpointConfig(threadID, req.Checkpoint.ID, namespace)
	tuple := &graph.CheckpointTuple{
		Config:     resultConfig,
		Checkpoint: req.Checkpoint.Copy(),
		Metadata:   req.Metadata,
	}
	if req.Metadata != nil {
		if parentID, ok := req.Metadata.Parents[namespace]; ok && parentID != "" {
			tuple.ParentConfig = graph.CreateCheckpointConfig(threadID, parentID, namespace)
		}
	}
	s.storage[threadID][namespace][req.Checkpoint.ID] = tuple
	return resultConfig, nil
}

// PutWrites stores intermediate writes keyed by (checkpoint, task,
// sequence); storing the same key twice replaces the prior entry, so
// retried tasks cannot double-write.
func (s *Saver) PutWrites(_ context.Context, req graph.PutWritesRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	threadID := graph.GetThreadID(req.Config)
	if threadID == "" {
		return graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(req.Config)
	checkpointID := graph.GetCheckpointID(req.Config)
	if checkpointID == "" {
		return fmt.Errorf("checkpoint_id is required for writes")
	}

	if s.writes[threadID] == nil {
		s.writes[threadID] = make(map[string]map[string]map[writeKey]graph.PendingWrite)
	}
	if s.writes[threadID][namespace] == nil {
		s.writes[threadID][namespace] = make(map[string]map[writeKey]graph.PendingWrite)
	}
	if s.writes[threadID][namespace][checkpointID] == nil {
		s.writes[threadID][namespace][checkpointID] = make(map[writeKey]graph.PendingWrite)
	}
	for _, w := range req.Writes {
		w.TaskID = req.TaskID
		s.writes[threadID][namespace][checkpointID][writeKey{taskID: req.TaskID, seq: w.Sequence}] = w
	}
	return nil
}

// DeleteThread removes all checkpoints and writes for a thread.
func (s *Saver) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.storage, threadID)
	delete(s.writes, threadID)
	return nil
}

// Close releases resources. The in-memory saver holds none.
func (s *Saver) Close() error { return nil }
