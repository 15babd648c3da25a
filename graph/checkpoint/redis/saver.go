package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/langchain-ai/langgraph-go/graph"
)

// storedTuple is the JSON shape persisted per checkpoint.
type storedTuple struct {
	Checkpoint *graph.Checkpoint         `json:"checkpoint"`
	Metadata   *graph.CheckpointMetadata `json:"metadata"`
	ParentID   string                    `json:"parent_id,omitempty"`
}

// Saver is a Redis-backed implementation of graph.CheckpointSaver.
//
// Layout:
//
//	<prefix>:ckpt:<thread>:<ns>            hash: checkpoint id -> tuple JSON
//	<prefix>:writes:<thread>:<ns>:<ckpt>   hash: "<task>:<seq>" -> write JSON
//
// HSET makes both Put and PutWrites naturally idempotent; version-6
// checkpoint ids sort lexically by time, so the latest checkpoint is the
// greatest hash field.
type Saver struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
}

// NewSaver creates a Redis saver.
func NewSaver(opts ...Option) (*Saver, error) {
	o := newOptions(opts...)
	client := o.Client
	own := false
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     o.Addr,
			Password: o.Password,
			DB:       o.DB,
		})
		own = true
	}
	return &Saver{client: client, keyPrefix: o.KeyPrefix, ownClient: own}, nil
}

func (s *Saver) checkpointKey(threadID, namespace string) string {
	return fmt.Sprintf("%s:ckpt:%s:%s", s.keyPrefix, threadID, namespace)
}

func (s *Saver) writesKey(threadID, namespace, checkpointID string) string {
	return fmt.Sprintf("%s:writes:%s:%s:%s", s.keyPrefix, threadID, namespace, checkpointID)
}

// Get retrieves a checkpoint by configuration.
func (s *Saver) Get(ctx context.Context, config map[string]any) (*graph.Checkpoint, error) {
	tuple, err := s.GetTuple(ctx, config)
	if err != nil || tuple == nil {
		return nil, err
	}
	return tuple.Checkpoint, nil
}

// GetTuple retrieves a checkpoint tuple by configuration.
func (s *Saver) GetTuple(ctx context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	threadID := graph.GetThreadID(config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	key := s.checkpointKey(threadID, namespace)
	if checkpointID == "" {
		ids, err := s.client.HKeys(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("list checkpoint ids: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		sort.Strings(ids)
		checkpointID = ids[len(ids)-1]
	}

	raw, err := s.client.HGet(ctx, key, checkpointID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	tuple, err := s.decodeTuple(threadID, namespace, raw)
	if err != nil {
		return nil, err
	}
	writes, err := s.loadWrites(ctx, threadID, namespace, checkpointID)
	if err != nil {
		return nil, err
	}
	tuple.PendingWrites = writes
	return tuple, nil
}

func (s *Saver) decodeTuple(threadID, namespace, raw string) (*graph.CheckpointTuple, error) {
	var stored storedTuple
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	tuple := &graph.CheckpointTuple{
		Config:     graph.CreateCheckpointConfig(threadID, stored.Checkpoint.ID, namespace),
		Checkpoint: stored.Checkpoint,
		Metadata:   stored.Metadata,
	}
	if stored.ParentID != "" {
		tuple.ParentConfig = graph.CreateCheckpointConfig(threadID, stored.ParentID, namespace)
	}
	return tuple, nil
}

func (s *Saver) loadWrites(ctx context.Context, threadID, namespace, checkpointID string) ([]graph.PendingWrite, error) {
	fields, err := s.client.HGetAll(ctx, s.writesKey(threadID, namespace, checkpointID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load writes: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	type keyed struct {
		taskID string
		seq    int
		write  graph.PendingWrite
	}
	entries := make([]keyed, 0, len(fields))
	for field, raw := range fields {
		idx := strings.LastIndex(field, ":")
		if idx < 0 {
			continue
		}
		seq, err := strconv.Atoi(field[idx+1:])
		if err != nil {
			continue
		}
		var w graph.PendingWrite
		if err := json.Unmarshal([]byte(raw), &w); err != nil {
			return nil, fmt.Errorf("decode write: %w", err)
		}
		entries = append(entries, keyed{taskID: field[:idx], seq: seq, write: w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].taskID != entries[j].taskID {
			return entries[i].taskID < entries[j].taskID
		}
		return entries[i].seq < entries[j].seq
	})
	writes := make([]graph.PendingWrite, 0, len(entries))
	for _, e := range entries {
		writes = append(writes, e.write)
	}
	return writes, nil
}

// List returns the thread's checkpoints, newest first.
func (s *Saver) List(ctx context.Context, config map[string]any, filter *graph.CheckpointFilter) ([]*graph.CheckpointTuple, error) {
	threadID := graph.GetThreadID(config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(config)

	fields, err := s.client.HGetAll(ctx, s.checkpointKey(threadID, namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	ids := make([]string, 0, len(fields))
	for id := range fields {
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
		tuple, err := s.decodeTuple(threadID, namespace, fields[id])
		if err != nil {
			return nil, err
		}
		if filter != nil && !matchesMetadata(tuple.Metadata, filter.Metadata) {
			continue
		}
		writes, err := s.loadWrites(ctx, threadID, namespace, id)
		if err != nil {
			return nil, err
		}
		tuple.PendingWrites = writes
		results = append(results, tuple)
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

// Put stores a checkpoint.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (map[string]any, error) {
	threadID := graph.GetThreadID(req.Config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(req.Config)
	if req.Checkpoint == nil {
		return nil, errors.New("checkpoint is nil")
	}

	stored := storedTuple{Checkpoint: req.Checkpoint, Metadata: req.Metadata}
	if req.Metadata != nil && req.Metadata.Parents != nil {
		stored.ParentID = req.Metadata.Parents[namespace]
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.client.HSet(ctx, s.checkpointKey(threadID, namespace), req.Checkpoint.ID, raw).Err(); err != nil {
		return nil, fmt.Errorf("store checkpoint: %w", err)
	}
	return graph.CreateCheckpointConfig(threadID, req.Checkpoint.ID, namespace), nil
}

// PutWrites stores intermediate writes, idempotent per (checkpoint, task,
// sequence).
func (s *Saver) PutWrites(ctx context.Context, req graph.PutWritesRequest) error {
	threadID := graph.GetThreadID(req.Config)
	if threadID == "" {
		return graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(req.Config)
	checkpointID := graph.GetCheckpointID(req.Config)
	if checkpointID == "" {
		return errors.New("checkpoint_id is required for writes")
	}

	key := s.writesKey(threadID, namespace, checkpointID)
	pipe := s.client.Pipeline()
	for _, w := range req.Writes {
		w.TaskID = req.TaskID
		raw, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("encode write: %w", err)
		}
		pipe.HSet(ctx, key, fmt.Sprintf("%s:%d", req.TaskID, w.Sequence), raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store writes: %w", err)
	}
	return nil
}

// DeleteThread removes all checkpoints and writes for a thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	patterns := []string{
		fmt.Sprintf("%s:ckpt:%s:*", s.keyPrefix, threadID),
		fmt.Sprintf("%s:writes:%s:*", s.keyPrefix, threadID),
	}
	for _, pattern := range patterns {
		iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("delete key %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan thread keys: %w", err)
		}
	}
	return nil
}

// Close closes the client if the saver owns it.
func (s *Saver) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}
