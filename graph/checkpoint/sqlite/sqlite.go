// Package sqlite provides a SQLite-backed CheckpointSaver. Checkpoints
// and metadata are stored as JSON blobs; the cgo-free modernc.org/sqlite
// driver is used so the saver works without a C toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/langchain-ai/langgraph-go/graph"
)

const (
	createCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"thread_id TEXT NOT NULL, " +
		"checkpoint_ns TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"parent_checkpoint_id TEXT, " +
		"ts INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"metadata_json BLOB NOT NULL, " +
		"PRIMARY KEY (thread_id, checkpoint_ns, checkpoint_id)" +
		")"

	createWrites = "CREATE TABLE IF NOT EXISTS checkpoint_writes (" +
		"thread_id TEXT NOT NULL, " +
		"checkpoint_ns TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"task_id TEXT NOT NULL, " +
		"idx INTEGER NOT NULL, " +
		"channel TEXT NOT NULL, " +
		"value_json BLOB NOT NULL, " +
		"PRIMARY KEY (thread_id, checkpoint_ns, checkpoint_id, task_id, idx)" +
		")"

	insertCheckpoint = "INSERT OR REPLACE INTO checkpoints (" +
		"thread_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, ts, " +
		"checkpoint_json, metadata_json) VALUES (?, ?, ?, ?, ?, ?, ?)"

	selectLatest = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id " +
		"FROM checkpoints WHERE thread_id = ? AND checkpoint_ns = ? " +
		"ORDER BY checkpoint_id DESC LIMIT 1"

	selectByID = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id " +
		"FROM checkpoints WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? LIMIT 1"

	selectList = "SELECT checkpoint_json, metadata_json, parent_checkpoint_id " +
		"FROM checkpoints WHERE thread_id = ? AND checkpoint_ns = ? ORDER BY checkpoint_id DESC"

	insertWrite = "INSERT OR REPLACE INTO checkpoint_writes (" +
		"thread_id, checkpoint_ns, checkpoint_id, task_id, idx, channel, value_json) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?)"

	selectWrites = "SELECT task_id, idx, channel, value_json FROM checkpoint_writes " +
		"WHERE thread_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? ORDER BY task_id, idx"

	deleteThreadCkpts  = "DELETE FROM checkpoints WHERE thread_id = ?"
	deleteThreadWrites = "DELETE FROM checkpoint_writes WHERE thread_id = ?"
)

// Saver is a SQLite-backed implementation of graph.CheckpointSaver.
type Saver struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given path and wraps
// it in a Saver. Use ":memory:" for an in-memory database.
func Open(path string) (*Saver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return NewSaver(db)
}

// NewSaver wraps an existing DB opened with a SQLite driver. The required
// schema is created if missing.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(createCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	if _, err := db.Exec(createWrites); err != nil {
		return nil, fmt.Errorf("create writes table: %w", err)
	}
	return &Saver{db: db}, nil
}

// Get returns the checkpoint for the given config.
func (s *Saver) Get(ctx context.Context, config map[string]any) (*graph.Checkpoint, error) {
	t, err := s.GetTuple(ctx, config)
	if err != nil || t == nil {
		return nil, err
	}
	return t.Checkpoint, nil
}

// GetTuple returns the checkpoint tuple for the given config.
func (s *Saver) GetTuple(ctx context.Context, config map[string]any) (*graph.CheckpointTuple, error) {
	threadID := graph.GetThreadID(config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(config)
	checkpointID := graph.GetCheckpointID(config)

	var row *sql.Row
	if checkpointID == "" {
		row = s.db.QueryRowContext(ctx, selectLatest, threadID, namespace)
	} else {
		row = s.db.QueryRowContext(ctx, selectByID, threadID, namespace, checkpointID)
	}
	tuple, err := s.scanTuple(row, threadID, namespace)
	if err != nil || tuple == nil {
		return nil, err
	}
	writes, err := s.loadWrites(ctx, threadID, namespace, tuple.Checkpoint.ID)
	if err != nil {
		return nil, err
	}
	tuple.PendingWrites = writes
	return tuple, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func (s *Saver) scanTuple(row rowScanner, threadID, namespace string) (*graph.CheckpointTuple, error) {
	var ckptJSON, metaJSON []byte
	var parentID sql.NullString
	if err := row.Scan(&ckptJSON, &metaJSON, &parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	var ckpt graph.Checkpoint
	if err := json.Unmarshal(ckptJSON, &ckpt); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	var meta graph.CheckpointMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	tuple := &graph.CheckpointTuple{
		Config:     graph.CreateCheckpointConfig(threadID, ckpt.ID, namespace),
		Checkpoint: &ckpt,
		Metadata:   &meta,
	}
	if parentID.Valid && parentID.String != "" {
		tuple.ParentConfig = graph.CreateCheckpointConfig(threadID, parentID.String, namespace)
	}
	return tuple, nil
}

func (s *Saver) loadWrites(ctx context.Context, threadID, namespace, checkpointID string) ([]graph.PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, selectWrites, threadID, namespace, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("load writes: %w", err)
	}
	defer rows.Close()

	var writes []graph.PendingWrite
	for rows.Next() {
		var w graph.PendingWrite
		var valueJSON []byte
		if err := rows.Scan(&w.TaskID, &w.Sequence, &w.Channel, &valueJSON); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		if err := json.Unmarshal(valueJSON, &w.Value); err != nil {
			return nil, fmt.Errorf("decode write value: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// List returns the thread's checkpoints, newest first.
func (s *Saver) List(ctx context.Context, config map[string]any, filter *graph.CheckpointFilter) ([]*graph.CheckpointTuple, error) {
	threadID := graph.GetThreadID(config)
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	namespace := graph.GetNamespace(config)

	rows, err := s.db.QueryContext(ctx, selectList, threadID, namespace)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var before string
	if filter != nil && filter.Before != nil {
		before = graph.GetCheckpointID(filter.Before)
	}
	var results []*graph.CheckpointTuple
	for rows.Next() {
		tuple, err := s.scanTuple(rows, threadID, namespace)
		if err != nil {
			return nil, err
		}
		if before != "" && tuple.Checkpoint.ID >= before {
			continue
		}
		if filter != nil && !matchesMetadata(tuple.Metadata, filter.Metadata) {
			continue
		}
		results = append(results, tuple)
		if filter != nil && filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, rows.Err()
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

	ckptJSON, err := json.Marshal(req.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	meta := req.Metadata
	if meta == nil {
		meta = graph.NewCheckpointMetadata(graph.SourceLoop, 0)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	var parentID string
	if meta.Parents != nil {
		parentID = meta.Parents[namespace]
	}
	if _, err := s.db.ExecContext(ctx, insertCheckpoint,
		threadID, namespace, req.Checkpoint.ID, parentID,
		req.Checkpoint.Timestamp.UnixNano(), ckptJSON, metaJSON); err != nil {
		return nil, fmt.Errorf("store checkpoint: %w", err)
	}
	return graph.CreateCheckpointConfig(threadID, req.Checkpoint.ID, namespace), nil
}

// PutWrites stores intermediate writes. The primary key makes the insert
// idempotent per (checkpoint, task, sequence).
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin writes tx: %w", err)
	}
	for _, w := range req.Writes {
		valueJSON, err := json.Marshal(w.Value)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode write value: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertWrite,
			threadID, namespace, checkpointID, req.TaskID, w.Sequence, w.Channel, valueJSON); err != nil {
			tx.Rollback()
			return fmt.Errorf("store write: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteThread removes all checkpoints and writes for a thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, deleteThreadCkpts, threadID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteThreadWrites, threadID); err != nil {
		return fmt.Errorf("delete writes: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Saver) Close() error { return s.db.Close() }
