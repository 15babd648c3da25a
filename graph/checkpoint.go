package graph

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	// CheckpointVersion is the current version of the checkpoint format.
	CheckpointVersion = 1

	// DefaultCheckpointNamespace is the default namespace for checkpoints.
	DefaultCheckpointNamespace = ""

	// CheckpointNamespaceSeparator joins parent and child scopes in nested
	// graph namespaces.
	CheckpointNamespaceSeparator = "|"
)

// Checkpoint Metadata.Source enumeration values.
const (
	// SourceInput marks the checkpoint created from the run input.
	SourceInput = "input"
	// SourceLoop marks checkpoints created at superstep boundaries.
	SourceLoop = "loop"
	// SourceUpdate marks checkpoints created by a manual state update.
	SourceUpdate = "update"
	// SourceFork marks checkpoints created as a copy of another.
	SourceFork = "fork"
	// SourceInterrupt marks checkpoints created when execution paused.
	SourceInterrupt = "interrupt"
)

var checkpointIDPattern = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-6[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// NewCheckpointID returns a time-ordered (version 6) UUID so checkpoint ids
// sort by creation time within a thread. The id is built from a version-1
// UUID: its 60-bit timestamp is laid out high-to-low, and its clock
// sequence and node id are kept.
func NewCheckpointID() string {
	v1, err := uuid.NewUUID()
	if err != nil {
		// If no version-1 UUID can be generated, fall back to a random id
		// rather than aborting the run.
		return uuid.New().String()
	}
	ts := uint64(binary.BigEndian.Uint16(v1[6:8])&0x0fff)<<48 |
		uint64(binary.BigEndian.Uint16(v1[4:6]))<<32 |
		uint64(binary.BigEndian.Uint32(v1[0:4]))
	var id uuid.UUID
	binary.BigEndian.PutUint32(id[0:4], uint32(ts>>28))
	binary.BigEndian.PutUint16(id[4:6], uint16(ts>>12))
	binary.BigEndian.PutUint16(id[6:8], 0x6000|uint16(ts&0x0fff))
	copy(id[8:], v1[8:])
	return id.String()
}

// ValidCheckpointID reports whether id is a canonical version-6 UUID.
func ValidCheckpointID(id string) bool {
	return checkpointIDPattern.MatchString(id)
}

// Checkpoint is an immutable snapshot of graph state between supersteps:
// channel values, per-channel versions, per-node versions seen, and the
// sends queued for the next superstep.
type Checkpoint struct {
	// V is the version of the checkpoint format.
	V int `json:"v"`
	// ID is the time-ordered identifier of this checkpoint.
	ID string `json:"id"`
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"ts"`
	// ChannelValues maps channel name to current value, for available
	// channels only.
	ChannelValues map[string]any `json:"channel_values"`
	// ChannelVersions maps channel name to the version produced by its
	// last applied write.
	ChannelVersions map[string]any `json:"channel_versions"`
	// VersionsSeen maps node name to the channel versions it observed the
	// last time it ran.
	VersionsSeen map[string]map[string]any `json:"versions_seen"`
	// UpdatedChannels lists channels updated by the step that produced
	// this checkpoint.
	UpdatedChannels []string `json:"updated_channels,omitempty"`
	// PendingSends are targeted messages queued for the next superstep.
	PendingSends []Send `json:"pending_sends,omitempty"`
	// InterruptState carries the pending interrupt, if execution paused.
	InterruptState *InterruptState `json:"interrupt_state,omitempty"`
}

// InterruptState records a pending interrupt inside a checkpoint.
type InterruptState struct {
	// NodeID is the node where execution paused.
	NodeID string `json:"node_id"`
	// TaskID is the task that raised the interrupt.
	TaskID string `json:"task_id"`
	// InterruptID identifies the call site, stable across runs.
	InterruptID string `json:"interrupt_id"`
	// Value is the payload passed to Interrupt.
	Value any `json:"value"`
	// ResumeValues are injected back into the task on resume, in interrupt
	// call order.
	ResumeValues []any `json:"resume_values,omitempty"`
	// Step is the superstep during which the interrupt was raised.
	Step int `json:"step"`
	// Namespace is the checkpoint namespace of the interrupted task.
	Namespace string `json:"namespace,omitempty"`
}

// CheckpointMetadata describes how and when a checkpoint was produced.
type CheckpointMetadata struct {
	// Source indicates how the checkpoint was created.
	Source string `json:"source"`
	// Step is the superstep number (-1 for the input checkpoint).
	Step int `json:"step"`
	// Parents maps checkpoint namespaces to parent checkpoint ids.
	Parents map[string]string `json:"parents"`
	// Extra carries additional metadata fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// CheckpointTuple bundles a checkpoint with its config, metadata, parent
// link, and any writes buffered since it was committed.
type CheckpointTuple struct {
	Config        map[string]any      `json:"config"`
	Checkpoint    *Checkpoint         `json:"checkpoint"`
	Metadata      *CheckpointMetadata `json:"metadata"`
	ParentConfig  map[string]any      `json:"parent_config,omitempty"`
	PendingWrites []PendingWrite      `json:"pending_writes,omitempty"`
}

// PendingWrite is a durably buffered channel write: it survives a crash
// between the task that produced it and the checkpoint that folds it in.
type PendingWrite struct {
	// TaskID is the task that produced this write.
	TaskID string `json:"task_id"`
	// Channel is the channel being written.
	Channel string `json:"channel"`
	// Value is the value being written.
	Value any `json:"value"`
	// Sequence preserves the order of writes within the task.
	Sequence int `json:"seq"`
}

// PutRequest carries a checkpoint to the saver.
type PutRequest struct {
	Config      map[string]any
	Checkpoint  *Checkpoint
	Metadata    *CheckpointMetadata
	NewVersions map[string]any
}

// PutWritesRequest carries a task's writes to the saver. Storage must be
// idempotent per (checkpoint, task, sequence).
type PutWritesRequest struct {
	Config map[string]any
	Writes []PendingWrite
	TaskID string
}

// CheckpointFilter restricts List results.
type CheckpointFilter struct {
	// Before limits results to checkpoints created before this config's
	// checkpoint id.
	Before map[string]any `json:"before,omitempty"`
	// Limit caps the number of checkpoints returned.
	Limit int `json:"limit,omitempty"`
	// Metadata filters checkpoints by metadata fields.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CheckpointSaver is the contract for durable checkpoint stores. Put must
// be atomic with respect to readers, PutWrites must be idempotent so a
// retried task cannot double-write, and List must observe each checkpoint
// at most once under concurrent Put.
type CheckpointSaver interface {
	// Get retrieves a checkpoint by configuration.
	Get(ctx context.Context, config map[string]any) (*Checkpoint, error)
	// GetTuple retrieves a checkpoint tuple by configuration. A nil tuple
	// with nil error means no checkpoint exists yet.
	GetTuple(ctx context.Context, config map[string]any) (*CheckpointTuple, error)
	// List retrieves checkpoints matching the filter, newest first.
	List(ctx context.Context, config map[string]any, filter *CheckpointFilter) ([]*CheckpointTuple, error)
	// Put stores a checkpoint and returns the config referencing it.
	Put(ctx context.Context, req PutRequest) (map[string]any, error)
	// PutWrites stores intermediate writes linked to a checkpoint.
	PutWrites(ctx context.Context, req PutWritesRequest) error
	// DeleteThread removes all checkpoints and writes for a thread.
	DeleteThread(ctx context.Context, threadID string) error
	// Close releases resources held by the saver.
	Close() error
}

// NewCheckpoint creates a checkpoint snapshot with a fresh time-ordered id.
func NewCheckpoint(channelValues map[string]any, channelVersions map[string]any, versionsSeen map[string]map[string]any) *Checkpoint {
	if channelValues == nil {
		channelValues = make(map[string]any)
	}
	if channelVersions == nil {
		channelVersions = make(map[string]any)
	}
	if versionsSeen == nil {
		versionsSeen = make(map[string]map[string]any)
	}
	return &Checkpoint{
		V:               CheckpointVersion,
		ID:              NewCheckpointID(),
		Timestamp:       time.Now().UTC(),
		ChannelValues:   channelValues,
		ChannelVersions: channelVersions,
		VersionsSeen:    versionsSeen,
	}
}

// NewCheckpointMetadata creates metadata for a checkpoint.
func NewCheckpointMetadata(source string, step int) *CheckpointMetadata {
	return &CheckpointMetadata{
		Source:  source,
		Step:    step,
		Parents: make(map[string]string),
		Extra:   make(map[string]any),
	}
}

// Copy returns a structural clone of the checkpoint carrying the same id.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	clone := &Checkpoint{
		V:               c.V,
		ID:              c.ID,
		Timestamp:       c.Timestamp,
		ChannelValues:   deepCopyMap(c.ChannelValues),
		ChannelVersions: deepCopyMap(c.ChannelVersions),
		VersionsSeen:    make(map[string]map[string]any, len(c.VersionsSeen)),
		UpdatedChannels: append([]string(nil), c.UpdatedChannels...),
	}
	for node, seen := range c.VersionsSeen {
		clone.VersionsSeen[node] = deepCopyMap(seen)
	}
	if len(c.PendingSends) > 0 {
		clone.PendingSends = make([]Send, len(c.PendingSends))
		for i, s := range c.PendingSends {
			clone.PendingSends[i] = Send{Node: s.Node, Arg: DeepCopyState(s.Arg), TaskID: s.TaskID}
		}
	}
	if c.InterruptState != nil {
		is := *c.InterruptState
		is.ResumeValues = append([]any(nil), c.InterruptState.ResumeValues...)
		clone.InterruptState = &is
	}
	return clone
}

// Fork returns a copy of the checkpoint under a new id, for branching a
// thread's history (time travel).
func (c *Checkpoint) Fork() *Checkpoint {
	clone := c.Copy()
	if clone == nil {
		return nil
	}
	clone.ID = NewCheckpointID()
	clone.Timestamp = time.Now().UTC()
	return clone
}

// IsInterrupted reports whether this checkpoint carries a pending interrupt.
func (c *Checkpoint) IsInterrupted() bool {
	return c.InterruptState != nil && c.InterruptState.NodeID != ""
}

// deepCopy performs a structural copy. Maps, []any slices and scalar values
// keep their Go types; other values are copied via a JSON round-trip, and
// values that cannot be marshaled are returned unchanged.
func deepCopy(src any) any {
	switch v := src.(type) {
	case nil:
		return nil
	case map[string]any:
		return deepCopyMap(v)
	case State:
		return State(deepCopyMap(v))
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	case string, bool, int, int32, int64, float32, float64:
		return v
	}
	data, err := json.Marshal(src)
	if err != nil {
		return src
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return src
	}
	return result
}

func deepCopyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopy(v)
	}
	return dst
}
