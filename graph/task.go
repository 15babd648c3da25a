package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Task is one planned invocation of a node within a superstep. Tasks are
// created, executed, and discarded inside the step; their writes either
// become part of the next checkpoint or are rolled back on fatal failure.
type Task struct {
	// ID is a deterministic hash of (checkpoint id, node, triggers, send
	// index), so planning the same checkpoint twice yields the same ids.
	ID string
	// NodeID is the node this task invokes.
	NodeID string
	// Input is the state snapshot the node reads.
	Input State
	// Overlay is the Send payload overlaid onto Input for send-planned
	// tasks.
	Overlay State
	// Triggers are the channels whose updates scheduled this task.
	Triggers []string
	// SendIndex is the position in the checkpoint's pending sends, or -1
	// for trigger-planned tasks.
	SendIndex int
	// RetryPolicy overrides the executor's policy for this node.
	RetryPolicy *RetryPolicy

	// Writes accumulates the task's channel writes during execution.
	Writes []PendingWrite
	// Sends accumulates the task's outgoing sends during execution.
	Sends []Send
}

// taskID derives the deterministic task identifier. Trigger order does not
// matter; send-planned tasks fold in their position so repeated sends to
// one node stay distinct.
func taskID(checkpointID, nodeID string, triggers []string, sendIndex int) string {
	sorted := append([]string(nil), triggers...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(checkpointID))
	h.Write([]byte{0})
	h.Write([]byte(nodeID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(sendIndex)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// EffectiveInput returns the task input with the Send overlay applied.
func (t *Task) EffectiveInput(schema *StateSchema) State {
	if len(t.Overlay) == 0 {
		return t.Input
	}
	return schema.ApplyUpdate(t.Input, t.Overlay)
}
