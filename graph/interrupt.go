package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// GraphInterrupt is the cooperative pause raised from inside a node. It is
// surfaced to the caller as an error value carrying the interrupt payload
// and is resumable with an injected value.
type GraphInterrupt struct {
	// ID identifies the interrupt call site, stable across runs.
	ID string
	// Value is the payload passed to Interrupt.
	Value any
	// NodeID is the node where execution paused.
	NodeID string
	// TaskID is the task that raised the interrupt.
	TaskID string
	// Namespace is the checkpoint namespace of the paused task.
	Namespace string
	// Step is the superstep during which the interrupt was raised.
	Step int
	// Timestamp is when the interrupt was raised.
	Timestamp time.Time
}

// Error implements the error interface.
func (g *GraphInterrupt) Error() string {
	return fmt.Sprintf("graph interrupted at node %s (step %d): %v", g.NodeID, g.Step, g.Value)
}

// IsInterrupt reports whether err is (or wraps) a GraphInterrupt.
func IsInterrupt(err error) bool {
	var gi *GraphInterrupt
	return errors.As(err, &gi)
}

// AsInterrupt extracts a GraphInterrupt from an error chain.
func AsInterrupt(err error) (*GraphInterrupt, bool) {
	var gi *GraphInterrupt
	if errors.As(err, &gi) {
		return gi, true
	}
	return nil, false
}

// interruptID derives the stable call-site identifier from the task
// namespace and the 0-based index of the interrupt call within the task.
func interruptID(namespace string, counter int) string {
	h := sha256.Sum256([]byte(namespace + ":" + strconv.Itoa(counter)))
	return hex.EncodeToString(h[:])[:16]
}

// taskContextKey keys the per-task context value. The interrupt primitive
// reads from this context rather than from process-global state.
type taskContextKey struct{}

// TaskContext is the task-local context available inside a node body via
// FromContext. It exposes the task identity and collects sends.
type TaskContext struct {
	// NodeID is the executing node.
	NodeID string
	// TaskID is the executing task.
	TaskID string
	// Namespace is the checkpoint namespace of this task, including the
	// node scope.
	Namespace string
	// Step is the current superstep.
	Step int

	scratch     *scratchpad
	hasSaver    bool
	sendsBuffer *[]Send
}

// scratchpad holds the interrupt counter and resume buffer for one task
// invocation.
type scratchpad struct {
	interruptCounter int
	resumeValues     []any
	resumeMap        map[string]any
	usedResumeValues int
}

// FromContext returns the task-local context, if the caller runs inside a
// task.
func FromContext(ctx context.Context) (*TaskContext, bool) {
	tc, ok := ctx.Value(taskContextKey{}).(*TaskContext)
	return tc, ok
}

// withTaskContext attaches the task-local context.
func withTaskContext(ctx context.Context, tc *TaskContext) context.Context {
	return context.WithValue(ctx, taskContextKey{}, tc)
}

// SendTo enqueues a Send for the next superstep from inside a node body,
// as an alternative to returning Sends from the node function.
func (tc *TaskContext) SendTo(node string, arg State) error {
	if node == End {
		return fmt.Errorf("%w: cannot send to %s", ErrInvalidUpdate, End)
	}
	*tc.sendsBuffer = append(*tc.sendsBuffer, Send{Node: node, Arg: arg, TaskID: tc.TaskID})
	return nil
}

// Interrupt pauses the surrounding task until a resume value is supplied.
//
// On the first call at a given call site it raises a GraphInterrupt, which
// the node must return as its error; the scheduler records the interrupt
// in the next checkpoint and surfaces it to the caller. When the run is
// resumed with a value, the same task is replanned and re-run; the node
// body re-executes deterministically up to the interrupt call, which then
// returns the injected value instead of pausing.
func Interrupt(ctx context.Context, value any) (any, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return nil, NewGraphValueError("Interrupt called outside of a task")
	}
	if !tc.hasSaver {
		return nil, ErrMissingCheckpointer
	}
	sp := tc.scratch
	counter := sp.interruptCounter
	sp.interruptCounter++

	id := interruptID(tc.Namespace, counter)
	if counter < len(sp.resumeValues) {
		sp.usedResumeValues++
		return sp.resumeValues[counter], nil
	}
	if sp.resumeMap != nil {
		if v, ok := sp.resumeMap[id]; ok {
			sp.usedResumeValues++
			return v, nil
		}
	}
	return nil, &GraphInterrupt{
		ID:        id,
		Value:     value,
		NodeID:    tc.NodeID,
		TaskID:    tc.TaskID,
		Namespace: tc.Namespace,
		Step:      tc.Step,
		Timestamp: time.Now().UTC(),
	}
}

// checkResumeConsistency detects node bodies that re-issued fewer
// interrupt calls than resume values were recorded, which means the body
// is not deterministic up to the interrupt point.
func checkResumeConsistency(sp *scratchpad) error {
	if len(sp.resumeValues) > 0 && sp.interruptCounter < len(sp.resumeValues) {
		return fmt.Errorf("%w: %d resume values recorded but only %d interrupt calls issued",
			ErrResumeMismatch, len(sp.resumeValues), sp.interruptCounter)
	}
	return nil
}
