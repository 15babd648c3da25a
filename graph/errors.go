package graph

import (
	"errors"
	"fmt"

	"github.com/langchain-ai/langgraph-go/graph/internal/channel"
)

// Sentinel errors.
var (
	// ErrEmptyChannel is returned when reading a channel that has never
	// been written.
	ErrEmptyChannel = channel.ErrEmptyChannel
	// ErrInvalidUpdate is returned for writes that violate a channel's
	// update rule, a Send targeting End, or an unknown branch destination.
	ErrInvalidUpdate = channel.ErrInvalidUpdate
	// ErrMissingCheckpointer is returned when interrupt/resume is used
	// without a configured checkpoint saver.
	ErrMissingCheckpointer = errors.New("interrupt requires a checkpoint saver: configure the executor with WithCheckpointSaver")
	// ErrThreadIDRequired is returned when a run or saver call is missing
	// the thread id.
	ErrThreadIDRequired = errors.New("thread_id is required")
	// ErrCheckpointNotFound is returned when the requested checkpoint does
	// not exist.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrResumeMismatch is returned when a resumed node issues fewer
	// interrupt calls than resume values were recorded, which indicates a
	// non-deterministic node body.
	ErrResumeMismatch = errors.New("node issued interrupts in a different order than the recorded resume values")
)

// GraphValueError reports a misconfiguration detected at runtime, before or
// during the first step. It is fatal to the run.
type GraphValueError struct {
	Reason string
}

// Error implements the error interface.
func (e *GraphValueError) Error() string {
	return "graph configuration error: " + e.Reason
}

// NewGraphValueError creates a GraphValueError with a formatted reason.
func NewGraphValueError(format string, args ...any) *GraphValueError {
	return &GraphValueError{Reason: fmt.Sprintf(format, args...)}
}

// RecursionLimitError reports that the run exceeded the configured number
// of supersteps without terminating. The last checkpoint is preserved.
type RecursionLimitError struct {
	Limit int
}

// Error implements the error interface.
func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit of %d steps reached without hitting a stop condition", e.Limit)
}

// NodeError wraps a fatal error raised by a node, annotated with the node
// and task it came from.
type NodeError struct {
	NodeID string
	TaskID string
	Err    error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (task %s): %v", e.NodeID, e.TaskID, e.Err)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *NodeError) Unwrap() error { return e.Err }

// HTTPStatusError is implemented by errors that carry an HTTP-style status
// code; the default retry policy inspects it to decide retriability.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

// httpStatus extracts an HTTP status code from err or its chain.
func httpStatus(err error) (int, bool) {
	var se HTTPStatusError
	if errors.As(err, &se) {
		return se.HTTPStatus(), true
	}
	return 0, false
}
