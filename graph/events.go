package graph

import (
	"context"
	"time"
)

// StreamMode selects what the caller observes per superstep.
type StreamMode string

const (
	// StreamModeValues emits the full state after every superstep.
	StreamModeValues StreamMode = "values"
	// StreamModeUpdates emits only the writes each node produced in the
	// step.
	StreamModeUpdates StreamMode = "updates"
	// StreamModeMessages emits raw node outputs as they complete.
	StreamModeMessages StreamMode = "messages"
	// StreamModeDebug emits diagnostic events for every task and
	// checkpoint.
	StreamModeDebug StreamMode = "debug"
)

// EventType tags a streamed event.
type EventType string

const (
	// EventTypeValues carries the full state after a superstep.
	EventTypeValues EventType = "values"
	// EventTypeUpdates carries the per-node writes of a superstep.
	EventTypeUpdates EventType = "updates"
	// EventTypeMessage carries one node's raw output.
	EventTypeMessage EventType = "message"
	// EventTypeTask reports a task starting or finishing (debug).
	EventTypeTask EventType = "task"
	// EventTypeCheckpoint reports a committed checkpoint (debug).
	EventTypeCheckpoint EventType = "checkpoint"
	// EventTypeInterrupt reports a pending interrupt.
	EventTypeInterrupt EventType = "interrupt"
	// EventTypeError reports a fatal run error.
	EventTypeError EventType = "error"
	// EventTypeDone closes a successful run.
	EventTypeDone EventType = "done"
)

// Event is one observation streamed to the caller during a run.
type Event struct {
	// Type tags the event.
	Type EventType `json:"type"`
	// Step is the superstep the event belongs to.
	Step int `json:"step"`
	// NodeID identifies the node for task/message events.
	NodeID string `json:"node_id,omitempty"`
	// TaskID identifies the task for task/message events.
	TaskID string `json:"task_id,omitempty"`
	// State is the full state for values events.
	State State `json:"state,omitempty"`
	// Updates maps node name to its writes for updates events.
	Updates map[string]State `json:"updates,omitempty"`
	// Output is the raw node output for message events.
	Output any `json:"output,omitempty"`
	// CheckpointID references the committed checkpoint.
	CheckpointID string `json:"checkpoint_id,omitempty"`
	// Interrupt carries the pending interrupt.
	Interrupt *GraphInterrupt `json:"interrupt,omitempty"`
	// Err carries the fatal error message.
	Err string `json:"error,omitempty"`
	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`
}

// emitter filters and delivers events according to the run's stream mode.
type emitter struct {
	ch   chan *Event
	mode StreamMode
}

func newEmitter(mode StreamMode, buffer int) *emitter {
	if mode == "" {
		mode = StreamModeValues
	}
	return &emitter{
		ch:   make(chan *Event, buffer),
		mode: mode,
	}
}

// wants reports whether the stream mode observes the event type.
// Interrupts, errors, and completion are always delivered.
func (e *emitter) wants(t EventType) bool {
	switch t {
	case EventTypeInterrupt, EventTypeError, EventTypeDone:
		return true
	case EventTypeValues:
		return e.mode == StreamModeValues
	case EventTypeUpdates:
		return e.mode == StreamModeUpdates
	case EventTypeMessage:
		return e.mode == StreamModeMessages
	case EventTypeTask, EventTypeCheckpoint:
		return e.mode == StreamModeDebug
	}
	return false
}

// emit delivers the event unless the context is cancelled.
func (e *emitter) emit(ctx context.Context, evt *Event) {
	if !e.wants(evt.Type) {
		return
	}
	evt.Timestamp = time.Now().UTC()
	select {
	case e.ch <- evt:
	case <-ctx.Done():
	}
}

func (e *emitter) close() { close(e.ch) }
