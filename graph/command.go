package graph

// GraphParent targets a Command at the enclosing graph in a nested-graph
// setting. The runtime re-throws such commands to the parent run.
const GraphParent = "__parent__"

// Send enqueues a per-invocation task for the next superstep against a
// specific node. The payload overlays onto that invocation's input, which
// lets a node fan work out to targeted invocations rather than
// broadcasting through channels.
type Send struct {
	// Node is the target node name.
	Node string `json:"node"`
	// Arg is the payload overlaid onto the target invocation's input.
	Arg State `json:"arg"`
	// TaskID records the task that produced the send.
	TaskID string `json:"task_id,omitempty"`
}

// Command is a compound node return: it performs channel writes, routes
// execution to one or more destinations, and may target the parent graph.
type Command struct {
	// Update carries state writes to apply.
	Update State
	// GoTo routes execution to named destinations or Sends. Accepted
	// element shapes: string labels and Send values.
	GoTo []any
	// Graph selects which graph the command addresses. Empty means the
	// current graph; GraphParent bubbles the command up to the caller.
	Graph string
	// Resume injects resume values for pending interrupts.
	Resume any
	// ResumeMap injects resume values keyed by interrupt id.
	ResumeMap map[string]any
}

// NewCommand creates an empty command.
func NewCommand() *Command {
	return &Command{}
}

// WithUpdate sets the state update.
func (c *Command) WithUpdate(update State) *Command {
	c.Update = update
	return c
}

// WithGoTo appends routing destinations. Each destination is a node label
// (string) or a Send.
func (c *Command) WithGoTo(destinations ...any) *Command {
	c.GoTo = append(c.GoTo, destinations...)
	return c
}

// WithGraph targets the command at the named graph scope.
func (c *Command) WithGraph(graph string) *Command {
	c.Graph = graph
	return c
}

// WithResume sets a single resume value consumed by the next pending
// interrupt.
func (c *Command) WithResume(value any) *Command {
	c.Resume = value
	return c
}

// WithResumeMap sets resume values keyed by interrupt id.
func (c *Command) WithResumeMap(m map[string]any) *Command {
	c.ResumeMap = m
	return c
}

// ParentCommandError bubbles a Command targeting the parent graph out of a
// nested run. The enclosing run catches it and applies the command there.
type ParentCommandError struct {
	Command *Command
}

// Error implements the error interface.
func (e *ParentCommandError) Error() string {
	return "command addressed to parent graph"
}
