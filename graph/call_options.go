package graph

// Run configuration defaults and sentinels.
const (
	// DefaultRecursionLimit is the default hard cap on supersteps per run.
	DefaultRecursionLimit = 25
	// InterruptAll matches every node in interrupt-before/after sets.
	InterruptAll = "*"
)

// RunOptions carries the per-run configuration recognized by Execute and
// Invoke.
type RunOptions struct {
	// ThreadID partitions checkpoints by conversation or session. It is
	// required whenever a checkpoint saver is configured.
	ThreadID string
	// CheckpointNS scopes checkpoints for nested graphs.
	CheckpointNS string
	// CheckpointID resumes from a specific checkpoint instead of the
	// latest.
	CheckpointID string
	// RecursionLimit caps the number of supersteps.
	RecursionLimit int
	// StreamMode selects what the caller observes per superstep.
	StreamMode StreamMode
	// InterruptBefore pauses before executing the named nodes ("*" for
	// all).
	InterruptBefore []string
	// InterruptAfter pauses after executing the named nodes ("*" for
	// all).
	InterruptAfter []string
	// Command resumes an interrupted run or applies a manual update.
	Command *Command
}

// RunOption configures one run.
type RunOption func(*RunOptions)

func newRunOptions(opts ...RunOption) *RunOptions {
	ro := &RunOptions{
		RecursionLimit: DefaultRecursionLimit,
		StreamMode:     StreamModeValues,
	}
	for _, opt := range opts {
		opt(ro)
	}
	return ro
}

// WithThreadID sets the thread the run belongs to.
func WithThreadID(threadID string) RunOption {
	return func(ro *RunOptions) { ro.ThreadID = threadID }
}

// WithCheckpointNS sets the checkpoint namespace.
func WithCheckpointNS(ns string) RunOption {
	return func(ro *RunOptions) { ro.CheckpointNS = ns }
}

// WithCheckpointID resumes from a specific checkpoint.
func WithCheckpointID(id string) RunOption {
	return func(ro *RunOptions) { ro.CheckpointID = id }
}

// WithRecursionLimit caps the number of supersteps.
func WithRecursionLimit(limit int) RunOption {
	return func(ro *RunOptions) {
		if limit > 0 {
			ro.RecursionLimit = limit
		}
	}
}

// WithStreamMode selects what the event stream carries.
func WithStreamMode(mode StreamMode) RunOption {
	return func(ro *RunOptions) { ro.StreamMode = mode }
}

// WithInterruptBefore pauses the run before executing the named nodes.
func WithInterruptBefore(nodes ...string) RunOption {
	return func(ro *RunOptions) { ro.InterruptBefore = nodes }
}

// WithInterruptAfter pauses the run after executing the named nodes.
func WithInterruptAfter(nodes ...string) RunOption {
	return func(ro *RunOptions) { ro.InterruptAfter = nodes }
}

// WithCommand attaches a resume or update command to the run.
func WithCommand(cmd *Command) RunOption {
	return func(ro *RunOptions) { ro.Command = cmd }
}

// WithResume resumes the pending interrupt with a single value.
func WithResume(value any) RunOption {
	return func(ro *RunOptions) {
		if ro.Command == nil {
			ro.Command = NewCommand()
		}
		ro.Command.Resume = value
	}
}

// WithResumeMap resumes pending interrupts with values keyed by interrupt
// id.
func WithResumeMap(m map[string]any) RunOption {
	return func(ro *RunOptions) {
		if ro.Command == nil {
			ro.Command = NewCommand()
		}
		ro.Command.ResumeMap = m
	}
}

func matchesInterruptSet(set []string, nodeID string) bool {
	for _, s := range set {
		if s == InterruptAll || s == nodeID {
			return true
		}
	}
	return false
}
