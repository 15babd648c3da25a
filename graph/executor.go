package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	intchannel "github.com/langchain-ai/langgraph-go/graph/internal/channel"
	"github.com/langchain-ai/langgraph-go/log"
)

// Executor defaults.
const (
	DefaultMaxConcurrency    = 10
	DefaultEventBufferSize   = 256
	instrumentationName      = "github.com/langchain-ai/langgraph-go/graph"
	metadataKeyStaticPause   = "static_pause_node"
	metadataKeyStaticPauseAt = "static_pause_step"
)

// Executor drives a compiled graph through supersteps: plan tasks from the
// latest checkpoint, execute them with bounded parallelism, fold their
// writes into channels, commit a new checkpoint, repeat until no task is
// planned.
type Executor struct {
	graph          *Graph
	saver          CheckpointSaver
	maxConcurrency int
	bufferSize     int
	retryPolicy    *RetryPolicy
	pool           *ants.Pool
	tracer         trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCheckpointSaver attaches a durable checkpoint store. Required for
// interrupt/resume and crash recovery.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(e *Executor) { e.saver = saver }
}

// WithMaxConcurrency bounds how many tasks run in parallel per superstep.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithChannelBufferSize sets the event channel buffer size.
func WithChannelBufferSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithRetryPolicy sets the executor-wide retry policy. Nodes may override
// it via WithNodeRetryPolicy.
func WithRetryPolicy(policy *RetryPolicy) ExecutorOption {
	return func(e *Executor) { e.retryPolicy = policy }
}

// NewExecutor creates an executor for a compiled graph.
func NewExecutor(g *Graph, opts ...ExecutorOption) (*Executor, error) {
	if g == nil {
		return nil, NewGraphValueError("graph is nil")
	}
	e := &Executor{
		graph:          g,
		maxConcurrency: DefaultMaxConcurrency,
		bufferSize:     DefaultEventBufferSize,
		retryPolicy:    NewRetryPolicy(),
		tracer:         otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	pool, err := ants.NewPool(e.maxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("create task pool: %w", err)
	}
	e.pool = pool
	return e, nil
}

// Close releases the executor's worker pool.
func (e *Executor) Close() error {
	e.pool.Release()
	return nil
}

// Execute runs the graph and streams events selected by the run's stream
// mode. The channel closes when the run finishes, pauses, or fails;
// interrupts and errors are delivered as events.
func (e *Executor) Execute(ctx context.Context, input State, opts ...RunOption) (<-chan *Event, error) {
	ro := newRunOptions(opts...)
	if err := e.checkRunConfig(ro); err != nil {
		return nil, err
	}
	em := newEmitter(ro.StreamMode, e.bufferSize)
	go func() {
		defer em.close()
		state, err := e.run(ctx, input, ro, em)
		switch {
		case err == nil:
			em.emit(ctx, &Event{Type: EventTypeDone, State: state})
		case IsInterrupt(err):
			// The interrupt event was already emitted by the superstep.
		default:
			em.emit(ctx, &Event{Type: EventTypeError, Err: err.Error()})
		}
	}()
	return em.ch, nil
}

// Invoke runs the graph to completion and returns the final state. When
// the run pauses on an interrupt, the returned error is the
// *GraphInterrupt and the state reflects the last committed checkpoint.
func (e *Executor) Invoke(ctx context.Context, input State, opts ...RunOption) (State, error) {
	ro := newRunOptions(opts...)
	if err := e.checkRunConfig(ro); err != nil {
		return nil, err
	}
	em := newEmitter(ro.StreamMode, e.bufferSize)
	go func() {
		for range em.ch {
		}
	}()
	state, err := e.run(ctx, input, ro, em)
	em.close()
	return state, err
}

func (e *Executor) checkRunConfig(ro *RunOptions) error {
	if e.saver != nil && ro.ThreadID == "" {
		return ErrThreadIDRequired
	}
	if ro.Command != nil && (ro.Command.Resume != nil || len(ro.Command.ResumeMap) > 0) && e.saver == nil {
		return ErrMissingCheckpointer
	}
	return nil
}

// run is the superstep loop shared by Execute and Invoke.
func (e *Executor) run(ctx context.Context, input State, ro *RunOptions, em *emitter) (State, error) {
	ctx, span := e.tracer.Start(ctx, "graph.run",
		trace.WithAttributes(attribute.String("thread_id", ro.ThreadID)))
	defer span.End()

	r := &runState{
		e:        e,
		g:        e.graph,
		ro:       ro,
		em:       em,
		channels: e.graph.newChannelSet(),
		config:   CreateCheckpointConfig(ro.ThreadID, ro.CheckpointID, ro.CheckpointNS),
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	if err := r.applyCommand(ctx); err != nil {
		return nil, err
	}
	if err := r.seedInput(ctx, input); err != nil {
		return nil, err
	}

	p := &planner{g: e.graph}
	for {
		tasks, err := p.plan(r.channels, r.ckpt)
		if err != nil {
			return nil, err
		}
		if len(tasks) == 0 {
			break
		}
		if r.executed >= ro.RecursionLimit {
			return nil, &RecursionLimitError{Limit: ro.RecursionLimit}
		}
		if gi := r.checkStaticPause(ctx, tasks); gi != nil {
			return readStateSnapshot(r.g, r.channels), gi
		}
		interrupt, err := r.superstep(ctx, tasks)
		if err != nil {
			return nil, err
		}
		if interrupt != nil {
			return readStateSnapshot(r.g, r.channels), interrupt
		}
		if gi := r.checkStaticPauseAfter(ctx, tasks); gi != nil {
			return readStateSnapshot(r.g, r.channels), gi
		}
	}

	return readStateSnapshot(r.g, r.channels), nil
}

// runState carries one run's mutable state through the loop.
type runState struct {
	e  *Executor
	g  *Graph
	ro *RunOptions
	em *emitter

	channels map[string]*intchannel.Channel
	// ckpt is the latest committed snapshot. It always exists, even
	// without a saver, because planning keys task ids off its id.
	ckpt *Checkpoint
	// lastID and prevID track the last two committed checkpoint ids so
	// interrupt commits can overwrite the planning checkpoint in place
	// while keeping its parent link intact.
	lastID         string
	prevID         string
	config         map[string]any
	pendingWrites  map[string][]PendingWrite
	interruptState *InterruptState
	resumeMap      map[string]any
	// staticSkip suppresses re-pausing at the node a resumed run was
	// paused before.
	staticSkip string
	step       int
	executed   int
}

// load restores channels and planning state from the latest checkpoint.
func (r *runState) load(ctx context.Context) error {
	if r.e.saver == nil || r.ro.ThreadID == "" {
		r.ckpt = NewCheckpoint(nil, nil, nil)
		return nil
	}
	tuple, err := r.e.saver.GetTuple(ctx, r.config)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if tuple == nil {
		r.ckpt = NewCheckpoint(nil, nil, nil)
		return nil
	}
	r.ckpt = tuple.Checkpoint.Copy()
	r.lastID = r.ckpt.ID
	r.prevID = GetCheckpointID(tuple.ParentConfig)
	r.interruptState = r.ckpt.InterruptState
	if tuple.Metadata != nil {
		r.step = tuple.Metadata.Step + 1
		if node, ok := tuple.Metadata.Extra[metadataKeyStaticPause].(string); ok && r.resuming() {
			r.staticSkip = node
		}
	}
	restoreChannels(r.channels, r.ckpt)
	r.pendingWrites = make(map[string][]PendingWrite)
	for _, w := range tuple.PendingWrites {
		r.pendingWrites[w.TaskID] = append(r.pendingWrites[w.TaskID], w)
	}
	return nil
}

func (r *runState) resuming() bool {
	return r.ro.Command != nil
}

// applyCommand folds a resume/update command into the loaded state.
func (r *runState) applyCommand(ctx context.Context) error {
	cmd := r.ro.Command
	if cmd == nil {
		return nil
	}
	if cmd.Resume != nil {
		if r.interruptState == nil {
			return NewGraphValueError("resume value provided but no interrupt is pending")
		}
		r.interruptState.ResumeValues = append(r.interruptState.ResumeValues, cmd.Resume)
	}
	if len(cmd.ResumeMap) > 0 {
		r.resumeMap = cmd.ResumeMap
	}
	if len(cmd.Update) > 0 {
		writes := make([]PendingWrite, 0, len(cmd.Update))
		for k, v := range cmd.Update {
			writes = append(writes, PendingWrite{Channel: k, Value: v})
		}
		if err := r.applyDirect(writes); err != nil {
			return err
		}
		if err := r.commit(ctx, SourceUpdate, nil, r.interruptState); err != nil {
			return err
		}
	}
	return nil
}

// seedInput writes the run input into the state channels and triggers the
// entry node. A nil input means "resume": nothing is seeded and planning
// continues from the loaded checkpoint. A non-nil input, even an empty
// one, starts a fresh pass from the entry node and invalidates any
// pending interrupt.
func (r *runState) seedInput(_ context.Context, input State) error {
	if input == nil {
		return nil
	}
	writes := make([]PendingWrite, 0, len(input)+1)
	for k, v := range input {
		writes = append(writes, PendingWrite{Channel: k, Value: v})
	}
	writes = append(writes, PendingWrite{Channel: triggerChannel(r.g.EntryPoint()), Value: Start})
	if err := r.applyDirect(writes); err != nil {
		return err
	}
	r.interruptState = nil
	r.ckpt.InterruptState = nil
	// Planning keys task ids off the checkpoint id; new input means new
	// planning identity even before the first commit.
	r.ckpt.ID = NewCheckpointID()
	return nil
}

// applyDirect applies writes outside of a superstep (input seeding and
// manual updates).
func (r *runState) applyDirect(writes []PendingWrite) error {
	seed := &Task{ID: "", Writes: writes}
	_, _, err := applyWrites(r.g, r.channels, []*Task{seed})
	return err
}

// checkStaticPause pauses before executing a step when one of the planned
// nodes is in the interrupt-before set.
func (r *runState) checkStaticPause(ctx context.Context, tasks []*Task) *GraphInterrupt {
	if len(r.ro.InterruptBefore) == 0 {
		return nil
	}
	for _, t := range tasks {
		if !matchesInterruptSet(r.ro.InterruptBefore, t.NodeID) {
			continue
		}
		if r.staticSkip == t.NodeID {
			r.staticSkip = ""
			continue
		}
		gi := &GraphInterrupt{
			NodeID:    t.NodeID,
			TaskID:    t.ID,
			Namespace: r.taskNamespace(t),
			Step:      r.step,
			Timestamp: time.Now().UTC(),
		}
		is := &InterruptState{NodeID: t.NodeID, TaskID: t.ID, Step: r.step, Namespace: gi.Namespace}
		if prior := r.interruptState; prior != nil && prior.TaskID == t.ID {
			is.ResumeValues = prior.ResumeValues
		}
		if err := r.commitPause(ctx, is, t.NodeID); err != nil {
			log.Errorf("commit interrupt-before checkpoint: %v", err)
		}
		r.em.emit(ctx, &Event{Type: EventTypeInterrupt, Step: r.step, NodeID: t.NodeID, Interrupt: gi})
		return gi
	}
	return nil
}

// checkStaticPauseAfter pauses after a committed step when one of the
// executed nodes is in the interrupt-after set.
func (r *runState) checkStaticPauseAfter(ctx context.Context, tasks []*Task) *GraphInterrupt {
	if len(r.ro.InterruptAfter) == 0 {
		return nil
	}
	for _, t := range tasks {
		if matchesInterruptSet(r.ro.InterruptAfter, t.NodeID) {
			gi := &GraphInterrupt{
				NodeID:    t.NodeID,
				TaskID:    t.ID,
				Step:      r.step - 1,
				Timestamp: time.Now().UTC(),
			}
			r.em.emit(ctx, &Event{Type: EventTypeInterrupt, Step: gi.Step, NodeID: t.NodeID, Interrupt: gi})
			return gi
		}
	}
	return nil
}

// commitPause commits a checkpoint recording a static pause without
// advancing channel state.
func (r *runState) commitPause(ctx context.Context, is *InterruptState, nodeID string) error {
	meta := map[string]any{
		metadataKeyStaticPause:   nodeID,
		metadataKeyStaticPauseAt: r.step,
	}
	return r.commitInterrupt(ctx, is, meta)
}

// superstep executes one planned wave of tasks and commits the result.
// It returns a pending interrupt instead of an error when a task paused.
func (r *runState) superstep(ctx context.Context, tasks []*Task) (*GraphInterrupt, error) {
	ctx, span := r.e.tracer.Start(ctx, "graph.superstep",
		trace.WithAttributes(attribute.Int("step", r.step), attribute.Int("tasks", len(tasks))))
	defer span.End()

	interrupt, err := r.executeTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}
	if interrupt != nil {
		metricInterrupts.Inc()
		is := &InterruptState{
			NodeID:      interrupt.NodeID,
			TaskID:      interrupt.TaskID,
			InterruptID: interrupt.ID,
			Value:       interrupt.Value,
			Step:        r.step,
			Namespace:   interrupt.Namespace,
		}
		if prior := r.interruptState; prior != nil && prior.TaskID == interrupt.TaskID {
			is.ResumeValues = prior.ResumeValues
		}
		if err := r.commitInterrupt(ctx, is, nil); err != nil {
			return nil, err
		}
		r.em.emit(ctx, &Event{Type: EventTypeInterrupt, Step: r.step, NodeID: interrupt.NodeID, Interrupt: interrupt})
		return interrupt, nil
	}

	// versions_seen records what each task observed, so a node that
	// writes its own trigger this step can still refire next step.
	versions := channelVersions(r.channels)
	updated, sends, err := applyWrites(r.g, r.channels, tasks)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if len(t.Triggers) == 0 {
			continue
		}
		seen := r.ckpt.VersionsSeen[t.NodeID]
		if seen == nil {
			seen = make(map[string]any)
			r.ckpt.VersionsSeen[t.NodeID] = seen
		}
		for _, trig := range t.Triggers {
			if v, ok := versions[trig]; ok {
				seen[trig] = v
			}
		}
	}
	r.ckpt.PendingSends = sends
	r.interruptState = nil

	if err := r.commit(ctx, SourceLoop, updated, nil); err != nil {
		return nil, err
	}
	r.emitStepEvents(ctx, tasks, updated)
	metricSteps.Inc()
	r.step++
	r.executed++
	return nil, nil
}

// executeTasks runs one superstep's tasks with bounded parallelism. Tasks
// already covered by durable pending writes are replayed, not re-run. The
// first interrupt wins; fatal errors cancel sibling tasks.
func (r *runState) executeTasks(ctx context.Context, tasks []*Task) (*GraphInterrupt, error) {
	interrupts := make([]*GraphInterrupt, len(tasks))
	group, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		if replayed, ok := r.pendingWrites[t.ID]; ok {
			t.Writes = replayed
			metricTasks.WithLabelValues(taskOutcomeReplayed).Inc()
			continue
		}
		i, t := i, t
		group.Go(func() error {
			done := make(chan error, 1)
			if err := r.e.pool.Submit(func() {
				done <- r.runTask(gctx, t)
			}); err != nil {
				return fmt.Errorf("submit task %s: %w", t.ID, err)
			}
			err := <-done
			if err == nil {
				metricTasks.WithLabelValues(taskOutcomeOK).Inc()
				return nil
			}
			if gi, ok := AsInterrupt(err); ok {
				metricTasks.WithLabelValues(taskOutcomeInterrupted).Inc()
				interrupts[i] = gi
				return nil
			}
			metricTasks.WithLabelValues(taskOutcomeError).Inc()
			return &NodeError{NodeID: t.NodeID, TaskID: t.ID, Err: err}
		})
	}
	if err := group.Wait(); err != nil {
		var pce *ParentCommandError
		if errors.As(err, &pce) {
			return nil, pce
		}
		return nil, err
	}
	for _, gi := range interrupts {
		if gi != nil {
			return gi, nil
		}
	}
	return nil, nil
}

// runTask invokes one node with its task-local context, retry policy, and
// write collection. On success the task's writes are durably buffered via
// the saver before the superstep joins.
func (r *runState) runTask(ctx context.Context, t *Task) error {
	ctx, span := r.e.tracer.Start(ctx, "graph.task",
		trace.WithAttributes(attribute.String("node", t.NodeID), attribute.String("task_id", t.ID)))
	defer span.End()

	node := r.g.nodes[t.NodeID]
	policy := t.RetryPolicy
	if policy == nil {
		policy = r.e.retryPolicy
	}

	var out *nodeOutput
	var routerState State
	attempt := 0
	err := runWithRetry(ctx, policy, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metricTaskRetries.Inc()
		}
		sp := &scratchpad{resumeMap: r.resumeMap}
		if is := r.interruptState; is != nil && is.TaskID == t.ID {
			sp.resumeValues = is.ResumeValues
		}
		var sends []Send
		tc := &TaskContext{
			NodeID:      t.NodeID,
			TaskID:      t.ID,
			Namespace:   r.taskNamespace(t),
			Step:        r.step,
			scratch:     sp,
			hasSaver:    r.e.saver != nil,
			sendsBuffer: &sends,
		}
		input := t.EffectiveInput(r.g.schema)
		result, err := node.Function(withTaskContext(ctx, tc), input)
		if err != nil {
			return err
		}
		if err := checkResumeConsistency(sp); err != nil {
			return err
		}
		normalized, err := normalizeNodeOutput(result)
		if err != nil {
			return err
		}
		if normalized.toParent {
			return &ParentCommandError{Command: normalized.command}
		}
		normalized.sends = append(normalized.sends, sends...)
		if len(sends) > 0 {
			normalized.explicit = true
		}
		out = normalized
		routerState = r.g.schema.ApplyUpdate(input, normalized.update)
		return nil
	})
	if err != nil {
		return err
	}

	routing, outSends, err := resolveRouting(ctx, r.g, t.NodeID, out, routerState)
	if err != nil {
		return err
	}
	t.Writes = taskWrites(t, out, routing, outSends)

	r.em.emit(ctx, &Event{Type: EventTypeMessage, Step: r.step, NodeID: t.NodeID, TaskID: t.ID, Output: out.update})
	r.em.emit(ctx, &Event{Type: EventTypeTask, Step: r.step, NodeID: t.NodeID, TaskID: t.ID})

	if r.e.saver != nil && len(t.Writes) > 0 {
		req := PutWritesRequest{
			Config: CreateCheckpointConfig(r.ro.ThreadID, r.ckpt.ID, r.ro.CheckpointNS),
			Writes: t.Writes,
			TaskID: t.ID,
		}
		if err := r.e.saver.PutWrites(ctx, req); err != nil {
			return fmt.Errorf("persist task writes: %w", err)
		}
	}
	return nil
}

// taskNamespace scopes a task inside the thread: checkpoint namespace,
// node, and send index for fan-out invocations.
func (r *runState) taskNamespace(t *Task) string {
	ns := t.NodeID
	if t.SendIndex >= 0 {
		ns = fmt.Sprintf("%s:%d", t.NodeID, t.SendIndex)
	}
	if r.ro.CheckpointNS != "" {
		ns = r.ro.CheckpointNS + CheckpointNamespaceSeparator + ns
	}
	return ns
}

// snapshotCheckpoint captures the channels and planning state into a new
// checkpoint value.
func (r *runState) snapshotCheckpoint(updated []string, is *InterruptState) *Checkpoint {
	next := NewCheckpoint(nil, nil, nil)
	for name, ch := range r.channels {
		snap := ch.Checkpoint()
		if snap.Version > 0 {
			next.ChannelVersions[name] = snap.Version
		}
		if !snap.Available {
			continue
		}
		switch ch.Type() {
		case intchannel.TypeTopic:
			next.ChannelValues[name] = snap.Values
		case intchannel.TypeBarrier:
			next.ChannelValues[name] = snap.Contribs
		default:
			next.ChannelValues[name] = snap.Value
		}
	}
	for node, seen := range r.ckpt.VersionsSeen {
		next.VersionsSeen[node] = deepCopyMap(seen)
	}
	next.UpdatedChannels = updated
	next.PendingSends = r.ckpt.PendingSends
	next.InterruptState = is
	return next
}

// put persists a checkpoint and emits the debug event.
func (r *runState) put(ctx context.Context, next *Checkpoint, meta *CheckpointMetadata) error {
	if r.e.saver != nil {
		start := time.Now()
		req := PutRequest{
			Config:      CreateCheckpointConfig(r.ro.ThreadID, "", r.ro.CheckpointNS),
			Checkpoint:  next,
			Metadata:    meta,
			NewVersions: next.ChannelVersions,
		}
		if _, err := r.e.saver.Put(ctx, req); err != nil {
			return fmt.Errorf("commit checkpoint: %w", err)
		}
		metricCheckpointPut.Observe(time.Since(start).Seconds())
	}
	r.em.emit(ctx, &Event{Type: EventTypeCheckpoint, Step: r.step, CheckpointID: next.ID})
	return nil
}

// commit snapshots the channels into a new checkpoint and persists it.
func (r *runState) commit(ctx context.Context, source string, updated []string, is *InterruptState) error {
	next := r.snapshotCheckpoint(updated, is)
	meta := NewCheckpointMetadata(source, r.step)
	if r.lastID != "" {
		meta.Parents[r.ro.CheckpointNS] = r.lastID
	}
	if err := r.put(ctx, next, meta); err != nil {
		return err
	}
	r.prevID = r.lastID
	r.lastID = next.ID
	r.ckpt = next
	r.pendingWrites = nil
	return nil
}

// commitInterrupt re-commits the checkpoint the step was planned from,
// now carrying the interrupt state. Keeping the same checkpoint id
// preserves task identity, so a resumed run replans the same task ids and
// replays the durable writes of tasks that already completed.
func (r *runState) commitInterrupt(ctx context.Context, is *InterruptState, extra map[string]any) error {
	next := r.snapshotCheckpoint(nil, is)
	next.ID = r.ckpt.ID
	next.Timestamp = r.ckpt.Timestamp
	meta := NewCheckpointMetadata(SourceInterrupt, r.step)
	if r.prevID != "" {
		meta.Parents[r.ro.CheckpointNS] = r.prevID
	}
	for k, v := range extra {
		meta.Extra[k] = v
	}
	if err := r.put(ctx, next, meta); err != nil {
		return err
	}
	r.lastID = next.ID
	r.ckpt = next
	return nil
}

// emitStepEvents delivers the per-step observations after a commit.
func (r *runState) emitStepEvents(ctx context.Context, tasks []*Task, updated []string) {
	if r.em.wants(EventTypeValues) {
		r.em.emit(ctx, &Event{Type: EventTypeValues, Step: r.step, State: readStateSnapshot(r.g, r.channels)})
	}
	if r.em.wants(EventTypeUpdates) {
		updates := make(map[string]State, len(tasks))
		for _, t := range tasks {
			u := make(State)
			for _, w := range t.Writes {
				if w.Channel == ChannelPendingSends || isInternalChannel(w.Channel) {
					continue
				}
				u[w.Channel] = w.Value
			}
			if len(u) > 0 {
				updates[t.NodeID] = u
			}
		}
		r.em.emit(ctx, &Event{Type: EventTypeUpdates, Step: r.step, Updates: updates})
	}
}

// isInternalChannel reports whether a channel is runtime wiring rather
// than user-visible state.
func isInternalChannel(name string) bool {
	return strings.HasPrefix(name, ChannelBranchPrefix) ||
		strings.HasPrefix(name, ChannelJoinPrefix) ||
		strings.HasPrefix(name, ChannelInputPrefix)
}

// restoreChannels rebuilds channel state from a checkpoint.
func restoreChannels(channels map[string]*intchannel.Channel, ckpt *Checkpoint) {
	for name, ch := range channels {
		version, hasVersion := ckpt.ChannelVersions[name]
		value, hasValue := ckpt.ChannelValues[name]
		if !hasVersion && !hasValue {
			continue
		}
		snap := intchannel.Snapshot{Available: hasValue}
		if hasVersion {
			snap.Version = versionToInt(version)
		}
		if hasValue {
			switch ch.Type() {
			case intchannel.TypeTopic:
				snap.Values = toAnySlice(value)
			case intchannel.TypeBarrier:
				if m, ok := value.(map[string]any); ok {
					snap.Contribs = m
				}
			default:
				snap.Value = value
			}
		}
		ch.Restore(snap)
	}
}

// channelVersions collects the current version of every written channel.
func channelVersions(channels map[string]*intchannel.Channel) map[string]any {
	versions := make(map[string]any, len(channels))
	for name, ch := range channels {
		if v := ch.Version(); v > 0 {
			versions[name] = v
		}
	}
	return versions
}

// versionToInt converts a checkpoint-stored version (possibly a JSON
// float) back to the channel's int64 form.
func versionToInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
