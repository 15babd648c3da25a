package graph

import (
	"fmt"

	intchannel "github.com/langchain-ai/langgraph-go/graph/internal/channel"
)

// sendTriggerMarker stands in for real trigger channels in the id hash of
// send-planned tasks.
const sendTriggerMarker = "__pending_send__"

// planner computes the task set for the next superstep from the latest
// checkpoint: a node is schedulable iff one of its trigger channels is
// available at a version the node has not seen, and every pending send
// becomes one targeted task in order.
type planner struct {
	g *Graph
}

// plan builds the tasks for one superstep.
func (p *planner) plan(channels map[string]*intchannel.Channel, ckpt *Checkpoint) ([]*Task, error) {
	var regular, deferred []*Task

	snapshot := readStateSnapshot(p.g, channels)
	for _, nodeID := range p.g.NodeIDs() {
		node := p.g.nodes[nodeID]
		triggers := p.g.Triggers(nodeID)
		fired := firedTriggers(channels, ckpt.VersionsSeen[nodeID], triggers)
		if len(fired) == 0 {
			continue
		}
		task := &Task{
			ID:          taskID(ckpt.ID, nodeID, triggers, -1),
			NodeID:      nodeID,
			Input:       DeepCopyState(snapshot),
			Triggers:    triggers,
			SendIndex:   -1,
			RetryPolicy: node.RetryPolicy,
		}
		if node.Defer {
			deferred = append(deferred, task)
		} else {
			regular = append(regular, task)
		}
	}

	// Pending sends are consumed exactly once: each becomes a targeted
	// task for the next superstep, in the order they were produced.
	var sendTasks []*Task
	for i, send := range ckpt.PendingSends {
		if send.Node == End {
			return nil, fmt.Errorf("%w: cannot send to %s", ErrInvalidUpdate, End)
		}
		node, ok := p.g.nodes[send.Node]
		if !ok {
			return nil, fmt.Errorf("%w: send targets unknown node %q", ErrInvalidUpdate, send.Node)
		}
		sendTasks = append(sendTasks, &Task{
			ID:          taskID(ckpt.ID, send.Node, []string{sendTriggerMarker}, i),
			NodeID:      send.Node,
			Input:       DeepCopyState(snapshot),
			Overlay:     send.Arg,
			SendIndex:   i,
			RetryPolicy: node.RetryPolicy,
		})
	}

	// Deferred nodes wait until nothing else is planned.
	tasks := append(regular, sendTasks...)
	if len(tasks) == 0 {
		tasks = deferred
	}
	return tasks, nil
}

// firedTriggers returns the trigger channels that are available at a
// version the node has not yet seen.
func firedTriggers(channels map[string]*intchannel.Channel, seen map[string]any, triggers []string) []string {
	var fired []string
	for _, name := range triggers {
		ch, ok := channels[name]
		if !ok || !ch.IsAvailable() {
			continue
		}
		if intchannel.Compare(ch.Version(), seen[name]) > 0 {
			fired = append(fired, name)
		}
	}
	return fired
}

// readStateSnapshot assembles the state visible to tasks planned for this
// step: every available state-field and declared extra channel. Topic
// channels contribute their accumulated batch as a list. Trigger and join
// channels are wiring, not state, and are excluded.
func readStateSnapshot(g *Graph, channels map[string]*intchannel.Channel) State {
	state := make(State)
	for _, name := range g.schema.FieldNames() {
		if ch, ok := channels[name]; ok && ch.IsAvailable() {
			if v, err := ch.Get(); err == nil {
				state[name] = v
			}
		}
	}
	for _, decl := range g.extraChannels {
		if ch, ok := channels[decl.name]; ok && ch.IsAvailable() {
			if v, err := ch.Get(); err == nil {
				state[decl.name] = v
			}
		}
	}
	return state
}
