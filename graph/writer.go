package graph

import (
	"context"
	"fmt"
	"sort"

	intchannel "github.com/langchain-ai/langgraph-go/graph/internal/channel"

	"github.com/langchain-ai/langgraph-go/log"
)

// ChannelPendingSends is the reserved channel name under which a task's
// sends are buffered as pending writes, so crash recovery replays them.
const ChannelPendingSends = "__send__"

// Write is one (channel, value) pair produced by a node.
type Write struct {
	Channel string
	Value   any
}

// nodeOutput is the normalized form of whatever a node returned: channel
// writes, sends, and routing decisions. Normalization happens once at the
// scheduler boundary so the rest of the pipeline handles a single shape.
type nodeOutput struct {
	update   State
	ordered  []Write
	sends    []Send
	gotos    []string
	explicit bool // the node routed itself via Command or Sends
	toParent bool
	command  *Command
}

// normalizeNodeOutput canonicalizes a node's return value. Accepted
// shapes: nil, State, map[string]any, Write, []Write, Send, []Send,
// Command, and *Command.
func normalizeNodeOutput(result any) (*nodeOutput, error) {
	out := &nodeOutput{}
	switch v := result.(type) {
	case nil:
		return out, nil
	case State:
		out.update = v
	case map[string]any:
		out.update = State(v)
	case Write:
		out.ordered = []Write{v}
	case []Write:
		out.ordered = v
	case Send:
		out.sends = []Send{v}
		out.explicit = true
	case []Send:
		out.sends = v
		out.explicit = true
	case Command:
		return normalizeCommand(&v)
	case *Command:
		return normalizeCommand(v)
	default:
		return nil, fmt.Errorf("%w: node returned unsupported type %T", ErrInvalidUpdate, result)
	}
	return out, nil
}

func normalizeCommand(cmd *Command) (*nodeOutput, error) {
	out := &nodeOutput{update: cmd.Update, command: cmd}
	if cmd.Graph == GraphParent {
		out.toParent = true
		return out, nil
	}
	for _, dest := range cmd.GoTo {
		switch d := dest.(type) {
		case string:
			out.gotos = append(out.gotos, d)
		case Send:
			out.sends = append(out.sends, d)
		case *Send:
			out.sends = append(out.sends, *d)
		default:
			return nil, fmt.Errorf("%w: Command.GoTo element has unsupported type %T", ErrInvalidUpdate, dest)
		}
	}
	out.explicit = len(out.gotos) > 0 || len(out.sends) > 0
	return out, nil
}

// resolveRouting turns a task's normalized output into trigger writes and
// sends. Explicit Command/Send routing replaces the node's static edges;
// otherwise plain edges fire and the conditional router, if any, runs
// against the state as the node left it.
func resolveRouting(ctx context.Context, g *Graph, nodeID string, out *nodeOutput, routerState State) ([]Write, []Send, error) {
	node := g.nodes[nodeID]
	dests := out.gotos
	sends := append([]Send(nil), out.sends...)

	if !out.explicit {
		for _, e := range g.Edges(nodeID) {
			dests = append(dests, e.To)
		}
		if ce, ok := g.ConditionalEdge(nodeID); ok {
			routed, routedSends, err := runRouter(ctx, ce, routerState)
			if err != nil {
				return nil, nil, err
			}
			dests = append(dests, routed...)
			sends = append(sends, routedSends...)
		}
	}

	var writes []Write
	seen := make(map[string]bool)
	for _, dest := range dests {
		if dest == End {
			continue
		}
		if _, ok := g.nodes[dest]; !ok {
			return nil, nil, fmt.Errorf("%w: unknown branch destination %q from node %q", ErrInvalidUpdate, dest, nodeID)
		}
		if out.explicit && len(node.Ends) > 0 && !contains(node.Ends, dest) {
			return nil, nil, fmt.Errorf("%w: node %q routed to %q, not covered by its declared destinations", ErrInvalidUpdate, nodeID, dest)
		}
		if seen[dest] {
			continue
		}
		seen[dest] = true
		writes = append(writes, Write{Channel: triggerChannel(dest), Value: nodeID})
	}

	// Contribute to any barrier this node is a declared writer for.
	for target, writers := range g.joinWriters {
		if contains(writers, nodeID) {
			writes = append(writes, Write{
				Channel: joinChannel(target),
				Value:   intchannel.WriterContribution{Writer: nodeID, Value: nodeID},
			})
		}
	}

	for i, s := range sends {
		if s.Node == End {
			return nil, nil, fmt.Errorf("%w: cannot send to %s", ErrInvalidUpdate, End)
		}
		if _, ok := g.nodes[s.Node]; !ok {
			return nil, nil, fmt.Errorf("%w: send targets unknown node %q", ErrInvalidUpdate, s.Node)
		}
		if out.explicit && len(node.Ends) > 0 && !contains(node.Ends, s.Node) {
			return nil, nil, fmt.Errorf("%w: node %q sent to %q, not covered by its declared destinations", ErrInvalidUpdate, nodeID, s.Node)
		}
		sends[i].TaskID = ""
	}
	return writes, sends, nil
}

// runRouter evaluates a conditional edge's router and resolves its labels
// through the path map. Sends returned by the router are honored verbatim.
func runRouter(ctx context.Context, ce *ConditionalEdge, state State) ([]string, []Send, error) {
	result, err := ce.Condition(ctx, state)
	if err != nil {
		if IsInterrupt(err) {
			// Routers must be pure; pausing here is almost certainly a
			// bug in the router, but the interrupt is still honored.
			log.Warnf("interrupt raised from conditional router on %q; routers should be pure", ce.From)
		}
		return nil, nil, err
	}

	var labels []string
	var sends []Send
	var collect func(v any) error
	collect = func(v any) error {
		switch d := v.(type) {
		case string:
			labels = append(labels, d)
		case []string:
			labels = append(labels, d...)
		case Send:
			sends = append(sends, d)
		case *Send:
			sends = append(sends, *d)
		case []Send:
			sends = append(sends, d...)
		case []any:
			for _, item := range d {
				if err := collect(item); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: router on %q returned unsupported type %T", ErrInvalidUpdate, ce.From, v)
		}
		return nil
	}
	if err := collect(result); err != nil {
		return nil, nil, err
	}

	if len(ce.PathMap) > 0 {
		resolved := make([]string, 0, len(labels))
		for _, label := range labels {
			if dest, ok := ce.PathMap[label]; ok {
				resolved = append(resolved, dest)
				continue
			}
			resolved = append(resolved, label)
		}
		labels = resolved
	}
	return labels, sends, nil
}

// taskWrites flattens a task's normalized output into the ordered pending
// writes buffered for durability: state updates first (by sorted field
// name, since map order is not deterministic), then explicitly ordered
// writes, then routing writes, then sends under the reserved channel.
func taskWrites(t *Task, out *nodeOutput, routing []Write, sends []Send) []PendingWrite {
	var writes []PendingWrite
	seq := 0
	add := func(ch string, v any) {
		writes = append(writes, PendingWrite{TaskID: t.ID, Channel: ch, Value: v, Sequence: seq})
		seq++
	}
	keys := make([]string, 0, len(out.update))
	for k := range out.update {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, out.update[k])
	}
	for _, w := range out.ordered {
		add(w.Channel, w.Value)
	}
	for _, w := range routing {
		add(w.Channel, w.Value)
	}
	for _, s := range sends {
		s.TaskID = t.ID
		add(ChannelPendingSends, s)
	}
	return writes
}

// applyWrites folds the completed tasks' writes into the channels. Tasks
// are visited in planned order so channel batches are deterministic; each
// channel receives a single ordered batch per superstep. Expiring channel
// contents (topic batches, spent ephemerals) are consumed first, then the
// new writes land. Returns the names of channels whose update was
// accepted.
func applyWrites(g *Graph, channels map[string]*intchannel.Channel, tasks []*Task) ([]string, []Send, error) {
	for _, ch := range channels {
		ch.Consume()
	}

	batches := make(map[string][]any)
	var order []string
	var sends []Send
	for _, t := range tasks {
		for _, w := range t.Writes {
			if w.Channel == ChannelPendingSends {
				send, err := decodeSend(w.Value)
				if err != nil {
					return nil, nil, err
				}
				sends = append(sends, send)
				continue
			}
			if _, ok := batches[w.Channel]; !ok {
				order = append(order, w.Channel)
			}
			batches[w.Channel] = append(batches[w.Channel], w.Value)
		}
	}

	var updated []string
	for _, name := range order {
		ch, ok := channels[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: write to undeclared channel %q", ErrInvalidUpdate, name)
		}
		applied, err := ch.Update(batches[name])
		if err != nil {
			return nil, nil, err
		}
		if applied {
			updated = append(updated, name)
		}
	}

	// A barrier whose subscribers just ran is spent; reset it so the next
	// wave of writers can fill it again.
	for name, ch := range channels {
		if ch.Type() == intchannel.TypeBarrier && !contains(updated, name) {
			for _, t := range tasks {
				if contains(g.Triggers(t.NodeID), name) {
					ch.Finish()
					break
				}
			}
		}
	}
	sort.Strings(updated)
	return updated, sends, nil
}

// decodeSend recovers a Send from a pending write value, which may have
// gone through a JSON round-trip in the saver.
func decodeSend(v any) (Send, error) {
	switch s := v.(type) {
	case Send:
		return s, nil
	case map[string]any:
		send := Send{}
		if node, ok := s["node"].(string); ok {
			send.Node = node
		}
		if arg, ok := s["arg"].(map[string]any); ok {
			send.Arg = State(arg)
		}
		if tid, ok := s["task_id"].(string); ok {
			send.TaskID = tid
		}
		if send.Node == "" {
			return Send{}, fmt.Errorf("%w: malformed pending send %v", ErrInvalidUpdate, v)
		}
		return send, nil
	default:
		return Send{}, fmt.Errorf("%w: malformed pending send of type %T", ErrInvalidUpdate, v)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

