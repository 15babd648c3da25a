// Package graph provides a Pregel-inspired graph execution runtime: named
// nodes communicate through versioned channels, computation advances in
// parallel supersteps, and every superstep boundary is durably
// checkpointed so runs can pause, resume, and survive crashes.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/langchain-ai/langgraph-go/graph/internal/channel"
)

// Reserved node names.
const (
	// Start is the graph entry sentinel. It may be used in edges but not
	// as a user-defined node.
	Start = "__start__"
	// End is the graph exit sentinel. Routing to End finishes the branch.
	End = "__end__"
)

// reservedNameChars may not appear in node names; they collide with
// channel naming and namespace separators.
const reservedNameChars = ":|"

// NodeFunc is the body of a node. It receives the task's input snapshot
// and returns a State update, a *Command, a []Send, or nil.
type NodeFunc func(ctx context.Context, state State) (any, error)

// ConditionalFunc routes execution after a node. It returns one or more
// destinations: a string label, a []string, a Send, a []Send, or a []any
// mixing labels and Sends. Labels resolve through the branch's path map
// when one is declared, else they are treated as literal node names.
type ConditionalFunc func(ctx context.Context, state State) (any, error)

// Node is a vertex of the graph.
type Node struct {
	// ID is the unique name of the node.
	ID string
	// Name is the human-readable name.
	Name string
	// Description describes the node.
	Description string
	// Function is the node body.
	Function NodeFunc
	// Ends optionally declares every destination the node may route to
	// via Command; validation checks Command targets against it.
	Ends []string
	// Metadata carries arbitrary annotations.
	Metadata map[string]any
	// Defer delays the node until no other task is planned in the step.
	Defer bool
	// RetryPolicy overrides the executor's retry policy for this node.
	RetryPolicy *RetryPolicy
}

// Edge is an unconditional edge: once From completes, To is triggered.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes from a node through a router function.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	// PathMap maps router labels to node names. Empty means labels are
	// literal node names.
	PathMap map[string]string
}

// ChannelType selects the update rule of a declared channel.
type ChannelType int

const (
	// ChannelLastValue stores the most recent write and rejects more than
	// one value per step.
	ChannelLastValue ChannelType = iota
	// ChannelTopic accumulates all values written within a step.
	ChannelTopic
	// ChannelTopicDedup accumulates values, dropping duplicates.
	ChannelTopicDedup
	// ChannelEphemeral keeps a value for exactly one step after the write.
	ChannelEphemeral
)

// channelDecl is an extra channel declared on the builder, beyond the
// ones derived from state fields and edges.
type channelDecl struct {
	name string
	typ  ChannelType
}

// Graph is the compiled, executable form of a StateGraph: two flat tables
// of nodes and channels keyed by name, plus the trigger wiring the planner
// consumes. The compiled graph owns the channel declarations; their
// mutable state lives in the active checkpoint.
type Graph struct {
	schema           *StateSchema
	nodes            map[string]*Node
	edges            map[string][]*Edge
	conditionalEdges map[string]*ConditionalEdge
	joinWriters      map[string][]string // join target -> declared writers
	extraChannels    []channelDecl
	entryPoint       string

	channels     map[string]*channel.Channel // channel declarations
	nodeTriggers map[string][]string         // node -> trigger channels
	subscribers  map[string][]string         // trigger channel -> nodes
}

// Schema returns the graph's state schema.
func (g *Graph) Schema() *StateSchema { return g.schema }

// Node returns a node by name.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns the user-defined node names in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EntryPoint returns the node triggered by the run input.
func (g *Graph) EntryPoint() string { return g.entryPoint }

// Edges returns the unconditional edges out of a node.
func (g *Graph) Edges(from string) []*Edge { return g.edges[from] }

// ConditionalEdge returns the conditional branch out of a node.
func (g *Graph) ConditionalEdge(from string) (*ConditionalEdge, bool) {
	ce, ok := g.conditionalEdges[from]
	return ce, ok
}

// Triggers returns the channels that schedule a node.
func (g *Graph) Triggers(nodeID string) []string { return g.nodeTriggers[nodeID] }

// Subscribers returns the nodes a trigger channel schedules.
func (g *Graph) Subscribers(channelName string) []string { return g.subscribers[channelName] }

// newChannelSet instantiates fresh channels from the graph's declarations.
// Channels are never shared across runs; each run rebuilds them and
// restores their state from the latest checkpoint.
func (g *Graph) newChannelSet() map[string]*channel.Channel {
	set := make(map[string]*channel.Channel, len(g.channels))
	for name, decl := range g.channels {
		set[name] = decl.FromCheckpoint(channel.Snapshot{})
	}
	return set
}

// triggerChannel names the channel that schedules a node.
func triggerChannel(nodeID string) string { return ChannelBranchPrefix + nodeID }

// joinChannel names the barrier channel that joins several writers into a
// node.
func joinChannel(nodeID string) string { return ChannelJoinPrefix + nodeID }

// compile wires channels and subscriptions from the static description and
// validates the result.
func (g *Graph) compile() error {
	if err := g.validate(); err != nil {
		return err
	}
	g.channels = make(map[string]*channel.Channel)
	g.nodeTriggers = make(map[string][]string)
	g.subscribers = make(map[string][]string)

	// One channel per state field, following the field's update rule.
	for _, name := range g.schema.FieldNames() {
		field, _ := g.schema.Field(name)
		if field.Reducer != nil {
			reducer := field.Reducer
			adapted := func(current, value any) (any, error) {
				return reducer(current, value), nil
			}
			g.channels[name] = channel.New(name, channel.TypeBinaryOperator,
				channel.WithReducer(adapted, field.Default))
			continue
		}
		g.channels[name] = channel.New(name, channel.TypeLastValue)
	}

	// One ephemeral trigger channel per node, subscribed by that node.
	for id := range g.nodes {
		trig := triggerChannel(id)
		g.channels[trig] = channel.New(trig, channel.TypeEphemeral)
		g.nodeTriggers[id] = append(g.nodeTriggers[id], trig)
		g.subscribers[trig] = append(g.subscribers[trig], id)
	}

	// Extra channels declared on the builder.
	for _, decl := range g.extraChannels {
		switch decl.typ {
		case ChannelTopic:
			g.channels[decl.name] = channel.New(decl.name, channel.TypeTopic)
		case ChannelTopicDedup:
			g.channels[decl.name] = channel.New(decl.name, channel.TypeTopic, channel.WithDedup())
		case ChannelEphemeral:
			g.channels[decl.name] = channel.New(decl.name, channel.TypeEphemeral)
		default:
			g.channels[decl.name] = channel.New(decl.name, channel.TypeLastValue)
		}
	}

	// Barrier channels for declared joins: the target fires only when all
	// declared writers have completed.
	for target, writers := range g.joinWriters {
		join := joinChannel(target)
		g.channels[join] = channel.New(join, channel.TypeBarrier,
			channel.WithExpectedWriters(writers...))
		g.nodeTriggers[target] = append(g.nodeTriggers[target], join)
		g.subscribers[join] = append(g.subscribers[join], target)
	}
	return nil
}

// validate checks the static description before compilation.
func (g *Graph) validate() error {
	if len(g.nodes) == 0 {
		return NewGraphValueError("graph has no nodes")
	}
	for id, n := range g.nodes {
		if id == Start || id == End {
			return NewGraphValueError("node name %q is reserved", id)
		}
		if strings.ContainsAny(id, reservedNameChars) {
			return NewGraphValueError("node name %q contains reserved characters %q", id, reservedNameChars)
		}
		if n.Function == nil {
			return NewGraphValueError("node %q has no function", id)
		}
	}
	if g.entryPoint == "" {
		return NewGraphValueError("graph has no entry point: add an edge from Start")
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return NewGraphValueError("entry point %q is not a node", g.entryPoint)
	}

	// Every referenced target must be a node or End.
	for from, edges := range g.edges {
		if from != Start {
			if _, ok := g.nodes[from]; !ok {
				return NewGraphValueError("edge source %q is not a node", from)
			}
		}
		for _, e := range edges {
			if e.To == End {
				continue
			}
			if _, ok := g.nodes[e.To]; !ok {
				return NewGraphValueError("edge %s -> %s targets unknown node", e.From, e.To)
			}
		}
	}
	for from, ce := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return NewGraphValueError("conditional edge source %q is not a node", from)
		}
		for label, dest := range ce.PathMap {
			if dest != End {
				if _, ok := g.nodes[dest]; !ok {
					return NewGraphValueError("conditional edge from %q maps label %q to unknown node %q", from, label, dest)
				}
			}
			// A label that is itself a node name must map to that node,
			// otherwise a Send targeting the node and a label routing
			// elsewhere would be ambiguous.
			if _, isNode := g.nodes[label]; isNode && dest != label {
				return NewGraphValueError("conditional edge from %q: label %q is a node name but maps to %q", from, label, dest)
			}
		}
	}
	for target, writers := range g.joinWriters {
		if _, ok := g.nodes[target]; !ok {
			return NewGraphValueError("join edge targets unknown node %q", target)
		}
		for _, w := range writers {
			if _, ok := g.nodes[w]; !ok {
				return NewGraphValueError("join edge into %q declares unknown writer %q", target, w)
			}
		}
	}

	declared := make(map[string]bool)
	for _, name := range g.schema.FieldNames() {
		declared[name] = true
	}
	for _, decl := range g.extraChannels {
		if decl.name == "" || strings.ContainsAny(decl.name, reservedNameChars) {
			return NewGraphValueError("channel name %q is empty or contains reserved characters", decl.name)
		}
		if declared[decl.name] {
			return NewGraphValueError("channel %q is already declared", decl.name)
		}
		declared[decl.name] = true
	}

	// Declared ends must reference nodes or End.
	for id, n := range g.nodes {
		for _, dest := range n.Ends {
			if dest == End {
				continue
			}
			if _, ok := g.nodes[dest]; !ok {
				return NewGraphValueError("node %q declares unknown destination %q", id, dest)
			}
		}
	}

	// Every node must be reachable from Start, and every node must lead
	// somewhere: a successor edge, a conditional branch, declared ends,
	// or End itself.
	visited := make(map[string]bool)
	g.reach(g.entryPoint, visited)
	for id := range g.nodes {
		if !visited[id] {
			return NewGraphValueError("node %q is not reachable from %s", id, Start)
		}
		if len(g.edges[id]) == 0 && g.conditionalEdges[id] == nil &&
			len(g.nodes[id].Ends) == 0 && !g.isJoinWriter(id) {
			return NewGraphValueError("node %q has no successors and no edge to %s", id, End)
		}
	}
	return nil
}

func (g *Graph) isJoinWriter(id string) bool {
	for _, writers := range g.joinWriters {
		for _, w := range writers {
			if w == id {
				return true
			}
		}
	}
	return false
}

func (g *Graph) reach(id string, visited map[string]bool) {
	if visited[id] || id == End {
		return
	}
	visited[id] = true
	for _, e := range g.edges[id] {
		g.reach(e.To, visited)
	}
	if ce := g.conditionalEdges[id]; ce != nil {
		for _, dest := range ce.PathMap {
			g.reach(dest, visited)
		}
		if len(ce.PathMap) == 0 {
			// Without a path map the router may address any node.
			for other := range g.nodes {
				g.reach(other, visited)
			}
		}
	}
	for _, dest := range g.nodes[id].Ends {
		g.reach(dest, visited)
	}
	for target, writers := range g.joinWriters {
		for _, w := range writers {
			if w == id {
				g.reach(target, visited)
			}
		}
	}
}

// String renders a compact description, useful in logs and tests.
func (g *Graph) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph(entry=%s nodes=%d)", g.entryPoint, len(g.nodes))
	return b.String()
}
