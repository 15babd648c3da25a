package graph

import "fmt"

// StateGraph is the fluent builder for graphs. Nodes and edges are
// declared against a state schema; Compile produces the channel and
// trigger wiring the runtime consumes.
//
// Example:
//
//	schema := NewStateSchema().AddField("messages", StateField{
//	    Reducer: AppendReducer,
//	    Default: func() any { return []any{} },
//	})
//	g, err := NewStateGraph(schema).
//	    AddNode("add", addFunc).
//	    SetEntryPoint("add").
//	    SetFinishPoint("add").
//	    Compile()
type StateGraph struct {
	graph *Graph
	err   error
}

// NewStateGraph creates a builder over the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &StateGraph{
		graph: &Graph{
			schema:           schema,
			nodes:            make(map[string]*Node),
			edges:            make(map[string][]*Edge),
			conditionalEdges: make(map[string]*ConditionalEdge),
			joinWriters:      make(map[string][]string),
		},
	}
}

// NodeOption configures a node at declaration time.
type NodeOption func(*Node)

// WithName sets the human-readable node name.
func WithName(name string) NodeOption {
	return func(n *Node) { n.Name = name }
}

// WithDescription sets the node description.
func WithDescription(description string) NodeOption {
	return func(n *Node) { n.Description = description }
}

// WithEnds declares the destinations the node may route to via Command.
func WithEnds(ends ...string) NodeOption {
	return func(n *Node) { n.Ends = ends }
}

// WithMetadata attaches an annotation to the node.
func WithMetadata(key string, value any) NodeOption {
	return func(n *Node) {
		if n.Metadata == nil {
			n.Metadata = make(map[string]any)
		}
		n.Metadata[key] = value
	}
}

// WithDefer delays the node until no other task is planned in the step.
func WithDefer() NodeOption {
	return func(n *Node) { n.Defer = true }
}

// WithNodeRetryPolicy overrides the executor's retry policy for this node.
func WithNodeRetryPolicy(policy *RetryPolicy) NodeOption {
	return func(n *Node) { n.RetryPolicy = policy }
}

// AddNode declares a node with the given id and body.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...NodeOption) *StateGraph {
	if sg.err != nil {
		return sg
	}
	if _, exists := sg.graph.nodes[id]; exists {
		sg.err = NewGraphValueError("node %q already exists", id)
		return sg
	}
	node := &Node{ID: id, Name: id, Function: function}
	for _, opt := range opts {
		opt(node)
	}
	sg.graph.nodes[id] = node
	return sg
}

// AddEdge declares an unconditional edge. An edge from Start sets the
// entry point; an edge to End marks a finish point.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	if sg.err != nil {
		return sg
	}
	if from == End {
		sg.err = NewGraphValueError("%s cannot be an edge source", End)
		return sg
	}
	if to == Start {
		sg.err = NewGraphValueError("%s cannot be an edge target", Start)
		return sg
	}
	if from == Start {
		if sg.graph.entryPoint != "" && sg.graph.entryPoint != to {
			sg.err = NewGraphValueError("entry point already set to %q", sg.graph.entryPoint)
			return sg
		}
		sg.graph.entryPoint = to
	}
	sg.graph.edges[from] = append(sg.graph.edges[from], &Edge{From: from, To: to})
	return sg
}

// AddConditionalEdges declares a routed branch out of a node. The router
// returns one or more labels or Sends; labels resolve through pathMap when
// one is given, else they are literal node names. This is the single
// supported registration form.
func (sg *StateGraph) AddConditionalEdges(from string, condition ConditionalFunc, pathMap map[string]string) *StateGraph {
	if sg.err != nil {
		return sg
	}
	if condition == nil {
		sg.err = NewGraphValueError("conditional edge from %q has no router", from)
		return sg
	}
	if _, exists := sg.graph.conditionalEdges[from]; exists {
		sg.err = NewGraphValueError("conditional edge from %q already exists", from)
		return sg
	}
	sg.graph.conditionalEdges[from] = &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	}
	return sg
}

// AddChannel declares an extra channel nodes can read and write beyond
// the ones derived from state fields, e.g. a topic channel that collects
// fan-in values within a step.
func (sg *StateGraph) AddChannel(name string, typ ChannelType) *StateGraph {
	if sg.err != nil {
		return sg
	}
	sg.graph.extraChannels = append(sg.graph.extraChannels, channelDecl{name: name, typ: typ})
	return sg
}

// AddJoinEdge declares a fan-in barrier: to runs only after every node in
// froms has completed. Writers may complete in different supersteps; their
// contributions are kept until to runs.
func (sg *StateGraph) AddJoinEdge(froms []string, to string) *StateGraph {
	if sg.err != nil {
		return sg
	}
	if len(froms) == 0 {
		sg.err = NewGraphValueError("join edge into %q declares no writers", to)
		return sg
	}
	if _, exists := sg.graph.joinWriters[to]; exists {
		sg.err = NewGraphValueError("join edge into %q already exists", to)
		return sg
	}
	sg.graph.joinWriters[to] = append([]string(nil), froms...)
	return sg
}

// SetEntryPoint marks the node triggered by the run input. Equivalent to
// AddEdge(Start, nodeID).
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	return sg.AddEdge(Start, nodeID)
}

// SetFinishPoint adds an edge from the node to End.
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	return sg.AddEdge(nodeID, End)
}

// Compile validates the description and wires the channel/trigger tables.
func (sg *StateGraph) Compile() (*Graph, error) {
	if sg.err != nil {
		return nil, sg.err
	}
	if err := sg.graph.compile(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}
