package simgraph

// NodeID is the opaque stable identifier of a node in the input topology,
// typically a hex encoded public key.
type NodeID string

// NodeIndex is the dense index of a node within a Graph. Indexes are only
// meaningful for the graph that produced them.
type NodeIndex int32

// EdgeIndex is the dense index of a directed edge within a Graph.
type EdgeIndex int32

const (
	// NoNode marks the absence of a node, e.g. the predecessor of the
	// source on a path.
	NoNode NodeIndex = -1

	// NoEdge marks the absence of an edge.
	NoEdge EdgeIndex = -1
)

// Node is a vertex of the channel graph. Nodes hold no balance themselves,
// liquidity lives on the directed edges.
type Node struct {
	// ID is the stable identifier from the input topology.
	ID NodeID

	// Alias is the human readable name, if the topology carried one.
	Alias string

	// SuccessProb is the probability that this node forwards an HTLC
	// rather than failing it, derived from historical uptime. The default
	// of 1 models a node that never goes offline.
	SuccessProb float64
}

// DirectedEdge is one direction of a channel together with the routing
// policy its source node advertises for it. The two directions of a channel
// are independent edges that reference each other through Reverse.
type DirectedEdge struct {
	// Index is this edge's position in the graph's edge array.
	Index EdgeIndex

	// From and To are the endpoints in payment flow direction.
	From NodeIndex
	To   NodeIndex

	// Reverse is the edge for the opposite direction of the same
	// channel.
	Reverse EdgeIndex

	// ChannelID is shared between the two directions of a channel.
	ChannelID string

	// Capacity is the total channel capacity. The balances of the two
	// directions sum to this value at all times.
	Capacity MilliSatoshi

	// FeeBaseMSat is the flat fee charged for forwarding over this edge.
	FeeBaseMSat MilliSatoshi

	// FeeRatePPM is the proportional fee in millionths of the forwarded
	// amount.
	FeeRatePPM uint64

	// TimeLockDelta is the CLTV delta this hop requires.
	TimeLockDelta uint16

	// MinHTLC and MaxHTLC bound the amount this edge forwards. Both
	// bounds are inclusive.
	MinHTLC MilliSatoshi
	MaxHTLC MilliSatoshi
}

// Fee returns the fee this edge charges for forwarding amt, i.e.
// base + amt * rate / 1e6.
func (e *DirectedEdge) Fee(amt MilliSatoshi) MilliSatoshi {
	return e.FeeBaseMSat + ProportionalFee(amt, e.FeeRatePPM)
}

// AmountInPolicy returns whether amt lies within the edge's HTLC bounds.
func (e *DirectedEdge) AmountInPolicy(amt MilliSatoshi) bool {
	return amt >= e.MinHTLC && amt <= e.MaxHTLC
}

// Graph is an immutable, dense-indexed directed multigraph of nodes and
// channel edges. Nodes and edges live in contiguous arrays and adjacency is
// expressed as offset ranges into the edge array, which keeps the
// pathfinder's inner loop free of allocations and pointer chasing.
type Graph struct {
	nodes   []Node
	edges   []DirectedEdge
	offsets []int32
	byID    map[NodeID]NodeIndex
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of directed edges in the graph. Every channel
// contributes two.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// ChannelCount returns the number of channels in the graph.
func (g *Graph) ChannelCount() int {
	return len(g.edges) / 2
}

// Node returns the node at the given index.
func (g *Graph) Node(i NodeIndex) *Node {
	return &g.nodes[i]
}

// NodeByID maps a topology identifier back to its dense index.
func (g *Graph) NodeByID(id NodeID) (NodeIndex, bool) {
	i, ok := g.byID[id]
	return i, ok
}

// Edge returns the directed edge at the given index.
func (g *Graph) Edge(e EdgeIndex) *DirectedEdge {
	return &g.edges[e]
}

// ReverseEdge returns the opposite direction of the given edge.
func (g *Graph) ReverseEdge(e EdgeIndex) *DirectedEdge {
	return &g.edges[g.edges[e].Reverse]
}

// OutEdges returns the directed edges leaving the given node. The returned
// slice aliases the graph's internal storage and must not be modified.
func (g *Graph) OutEdges(n NodeIndex) []DirectedEdge {
	return g.edges[g.offsets[n]:g.offsets[n+1]]
}

// NodeIDs returns the identifiers of all nodes in index order. The loader
// sorts nodes by ID, so the result is also sorted and therefore stable
// across runs.
func (g *Graph) NodeIDs() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}

	return ids
}
