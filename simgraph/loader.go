package simgraph

import (
	"fmt"
	"sort"
)

// TopologyNode is a node as delivered by the topology parser.
type TopologyNode struct {
	ID    NodeID
	Alias string
}

// ChannelPolicy is the routing policy one endpoint advertises for its
// direction of a channel.
type ChannelPolicy struct {
	FeeBaseMSat   MilliSatoshi
	FeeRatePPM    uint64
	TimeLockDelta uint16
	MinHTLC       MilliSatoshi
	MaxHTLC       MilliSatoshi
	Disabled      bool
}

// Channel is an undirected funded link between two nodes as delivered by the
// topology parser. Policy1 governs the Node1->Node2 direction, Policy2 the
// opposite one. A nil policy means the direction was never advertised.
type Channel struct {
	ID       string
	Node1    NodeID
	Node2    NodeID
	Capacity MilliSatoshi
	Policy1  *ChannelPolicy
	Policy2  *ChannelPolicy
}

// Topology is the normalized parser output the graph is built from.
type Topology struct {
	Nodes    []TopologyNode
	Channels []Channel
}

// LoadStats reports what the loader dropped on the way from topology to
// usable graph.
type LoadStats struct {
	// NodesLoaded and ChannelsLoaded count what survived.
	NodesLoaded    int
	ChannelsLoaded int

	// DroppedDisabled counts channels with at least one disabled
	// direction.
	DroppedDisabled int

	// DroppedNoCapacity counts channels with zero capacity.
	DroppedNoCapacity int

	// DroppedMalformed counts channels with a missing or inconsistent
	// policy or an unknown endpoint.
	DroppedMalformed int

	// DroppedOutsideSCC counts channels pruned because an endpoint lies
	// outside the greatest strongly connected component.
	DroppedOutsideSCC int
}

// Dropped returns the total number of channels the loader discarded.
func (s *LoadStats) Dropped() int {
	return s.DroppedDisabled + s.DroppedNoCapacity + s.DroppedMalformed +
		s.DroppedOutsideSCC
}

// BuildOptions tweak graph construction.
type BuildOptions struct {
	// SuccessProb assigns per-node HTLC forwarding success
	// probabilities. Nodes without an entry get 1.
	SuccessProb map[NodeID]float64
}

// Build turns a parsed topology into an immutable simulation graph. Channels
// with a disabled direction, zero capacity or a malformed policy are dropped
// and counted. The surviving graph is reduced to its greatest strongly
// connected component so that every remaining node can, capacity permitting,
// reach every other.
func Build(top *Topology, opts *BuildOptions) (*Graph, *LoadStats, error) {
	stats := &LoadStats{}

	// Index nodes by ID, sorted so that dense indexes are stable across
	// runs regardless of input order.
	seen := make(map[NodeID]struct{}, len(top.Nodes))
	nodes := make([]TopologyNode, 0, len(top.Nodes))
	for _, n := range top.Nodes {
		if n.ID == "" {
			continue
		}
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})

	byID := make(map[NodeID]NodeIndex, len(nodes))
	for i, n := range nodes {
		byID[n.ID] = NodeIndex(i)
	}

	// Vet every channel. Only channels that are usable in both
	// directions survive, anything else would leave a unidirectional
	// stub that routing can never use.
	channels := make([]Channel, 0, len(top.Channels))
	for _, c := range top.Channels {
		switch {
		case c.Policy1 == nil || c.Policy2 == nil || c.ID == "" ||
			c.Node1 == c.Node2:

			stats.DroppedMalformed++
			continue

		case c.Policy1.Disabled || c.Policy2.Disabled:
			stats.DroppedDisabled++
			continue

		case c.Capacity == 0:
			stats.DroppedNoCapacity++
			continue
		}

		if _, ok := byID[c.Node1]; !ok {
			stats.DroppedMalformed++
			continue
		}
		if _, ok := byID[c.Node2]; !ok {
			stats.DroppedMalformed++
			continue
		}
		if !policySane(c.Policy1, c.Capacity) ||
			!policySane(c.Policy2, c.Capacity) {

			stats.DroppedMalformed++
			continue
		}

		channels = append(channels, c)
	}

	// Reduce to the greatest SCC. With only bidirectional channels left
	// this coincides with the largest connected component, but the SCC
	// computation keeps the reduction correct should that ever change.
	inSCC := greatestSCC(len(nodes), channels, byID)
	kept := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if inSCC[byID[c.Node1]] && inSCC[byID[c.Node2]] {
			kept = append(kept, c)
			continue
		}
		stats.DroppedOutsideSCC++
	}
	channels = kept

	log.Infof("Reducing graph with %d nodes to greatest SCC, dropped "+
		"channels: %d disabled, %d without capacity, %d malformed, "+
		"%d outside SCC", len(nodes), stats.DroppedDisabled,
		stats.DroppedNoCapacity, stats.DroppedMalformed,
		stats.DroppedOutsideSCC)

	// Re-index over the surviving node set.
	finalNodes := make([]Node, 0, len(nodes))
	finalByID := make(map[NodeID]NodeIndex)
	for _, n := range nodes {
		if !inSCC[byID[n.ID]] {
			continue
		}
		prob := 1.0
		if opts != nil {
			if p, ok := opts.SuccessProb[n.ID]; ok {
				prob = p
			}
		}
		finalByID[n.ID] = NodeIndex(len(finalNodes))
		finalNodes = append(finalNodes, Node{
			ID:          n.ID,
			Alias:       n.Alias,
			SuccessProb: prob,
		})
	}

	if len(finalNodes) < 2 && len(channels) > 0 {
		return nil, nil, fmt.Errorf("graph reduced to %d nodes",
			len(finalNodes))
	}

	g, err := assemble(finalNodes, finalByID, channels)
	if err != nil {
		return nil, nil, err
	}

	stats.NodesLoaded = g.NodeCount()
	stats.ChannelsLoaded = g.ChannelCount()

	log.Infof("Proceeding with %d nodes and %d channels", g.NodeCount(),
		g.ChannelCount())

	return g, stats, nil
}

// policySane vets a single direction's policy against the channel capacity.
func policySane(p *ChannelPolicy, capacity MilliSatoshi) bool {
	if p.MaxHTLC == 0 || p.MinHTLC > p.MaxHTLC {
		return false
	}

	return p.MaxHTLC <= capacity
}

// assemble lays the surviving nodes and channels out as a CSR style
// adjacency structure with reverse-edge indexes.
func assemble(nodes []Node, byID map[NodeID]NodeIndex,
	channels []Channel) (*Graph, error) {

	edges := make([]DirectedEdge, 0, len(channels)*2)
	for _, c := range channels {
		n1, n2 := byID[c.Node1], byID[c.Node2]
		edges = append(edges, DirectedEdge{
			From:          n1,
			To:            n2,
			ChannelID:     c.ID,
			Capacity:      c.Capacity,
			FeeBaseMSat:   c.Policy1.FeeBaseMSat,
			FeeRatePPM:    c.Policy1.FeeRatePPM,
			TimeLockDelta: c.Policy1.TimeLockDelta,
			MinHTLC:       c.Policy1.MinHTLC,
			MaxHTLC:       c.Policy1.MaxHTLC,
		}, DirectedEdge{
			From:          n2,
			To:            n1,
			ChannelID:     c.ID,
			Capacity:      c.Capacity,
			FeeBaseMSat:   c.Policy2.FeeBaseMSat,
			FeeRatePPM:    c.Policy2.FeeRatePPM,
			TimeLockDelta: c.Policy2.TimeLockDelta,
			MinHTLC:       c.Policy2.MinHTLC,
			MaxHTLC:       c.Policy2.MaxHTLC,
		})
	}

	// Sort edges into per-node adjacency runs. The channel ID breaks
	// ties between parallel channels so the layout is deterministic.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].ChannelID < edges[j].ChannelID
	})

	// Wire up indexes and the reverse-edge mapping. The two directions
	// of a channel share the channel ID and mirrored endpoints.
	type dirKey struct {
		from, to NodeIndex
		channel  string
	}
	byDir := make(map[dirKey]EdgeIndex, len(edges))
	for i := range edges {
		edges[i].Index = EdgeIndex(i)
		byDir[dirKey{edges[i].From, edges[i].To,
			edges[i].ChannelID}] = EdgeIndex(i)
	}
	for i := range edges {
		rev, ok := byDir[dirKey{edges[i].To, edges[i].From,
			edges[i].ChannelID}]
		if !ok {
			return nil, fmt.Errorf("channel %v lacks a reverse "+
				"direction", edges[i].ChannelID)
		}
		edges[i].Reverse = rev
	}

	offsets := make([]int32, len(nodes)+1)
	for i := range edges {
		offsets[edges[i].From+1]++
	}
	for i := 1; i < len(offsets); i++ {
		offsets[i] += offsets[i-1]
	}

	return &Graph{
		nodes:   nodes,
		edges:   edges,
		offsets: offsets,
		byID:    byID,
	}, nil
}

// greatestSCC marks the nodes belonging to the largest strongly connected
// component of the channel graph. Tarjan's algorithm, iterative to keep the
// stack flat on mainnet sized graphs.
func greatestSCC(numNodes int, channels []Channel,
	byID map[NodeID]NodeIndex) []bool {

	adj := make([][]NodeIndex, numNodes)
	for _, c := range channels {
		n1, n2 := byID[c.Node1], byID[c.Node2]
		adj[n1] = append(adj[n1], n2)
		adj[n2] = append(adj[n2], n1)
	}

	const undefined = -1

	index := make([]int32, numNodes)
	lowlink := make([]int32, numNodes)
	onStack := make([]bool, numNodes)
	comp := make([]int32, numNodes)
	for i := range index {
		index[i] = undefined
		comp[i] = undefined
	}

	var (
		next     int32
		stack    []NodeIndex
		numComps int32
		sizes    []int
	)

	type frame struct {
		node NodeIndex
		succ int
	}

	for start := 0; start < numNodes; start++ {
		if index[start] != undefined {
			continue
		}

		frames := []frame{{node: NodeIndex(start)}}
		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.node

			if f.succ == 0 {
				index[v] = next
				lowlink[v] = next
				next++
				stack = append(stack, v)
				onStack[v] = true
			}

			recursed := false
			for f.succ < len(adj[v]) {
				w := adj[v][f.succ]
				f.succ++

				if index[w] == undefined {
					frames = append(frames,
						frame{node: w})
					recursed = true
					break
				}
				if onStack[w] {
					lowlink[v] = min32(lowlink[v],
						index[w])
				}
			}
			if recursed {
				continue
			}

			if lowlink[v] == index[v] {
				size := 0
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp[w] = numComps
					size++
					if w == v {
						break
					}
				}
				sizes = append(sizes, size)
				numComps++
			}

			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				lowlink[parent] = min32(lowlink[parent],
					lowlink[v])
			}
		}
	}

	best := int32(undefined)
	bestSize := 0
	for i, size := range sizes {
		if size >= bestSize {
			bestSize = size
			best = int32(i)
		}
	}

	inSCC := make([]bool, numNodes)
	for i := range comp {
		inSCC[i] = comp[i] == best
	}

	return inSCC
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
