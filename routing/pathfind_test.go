package routing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnresearch/paysim/oracle"
	"github.com/lnresearch/paysim/simgraph"
)

// testChannel describes one channel of a test topology in compact form.
type testChannel struct {
	node1, node2 string
	capacity     simgraph.MilliSatoshi
	baseFee      simgraph.MilliSatoshi
	feeRate      uint64
	timeLock     uint16
	minHTLC      simgraph.MilliSatoshi
}

// buildTestGraph assembles a graph where both directions of every channel
// share the same policy.
func buildTestGraph(t *testing.T, channels []testChannel) *simgraph.Graph {
	t.Helper()

	nodes := make(map[string]struct{})
	top := &simgraph.Topology{}
	for i, c := range channels {
		for _, id := range []string{c.node1, c.node2} {
			if _, ok := nodes[id]; ok {
				continue
			}
			nodes[id] = struct{}{}
			top.Nodes = append(top.Nodes, simgraph.TopologyNode{
				ID: simgraph.NodeID(id),
			})
		}

		policy := func() *simgraph.ChannelPolicy {
			return &simgraph.ChannelPolicy{
				FeeBaseMSat:   c.baseFee,
				FeeRatePPM:    c.feeRate,
				TimeLockDelta: c.timeLock,
				MinHTLC:       c.minHTLC,
				MaxHTLC:       c.capacity,
			}
		}
		top.Channels = append(top.Channels, simgraph.Channel{
			ID:       fmt.Sprintf("%s-%s-%d", c.node1, c.node2, i),
			Node1:    simgraph.NodeID(c.node1),
			Node2:    simgraph.NodeID(c.node2),
			Capacity: c.capacity,
			Policy1:  policy(),
			Policy2:  policy(),
		})
	}

	g, _, err := simgraph.Build(top, nil)
	require.NoError(t, err)

	return g
}

func nodeIdx(t *testing.T, g *simgraph.Graph, id string) simgraph.NodeIndex {
	t.Helper()

	n, ok := g.NodeByID(simgraph.NodeID(id))
	require.True(t, ok, "node %v not in graph", id)

	return n
}

// pathIDs renders a route as the list of traversed node IDs for easy
// assertions.
func pathIDs(g *simgraph.Graph, route *Route) []string {
	var ids []string
	for _, n := range route.NodePositions(g) {
		ids = append(ids, string(g.Node(n).ID))
	}

	return ids
}

// TestFindPathTriangle checks the basic two-hop route on a zero-fee
// triangle.
func TestFindPathTriangle(t *testing.T) {
	t.Parallel()

	g := buildTestGraph(t, []testChannel{
		{node1: "a", node2: "b", capacity: 1_000_000, timeLock: 40},
		{node1: "b", node2: "c", capacity: 1_000_000, timeLock: 40},
	})
	beliefs := oracle.NewBeliefState(g)

	route, err := findPath(
		g, beliefs, nodeIdx(t, g, "a"), nodeIdx(t, g, "c"), 500_000,
		MetricMinFee, nil, DefaultConstraints(),
	)
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b", "c"}, pathIDs(g, route))
	require.Equal(t, simgraph.MilliSatoshi(0), route.TotalFees)
	require.Equal(t, simgraph.MilliSatoshi(500_000), route.TotalAmount)
	require.Equal(t, simgraph.MilliSatoshi(500_000),
		route.ReceiverAmount())
}

// TestFindPathMinFeeComparison checks that the min-fee metric picks the
// cheaper of two disjoint two-hop paths and prices it correctly.
func TestFindPathMinFeeComparison(t *testing.T) {
	t.Parallel()

	const amt = 1_000_000

	g := buildTestGraph(t, []testChannel{
		{
			node1: "a", node2: "x", capacity: 10_000_000,
			timeLock: 40,
		},
		{
			node1: "x", node2: "d", capacity: 10_000_000,
			feeRate: 1000, timeLock: 40,
		},
		{
			node1: "a", node2: "y", capacity: 10_000_000,
			timeLock: 40,
		},
		{
			node1: "y", node2: "d", capacity: 10_000_000,
			feeRate: 10, timeLock: 40,
		},
	})
	beliefs := oracle.NewBeliefState(g)

	route, err := findPath(
		g, beliefs, nodeIdx(t, g, "a"), nodeIdx(t, g, "d"), amt,
		MetricMinFee, nil, DefaultConstraints(),
	)
	require.NoError(t, err)

	require.Equal(t, []string{"a", "y", "d"}, pathIDs(g, route))

	// Fee is charged by y for the y->d hop: 10 ppm of the amount.
	require.Equal(t, simgraph.MilliSatoshi(10), route.TotalFees)
	require.Equal(t, simgraph.MilliSatoshi(amt+10), route.TotalAmount)
}

// TestFindPathFeeAccumulation checks property: the amount debited at the
// source equals the destination amount plus every intermediary's fee
// computed on the amount it forwards, accumulated right to left.
func TestFindPathFeeAccumulation(t *testing.T) {
	t.Parallel()

	const amt = 1_000_000

	g := buildTestGraph(t, []testChannel{
		{
			node1: "a", node2: "b", capacity: 100_000_000,
			baseFee: 700, feeRate: 300, timeLock: 40,
		},
		{
			node1: "b", node2: "c", capacity: 100_000_000,
			baseFee: 1000, feeRate: 100, timeLock: 50,
		},
		{
			node1: "c", node2: "d", capacity: 100_000_000,
			baseFee: 2000, feeRate: 500, timeLock: 60,
		},
	})
	beliefs := oracle.NewBeliefState(g)

	route, err := findPath(
		g, beliefs, nodeIdx(t, g, "a"), nodeIdx(t, g, "d"), amt,
		MetricMinFee, nil, DefaultConstraints(),
	)
	require.NoError(t, err)
	require.Len(t, route.Hops, 3)

	// Right-to-left: c charges on the final amount, b charges on the
	// amount c must receive. a charges nothing.
	feeC := simgraph.MilliSatoshi(2000 + amt*500/1_000_000)
	amtAtC := simgraph.MilliSatoshi(amt) + feeC
	feeB := 1000 + amtAtC*100/1_000_000
	amtAtB := amtAtC + feeB

	require.Equal(t, simgraph.MilliSatoshi(amt),
		route.Hops[2].AmtToForward)
	require.Equal(t, feeC, route.Hops[2].Fee)
	require.Equal(t, amtAtC, route.Hops[1].AmtToForward)
	require.Equal(t, feeB, route.Hops[1].Fee)
	require.Equal(t, amtAtB, route.Hops[0].AmtToForward)
	require.Equal(t, simgraph.MilliSatoshi(0), route.Hops[0].Fee)

	require.Equal(t, feeB+feeC, route.TotalFees)
	require.Equal(t, amtAtB, route.TotalAmount)
	require.Equal(t, uint32(40+50+60), route.TotalTimeLock)
}

// TestFindPathCLTVLimit checks that a route within the hop limit but beyond
// the time lock budget is rejected with the dedicated error.
func TestFindPathCLTVLimit(t *testing.T) {
	t.Parallel()

	// A chain of 30 channels with delta 40 sums to 1200 > 1008.
	var channels []testChannel
	for i := 0; i < 30; i++ {
		channels = append(channels, testChannel{
			node1:    fmt.Sprintf("n%02d", i),
			node2:    fmt.Sprintf("n%02d", i+1),
			capacity: 10_000_000,
			timeLock: 40,
		})
	}
	g := buildTestGraph(t, channels)
	beliefs := oracle.NewBeliefState(g)

	_, err := findPath(
		g, beliefs, nodeIdx(t, g, "n00"), nodeIdx(t, g, "n30"),
		100_000, MetricMinFee, nil,
		SearchConstraints{CLTVLimit: 1008, HopLimit: 40},
	)
	require.ErrorIs(t, err, ErrCLTVExceeded)
}

// TestFindPathHopLimit checks that paths longer than the hop cap are not
// considered.
func TestFindPathHopLimit(t *testing.T) {
	t.Parallel()

	var channels []testChannel
	for i := 0; i < 25; i++ {
		channels = append(channels, testChannel{
			node1:    fmt.Sprintf("n%02d", i),
			node2:    fmt.Sprintf("n%02d", i+1),
			capacity: 10_000_000,
			timeLock: 1,
		})
	}
	g := buildTestGraph(t, channels)
	beliefs := oracle.NewBeliefState(g)

	_, err := findPath(
		g, beliefs, nodeIdx(t, g, "n00"), nodeIdx(t, g, "n25"),
		100_000, MetricMinFee, nil, DefaultConstraints(),
	)
	require.ErrorIs(t, err, ErrNoPathFound)
}

// TestFindPathMaxProb checks that the max-prob metric prefers the path with
// more headroom when fees are equal.
func TestFindPathMaxProb(t *testing.T) {
	t.Parallel()

	const amt = 900_000

	g := buildTestGraph(t, []testChannel{
		// Tight path: barely fits the amount.
		{node1: "a", node2: "x", capacity: 1_000_000, timeLock: 40},
		{node1: "x", node2: "d", capacity: 1_000_000, timeLock: 40},
		// Roomy path: lots of headroom.
		{node1: "a", node2: "y", capacity: 100_000_000, timeLock: 40},
		{node1: "y", node2: "d", capacity: 100_000_000, timeLock: 40},
	})
	beliefs := oracle.NewBeliefState(g)

	route, err := findPath(
		g, beliefs, nodeIdx(t, g, "a"), nodeIdx(t, g, "d"), amt,
		MetricMaxProb, nil, DefaultConstraints(),
	)
	require.NoError(t, err)

	require.Equal(t, []string{"a", "y", "d"}, pathIDs(g, route))
	require.Greater(t, route.SuccessProb, 0.9)

	// The min-fee metric is indifferent to headroom; with zero fees it
	// finds some two-hop path, possibly the tight one.
	route, err = findPath(
		g, beliefs, nodeIdx(t, g, "a"), nodeIdx(t, g, "d"), amt,
		MetricMinFee, nil, DefaultConstraints(),
	)
	require.NoError(t, err)
	require.Len(t, route.Hops, 2)
}

// TestFindPathRespectsBeliefs checks that a learned ceiling reroutes the
// search.
func TestFindPathRespectsBeliefs(t *testing.T) {
	t.Parallel()

	const amt = 500_000

	g := buildTestGraph(t, []testChannel{
		{node1: "a", node2: "b", capacity: 1_000_000, timeLock: 40},
		{node1: "b", node2: "d", capacity: 1_000_000, timeLock: 40},
		{
			node1: "a", node2: "c", capacity: 1_000_000,
			baseFee: 100, timeLock: 40,
		},
		{
			node1: "c", node2: "d", capacity: 1_000_000,
			baseFee: 100, timeLock: 40,
		},
	})
	beliefs := oracle.NewBeliefState(g)

	src, dst := nodeIdx(t, g, "a"), nodeIdx(t, g, "d")

	// The free path through b wins at first.
	route, err := findPath(
		g, beliefs, src, dst, amt, MetricMinFee, nil,
		DefaultConstraints(),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "d"}, pathIDs(g, route))

	// Learning that b->d cannot carry the amount forces the paid
	// detour.
	var bd *simgraph.DirectedEdge
	for _, e := range g.OutEdges(nodeIdx(t, g, "b")) {
		if e.To == dst {
			bd = g.Edge(e.Index)
		}
	}
	require.NotNil(t, bd)
	beliefs.OnFailure(bd, amt)

	route, err = findPath(
		g, beliefs, src, dst, amt, MetricMinFee, nil,
		DefaultConstraints(),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "d"}, pathIDs(g, route))
}

// TestFindPathMinHTLC checks that edges whose policy floor exceeds the
// amount are unusable.
func TestFindPathMinHTLC(t *testing.T) {
	t.Parallel()

	g := buildTestGraph(t, []testChannel{
		{
			node1: "a", node2: "b", capacity: 1_000_000,
			timeLock: 40, minHTLC: 10_000,
		},
		{
			node1: "b", node2: "c", capacity: 1_000_000,
			timeLock: 40, minHTLC: 10_000,
		},
	})
	beliefs := oracle.NewBeliefState(g)

	_, err := findPath(
		g, beliefs, nodeIdx(t, g, "a"), nodeIdx(t, g, "c"), 5_000,
		MetricMinFee, nil, DefaultConstraints(),
	)
	require.ErrorIs(t, err, ErrNoPathFound)
}

// TestSessionExcludeAndBudget checks candidate resumption: an excluded edge
// steers the next query to the alternative, and the budget caps the total
// number of queries.
func TestSessionExcludeAndBudget(t *testing.T) {
	t.Parallel()

	const amt = 500_000

	g := buildTestGraph(t, []testChannel{
		{node1: "a", node2: "b", capacity: 1_000_000, timeLock: 40},
		{node1: "b", node2: "d", capacity: 1_000_000, timeLock: 40},
		{
			node1: "a", node2: "c", capacity: 1_000_000,
			baseFee: 100, timeLock: 40,
		},
		{
			node1: "c", node2: "d", capacity: 1_000_000,
			baseFee: 100, timeLock: 40,
		},
	})
	beliefs := oracle.NewBeliefState(g)

	session := NewSession(
		g, beliefs, nodeIdx(t, g, "a"), nodeIdx(t, g, "d"),
		SessionConfig{Metric: MetricMinFee, MaxCandidates: 3},
	)

	route, err := session.RequestRoute(amt)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "d"}, pathIDs(g, route))

	// Excluding the first route's middle edge yields the detour.
	session.ExcludeEdge(route.Hops[1].Edge)

	route, err = session.RequestRoute(amt)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "d"}, pathIDs(g, route))

	_, err = session.RequestRoute(amt)
	require.NoError(t, err)

	_, err = session.RequestRoute(amt)
	require.ErrorIs(t, err, ErrCandidateBudgetExhausted)
}

// TestFindPathSameNode checks the degenerate query.
func TestFindPathSameNode(t *testing.T) {
	t.Parallel()

	g := buildTestGraph(t, []testChannel{
		{node1: "a", node2: "b", capacity: 1_000_000, timeLock: 40},
		{node1: "b", node2: "c", capacity: 1_000_000, timeLock: 40},
	})
	beliefs := oracle.NewBeliefState(g)

	a := nodeIdx(t, g, "a")
	_, err := findPath(
		g, beliefs, a, a, 1000, MetricMinFee, nil,
		DefaultConstraints(),
	)
	require.ErrorIs(t, err, ErrSameNode)
}
