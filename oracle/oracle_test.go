package oracle

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnresearch/paysim/simgraph"
)

func testGraph(t *testing.T) *simgraph.Graph {
	t.Helper()

	const capacity = 1_000_000
	policy := func() *simgraph.ChannelPolicy {
		return &simgraph.ChannelPolicy{
			TimeLockDelta: 40,
			MinHTLC:       1,
			MaxHTLC:       capacity,
		}
	}

	g, _, err := simgraph.Build(&simgraph.Topology{
		Nodes: []simgraph.TopologyNode{
			{ID: "alice"}, {ID: "bob"}, {ID: "carol"},
		},
		Channels: []simgraph.Channel{
			{
				ID: "ab", Node1: "alice", Node2: "bob",
				Capacity: capacity,
				Policy1:  policy(), Policy2: policy(),
			},
			{
				ID: "bc", Node1: "bob", Node2: "carol",
				Capacity: capacity,
				Policy1:  policy(), Policy2: policy(),
			},
		},
	}, nil)
	require.NoError(t, err)

	return g
}

// TestLiquiditySplit asserts the seeded uniform split keeps the channel
// invariant and is reproducible for a fixed seed.
func TestLiquiditySplit(t *testing.T) {
	t.Parallel()

	g := testGraph(t)

	l1 := NewLiquidity(g, rand.New(rand.NewPCG(19, 0)))
	require.NoError(t, l1.CheckInvariants())

	l2 := NewLiquidity(g, rand.New(rand.NewPCG(19, 0)))
	for i := 0; i < g.EdgeCount(); i++ {
		e := simgraph.EdgeIndex(i)
		require.Equal(t, l1.Actual(e), l2.Actual(e))
	}

	// A different seed must produce a different split somewhere; with
	// two channels of a million msat a collision is negligible.
	l3 := NewLiquidity(g, rand.New(rand.NewPCG(20, 0)))
	same := true
	for i := 0; i < g.EdgeCount(); i++ {
		e := simgraph.EdgeIndex(i)
		if l1.Actual(e) != l3.Actual(e) {
			same = false
		}
	}
	require.False(t, same)
}

// TestSettleMovesBalance asserts settlement shifts balance to the reverse
// direction and preserves the capacity invariant.
func TestSettleMovesBalance(t *testing.T) {
	t.Parallel()

	g := testGraph(t)
	l := NewLiquidity(g, rand.New(rand.NewPCG(19, 0)))

	e := g.Edge(0)
	before := l.Actual(e.Index)
	beforeRev := l.Actual(e.Reverse)
	amt := before / 2

	l.Settle(e.Index, amt)

	require.Equal(t, before-amt, l.Actual(e.Index))
	require.Equal(t, beforeRev+amt, l.Actual(e.Reverse))
	require.NoError(t, l.CheckInvariants())
}

// TestSettleOverdraftPanics asserts that moving more than the balance is
// flagged as a modeling bug.
func TestSettleOverdraftPanics(t *testing.T) {
	t.Parallel()

	g := testGraph(t)
	l := NewLiquidity(g, rand.New(rand.NewPCG(19, 0)))

	e := g.Edge(0)
	require.Panics(t, func() {
		l.Settle(e.Index, l.Actual(e.Index)+1)
	})
}

// TestSnapshotIsolation asserts snapshots do not observe each other's
// settlements.
func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()

	g := testGraph(t)
	l := NewLiquidity(g, rand.New(rand.NewPCG(19, 0)))

	snap := l.Snapshot()
	e := g.Edge(0)
	amt := snap.Actual(e.Index)
	if amt == 0 {
		t.Skip("zero balance drawn, nothing to settle")
	}
	snap.Settle(e.Index, amt)

	require.Equal(t, amt, l.Actual(e.Index))
	require.Zero(t, snap.Actual(e.Index))
}

// TestBeliefUpdates walks the belief interval through success, failure and
// settlement and checks the monotonic narrowing rules.
func TestBeliefUpdates(t *testing.T) {
	t.Parallel()

	g := testGraph(t)
	b := NewBeliefState(g)
	e := g.Edge(0)

	// Initially the full range.
	iv := b.Interval(e.Index)
	require.Equal(t, Interval{Lo: 0, Hi: e.Capacity}, iv)

	// A success lifts the forward floor and caps the reverse ceiling.
	b.OnSuccess(e, 300_000)
	require.Equal(t, simgraph.MilliSatoshi(300_000),
		b.Interval(e.Index).Lo)
	require.Equal(t, e.Capacity-300_000, b.Interval(e.Reverse).Hi)

	// A failure at a higher amount caps the forward ceiling just below
	// the attempted amount.
	b.OnFailure(e, 800_000)
	require.Equal(t, simgraph.MilliSatoshi(799_999),
		b.Interval(e.Index).Hi)

	// Feasibility respects the learned ceiling.
	require.True(t, b.Feasible(e, 799_999))
	require.False(t, b.Feasible(e, 800_000))

	// Settlement shifts both directions by the moved amount.
	b.OnSettle(e, 300_000)
	require.Equal(t, Interval{Lo: 0, Hi: 499_999}, b.Interval(e.Index))
	require.Equal(t, simgraph.MilliSatoshi(300_000),
		b.Interval(e.Reverse).Lo)
}

// TestBeliefInversionPanics asserts contradictory updates are caught.
func TestBeliefInversionPanics(t *testing.T) {
	t.Parallel()

	g := testGraph(t)
	b := NewBeliefState(g)
	e := g.Edge(0)

	b.OnSuccess(e, 500_000)
	require.Panics(t, func() {
		b.OnFailure(e, 100_000)
	})
}

// TestSuccessProbability checks the uniform-prior probability including the
// degenerate interval cases.
func TestSuccessProbability(t *testing.T) {
	t.Parallel()

	g := testGraph(t)
	b := NewBeliefState(g)
	e := g.Edge(0)

	// Fresh interval [0, cap]: probability decreases linearly in the
	// amount.
	p := b.SuccessProbability(e, 0)
	require.Equal(t, 1.0, p)

	p = b.SuccessProbability(e, e.Capacity)
	require.InDelta(t, 1.0/float64(e.Capacity+1), p, 1e-12)

	// Narrow the interval to [250k, 750k-1].
	b.OnSuccess(e, 250_000)
	b.OnFailure(e, 750_000)

	require.Equal(t, 1.0, b.SuccessProbability(e, 250_000))
	require.Equal(t, 0.0, b.SuccessProbability(e, 750_000))

	mid := b.SuccessProbability(e, 500_000)
	require.Greater(t, mid, 0.0)
	require.Less(t, mid, 1.0)

	// Degenerate interval: exact knowledge yields 0 or 1.
	b2 := NewBeliefState(g)
	b2.OnSuccess(e, 400_000)
	b2.OnFailure(e, 400_001)
	require.Equal(t, 1.0, b2.SuccessProbability(e, 400_000))
	require.Equal(t, 0.0, b2.SuccessProbability(e, 400_001))
}
