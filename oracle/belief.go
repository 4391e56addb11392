package oracle

import (
	"fmt"

	"github.com/lnresearch/paysim/simgraph"
)

// Interval is the sender's belief about a directed edge's balance: the true
// balance lies in [Lo, Hi].
type Interval struct {
	Lo simgraph.MilliSatoshi
	Hi simgraph.MilliSatoshi
}

// BeliefState tracks what a sender has learned about edge balances over the
// course of one payment. Intervals start at [0, capacity] and only narrow.
// The state is owned by a single payment and is not shared across payments;
// the simulator measures per-payment behavior, not longitudinal learning.
type BeliefState struct {
	g *simgraph.Graph

	// intervals holds only the edges the payment has learned something
	// about. An absent entry means the full [0, capacity] range.
	intervals map[simgraph.EdgeIndex]Interval
}

// NewBeliefState returns a fresh all-unknown belief state.
func NewBeliefState(g *simgraph.Graph) *BeliefState {
	return &BeliefState{
		g:         g,
		intervals: make(map[simgraph.EdgeIndex]Interval),
	}
}

// Interval returns the current belief for a directed edge.
func (b *BeliefState) Interval(e simgraph.EdgeIndex) Interval {
	if iv, ok := b.intervals[e]; ok {
		return iv
	}

	return Interval{Lo: 0, Hi: b.g.Edge(e).Capacity}
}

// Feasible reports whether the sender would try to push amt over the edge:
// the amount must respect the edge's HTLC bounds and must not exceed the
// belief's upper bound.
func (b *BeliefState) Feasible(e *simgraph.DirectedEdge,
	amt simgraph.MilliSatoshi) bool {

	if !e.AmountInPolicy(amt) {
		return false
	}

	return amt <= b.Interval(e.Index).Hi
}

// OnSuccess records that amt was successfully forwarded over the edge: at
// least amt was routable in the forward direction, and the reverse direction
// held at most capacity-amt.
func (b *BeliefState) OnSuccess(e *simgraph.DirectedEdge,
	amt simgraph.MilliSatoshi) {

	fwd := b.Interval(e.Index)
	if amt > fwd.Lo {
		fwd.Lo = amt
	}
	b.set(e.Index, fwd)

	rev := b.Interval(e.Reverse)
	if e.Capacity-amt < rev.Hi {
		rev.Hi = e.Capacity - amt
	}
	b.set(e.Reverse, rev)
}

// OnFailure records that forwarding amt over the edge failed for lack of
// balance: the true balance is at most amt-1.
func (b *BeliefState) OnFailure(e *simgraph.DirectedEdge,
	amt simgraph.MilliSatoshi) {

	if amt == 0 {
		return
	}

	iv := b.Interval(e.Index)
	if amt-1 < iv.Hi {
		iv.Hi = amt - 1
	}
	b.set(e.Index, iv)
}

// OnSettle shifts the belief after the balance actually moved: the forward
// direction lost amt, the reverse direction gained it. Without this shift,
// knowledge gained before settlement would contradict the post-settlement
// balances.
func (b *BeliefState) OnSettle(e *simgraph.DirectedEdge,
	amt simgraph.MilliSatoshi) {

	fwd := b.Interval(e.Index)
	if fwd.Lo >= amt {
		fwd.Lo -= amt
	} else {
		fwd.Lo = 0
	}
	if fwd.Hi >= amt {
		fwd.Hi -= amt
	} else {
		fwd.Hi = 0
	}
	b.set(e.Index, fwd)

	rev := b.Interval(e.Reverse)
	rev.Lo += amt
	if rev.Lo > e.Capacity {
		rev.Lo = e.Capacity
	}
	rev.Hi += amt
	if rev.Hi > e.Capacity {
		rev.Hi = e.Capacity
	}
	b.set(e.Reverse, rev)
}

// SuccessProbability derives the chance that amt fits through the edge from
// the current belief interval under a uniform prior over the interval.
func (b *BeliefState) SuccessProbability(e *simgraph.DirectedEdge,
	amt simgraph.MilliSatoshi) float64 {

	iv := b.Interval(e.Index)
	switch {
	case amt <= iv.Lo:
		return 1

	case amt > iv.Hi:
		return 0
	}

	// Uniform prior over [lo, hi]: out of hi+1-lo equally likely
	// balances, hi+1-amt can carry the amount.
	return float64(iv.Hi+1-amt) / float64(iv.Hi+1-iv.Lo)
}

// set stores an interval, guarding the lo <= hi invariant. An inverted
// interval means contradictory observations were recorded, which cannot
// happen while balances and updates are consistent.
func (b *BeliefState) set(e simgraph.EdgeIndex, iv Interval) {
	if iv.Lo > iv.Hi {
		panic(fmt.Sprintf("belief inversion on edge %d: [%v, %v]",
			e, iv.Lo, iv.Hi))
	}
	b.intervals[e] = iv
}
