// Package oracle owns the ground truth of the simulated network: the actual
// balance of every channel direction, and the sender-side belief intervals
// that narrow as attempt outcomes reveal where liquidity sits. Actual
// balances are only ever consulted by the hop simulator; routing sees
// beliefs.
package oracle

import (
	"fmt"
	"math/rand/v2"

	"github.com/lnresearch/paysim/simgraph"
)

// Liquidity holds the actual balance of every directed edge. The two
// directions of a channel always sum to its capacity.
type Liquidity struct {
	g        *simgraph.Graph
	balances []simgraph.MilliSatoshi
}

// NewLiquidity draws an initial balance for every channel by splitting its
// capacity uniformly between the two directions, using the provided seeded
// generator.
func NewLiquidity(g *simgraph.Graph, rng *rand.Rand) *Liquidity {
	l := &Liquidity{
		g:        g,
		balances: make([]simgraph.MilliSatoshi, g.EdgeCount()),
	}

	// Visit each channel once via its lower-indexed direction.
	for i := 0; i < g.EdgeCount(); i++ {
		e := g.Edge(simgraph.EdgeIndex(i))
		if e.Index > e.Reverse {
			continue
		}

		balance := simgraph.MilliSatoshi(
			rng.Uint64N(uint64(e.Capacity) + 1),
		)
		l.balances[e.Index] = balance
		l.balances[e.Reverse] = e.Capacity - balance
	}

	log.Debugf("Assigned balances to %d channels", g.ChannelCount())

	return l
}

// Snapshot returns an independent copy of the balance map. Each payment
// operates on its own snapshot so payments can be evaluated in parallel.
func (l *Liquidity) Snapshot() *Liquidity {
	balances := make([]simgraph.MilliSatoshi, len(l.balances))
	copy(balances, l.balances)

	return &Liquidity{g: l.g, balances: balances}
}

// Actual returns the ground-truth balance of a directed edge.
func (l *Liquidity) Actual(e simgraph.EdgeIndex) simgraph.MilliSatoshi {
	return l.balances[e]
}

// Settle moves amt from the given direction to its reverse, modeling a
// forwarded HTLC that was settled. The caller must have verified the balance
// beforehand; moving more than is available indicates a bug in the attempt
// logic and panics.
func (l *Liquidity) Settle(e simgraph.EdgeIndex, amt simgraph.MilliSatoshi) {
	if amt > l.balances[e] {
		panic(fmt.Sprintf("settle of %v exceeds balance %v on edge "+
			"%d", amt, l.balances[e], e))
	}

	rev := l.g.Edge(e).Reverse
	l.balances[e] -= amt
	l.balances[rev] += amt
}

// SetChannelBalance pins the balance of a directed edge, assigning the
// remainder of the channel capacity to the reverse direction. Used to set
// up reproducible scenarios; the simulation itself only ever moves balance
// through Settle.
func (l *Liquidity) SetChannelBalance(e simgraph.EdgeIndex,
	balance simgraph.MilliSatoshi) {

	edge := l.g.Edge(e)
	if balance > edge.Capacity {
		panic(fmt.Sprintf("balance %v exceeds capacity %v of edge "+
			"%d", balance, edge.Capacity, e))
	}

	l.balances[e] = balance
	l.balances[edge.Reverse] = edge.Capacity - balance
}

// MaxOutboundBalance returns the largest balance on any of the node's
// outgoing edges.
func (l *Liquidity) MaxOutboundBalance(
	n simgraph.NodeIndex) simgraph.MilliSatoshi {

	var best simgraph.MilliSatoshi
	for _, e := range l.g.OutEdges(n) {
		if l.balances[e.Index] > best {
			best = l.balances[e.Index]
		}
	}

	return best
}

// TotalOutboundBalance returns the sum of balances on the node's outgoing
// edges, the upper bound on what it can send via multiple paths.
func (l *Liquidity) TotalOutboundBalance(
	n simgraph.NodeIndex) simgraph.MilliSatoshi {

	var total simgraph.MilliSatoshi
	for _, e := range l.g.OutEdges(n) {
		total += l.balances[e.Index]
	}

	return total
}

// CheckInvariants verifies that every channel's directional balances still
// sum to its capacity. Simulation code calls this from tests; a violation
// during a run indicates a modeling bug.
func (l *Liquidity) CheckInvariants() error {
	for i := 0; i < l.g.EdgeCount(); i++ {
		e := l.g.Edge(simgraph.EdgeIndex(i))
		if e.Index > e.Reverse {
			continue
		}
		sum := l.balances[e.Index] + l.balances[e.Reverse]
		if sum != e.Capacity {
			return fmt.Errorf("channel %v balances sum to %v, "+
				"capacity is %v", e.ChannelID, sum, e.Capacity)
		}
	}

	return nil
}
