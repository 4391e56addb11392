package routing

import (
	"fmt"
	"strings"

	"github.com/lnresearch/paysim/simgraph"
)

// Hop represents the forwarding details at a particular position within the
// final route.
type Hop struct {
	// Edge is the directed channel edge this hop travels along.
	Edge simgraph.EdgeIndex

	// AmtToForward is the amount that is forwarded over this hop's edge,
	// i.e. the amount that arrives at the edge's far endpoint. It equals
	// the payment amount plus the fees of all downstream hops.
	AmtToForward simgraph.MilliSatoshi

	// Fee is the fee the forwarding node charges for this hop. The
	// source charges itself nothing, so the first hop's fee is always
	// zero.
	Fee simgraph.MilliSatoshi

	// TimeLockDelta is the CLTV delta this hop contributes.
	TimeLockDelta uint16
}

// Route is a path through the channel graph that runs over one or more
// channels in succession. A route is only constructed if every hop can, as
// far as the sender's beliefs go, carry its forwarded amount.
type Route struct {
	// Hops lists the edges in payment flow order, source first.
	Hops []Hop

	// Source and Target are the route's endpoints.
	Source simgraph.NodeIndex
	Target simgraph.NodeIndex

	// TotalAmount is the amount debited at the source: the destination
	// amount plus TotalFees.
	TotalAmount simgraph.MilliSatoshi

	// TotalFees is the sum of the fees paid at each hop.
	TotalFees simgraph.MilliSatoshi

	// TotalTimeLock is the cumulative time lock across the entire route.
	TotalTimeLock uint32

	// SuccessProb is the estimated probability, under the sender's
	// beliefs at construction time, that every hop can carry its amount.
	SuccessProb float64
}

// ReceiverAmount returns the amount delivered to the target.
func (r *Route) ReceiverAmount() simgraph.MilliSatoshi {
	return r.Hops[len(r.Hops)-1].AmtToForward
}

// NodePositions returns the nodes on the route in order, source first,
// target last.
func (r *Route) NodePositions(g *simgraph.Graph) []simgraph.NodeIndex {
	nodes := make([]simgraph.NodeIndex, 0, len(r.Hops)+1)
	nodes = append(nodes, r.Source)
	for _, hop := range r.Hops {
		nodes = append(nodes, g.Edge(hop.Edge).To)
	}

	return nodes
}

// String renders the route as a channel chain for logging.
func (r *Route) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", r.Source)
	for _, hop := range r.Hops {
		fmt.Fprintf(&b, "-[%v]->", hop.Edge)
	}
	fmt.Fprintf(&b, "%d", r.Target)

	return b.String()
}

// newRoute assembles a route from a sequence of edges running from source to
// target, computing the per-hop amounts right to left: the amount forwarded
// over a hop is the destination amount plus the fees of all hops after it.
func newRoute(g *simgraph.Graph, edges []simgraph.EdgeIndex,
	amt simgraph.MilliSatoshi) (*Route, error) {

	if len(edges) == 0 {
		return nil, ErrNoPathFound
	}
	if len(edges) > HopLimit {
		return nil, ErrMaxHopsExceeded
	}

	route := &Route{
		Hops:        make([]Hop, len(edges)),
		Source:      g.Edge(edges[0]).From,
		Target:      g.Edge(edges[len(edges)-1]).To,
		SuccessProb: 1,
	}

	// The running amount starts at what the target is owed and grows by
	// each hop's fee as we walk towards the source.
	runningAmt := amt
	for i := len(edges) - 1; i >= 0; i-- {
		edge := g.Edge(edges[i])

		hop := Hop{
			Edge:          edges[i],
			AmtToForward:  runningAmt,
			TimeLockDelta: edge.TimeLockDelta,
		}

		// The source doesn't charge itself a fee for its own
		// outgoing channel.
		if i != 0 {
			hop.Fee = edge.Fee(runningAmt)
			runningAmt += hop.Fee
			route.TotalFees += hop.Fee
		}

		route.TotalTimeLock += uint32(edge.TimeLockDelta)
		route.Hops[i] = hop
	}

	route.TotalAmount = runningAmt

	return route, nil
}
