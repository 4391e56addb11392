package routing

import (
	"container/heap"
	"math"

	"github.com/lnresearch/paysim/oracle"
	"github.com/lnresearch/paysim/simgraph"
)

const (
	// HopLimit is the maximum number of hops permissible in a route. The
	// value mirrors the onion packet limit of the real network.
	HopLimit = 20

	// DefaultCLTVLimit is the maximum total time lock, in blocks, a
	// sender accepts across an entire route.
	DefaultCLTVLimit = 1008

	// riskFactorBillionths is the virtual cost per block of time lock,
	// in billionths of the forwarded amount. It nudges the min-fee
	// metric away from paths that lock funds up for long.
	riskFactorBillionths = 15

	// infinity is used as a starting distance in the shortest path
	// search.
	infinity = math.MaxFloat64
)

// SearchConstraints bound the paths the search will consider.
type SearchConstraints struct {
	// CLTVLimit is the maximum total time lock across a route.
	CLTVLimit uint32

	// HopLimit is the maximum number of edges in a route.
	HopLimit int
}

// DefaultConstraints returns the stock limits.
func DefaultConstraints() SearchConstraints {
	return SearchConstraints{
		CLTVLimit: DefaultCLTVLimit,
		HopLimit:  HopLimit,
	}
}

// timeLockPenalty computes the virtual cost of locking amt for the given
// number of blocks.
func timeLockPenalty(amt simgraph.MilliSatoshi, delta uint16) float64 {
	return float64(amt) * float64(delta) * riskFactorBillionths / 1e9
}

// findPath attempts to find a path from source to target that's able to
// carry amt under the sender's current beliefs.
//
// The search runs backwards, from the target towards the source, so that at
// every relaxation the amount a candidate edge must carry is already known:
// it is the destination amount plus the fees of the partial path built so
// far. Edge weights depend on that amount, which makes the forward
// formulation unusable.
//
// Edges in the excluded set are skipped entirely; the session layer uses
// this to steer repeated queries away from hops that already failed.
func findPath(g *simgraph.Graph, beliefs *oracle.BeliefState, source,
	target simgraph.NodeIndex, amt simgraph.MilliSatoshi, metric Metric,
	excluded map[simgraph.EdgeIndex]struct{},
	constraints SearchConstraints) (*Route, error) {

	if source == target {
		return nil, ErrSameNode
	}

	numNodes := g.NodeCount()

	// distances tracks, per node, the best known partial path from that
	// node to the target.
	distances := make([]nodeWithDist, numNodes)
	for i := range distances {
		distances[i] = nodeWithDist{
			node: simgraph.NodeIndex(i),
			dist: infinity,
		}
	}

	// prevEdge records, per node, the first edge of that partial path.
	prevEdge := make([]simgraph.EdgeIndex, numNodes)
	for i := range prevEdge {
		prevEdge[i] = simgraph.NoEdge
	}

	visited := make([]bool, numNodes)

	distances[target] = nodeWithDist{
		node:            target,
		dist:            0,
		amountToReceive: amt,
	}

	frontier := newDistanceHeap(numNodes)
	heap.Push(&frontier, distances[target])

	// cltvPruned notes whether a path was dropped solely for exceeding
	// the time lock budget, to tell a CLTV failure apart from a
	// disconnected pair.
	cltvPruned := false

	for frontier.Len() > 0 {
		best := heap.Pop(&frontier).(nodeWithDist)

		// The first pop of the source yields the optimal path.
		if best.node == source {
			return assembleRoute(
				g, beliefs, prevEdge, source, target, amt,
			)
		}

		if visited[best.node] || best.dist > distances[best.node].dist {
			continue
		}
		visited[best.node] = true

		pivot := &distances[best.node]

		// Examine all edges arriving at the pivot. The graph only
		// stores outgoing adjacency, but every channel direction
		// carries an index to its reverse, so the incoming edges are
		// exactly the reverses of the outgoing ones.
		for _, out := range g.OutEdges(best.node) {
			edge := g.Edge(out.Reverse)
			from := edge.From

			// The target must not reappear as an intermediary,
			// and settled nodes already carry their best path.
			if from == target || visited[from] {
				continue
			}
			if _, ok := excluded[edge.Index]; ok {
				continue
			}

			// The amount this edge must carry is whatever has to
			// arrive at the pivot.
			amtToFwd := pivot.amountToReceive
			if !beliefs.Feasible(edge, amtToFwd) {
				continue
			}

			// The source pays no fee to itself on its own
			// channel and its own liquidity is not scored.
			var fee simgraph.MilliSatoshi
			if from != source {
				fee = edge.Fee(amtToFwd)
			}

			totalCltv := pivot.incomingCltv +
				uint32(edge.TimeLockDelta)
			if totalCltv > constraints.CLTVLimit {
				cltvPruned = true
				continue
			}

			hopCount := pivot.hopCount + 1
			if hopCount > constraints.HopLimit {
				continue
			}

			var edgeCost float64
			switch {
			case from == source:
				edgeCost = 0

			case metric == MetricMinFee:
				edgeCost = float64(fee) + timeLockPenalty(
					amtToFwd, edge.TimeLockDelta,
				)

			default:
				prob := beliefs.SuccessProbability(
					edge, amtToFwd,
				)
				if prob == 0 {
					continue
				}
				edgeCost = -math.Log(prob)
			}

			candidate := nodeWithDist{
				node:            from,
				dist:            pivot.dist + edgeCost,
				amountToReceive: amtToFwd + fee,
				fee:             pivot.fee + fee,
				incomingCltv:    totalCltv,
				hopCount:        hopCount,
			}

			incumbentNext := simgraph.NodeID("")
			if prev := prevEdge[from]; prev != simgraph.NoEdge {
				incumbentNext = g.Node(g.Edge(prev).To).ID
			}
			better := betterThan(
				metric, candidate, distances[from],
				g.Node(best.node).ID, incumbentNext,
			)
			if !better {
				continue
			}

			distances[from] = candidate
			prevEdge[from] = edge.Index
			frontier.PushOrFix(candidate)
		}
	}

	if cltvPruned {
		return nil, ErrCLTVExceeded
	}

	return nil, ErrNoPathFound
}

// betterThan decides whether a candidate partial path replaces the incumbent
// for the same node, applying the metric's tie breakers for equal cost:
// min-fee prefers the shorter time lock and then the smaller ID of the next
// hop node; max-prob prefers the lower fee and then the shorter path. The
// tie breakers keep the search deterministic under reordered input.
func betterThan(metric Metric, candidate, incumbent nodeWithDist,
	candidateNext, incumbentNext simgraph.NodeID) bool {

	if candidate.dist != incumbent.dist {
		return candidate.dist < incumbent.dist
	}

	switch metric {
	case MetricMinFee:
		if candidate.incomingCltv != incumbent.incomingCltv {
			return candidate.incomingCltv < incumbent.incomingCltv
		}
		if incumbentNext != "" && candidateNext != incumbentNext {
			return candidateNext < incumbentNext
		}

	default:
		if candidate.fee != incumbent.fee {
			return candidate.fee < incumbent.fee
		}
		if candidate.hopCount != incumbent.hopCount {
			return candidate.hopCount < incumbent.hopCount
		}
	}

	return false
}

// assembleRoute unravels the prevEdge chain from source to target and
// computes the final hop amounts.
func assembleRoute(g *simgraph.Graph, beliefs *oracle.BeliefState,
	prevEdge []simgraph.EdgeIndex, source, target simgraph.NodeIndex,
	amt simgraph.MilliSatoshi) (*Route, error) {

	var edges []simgraph.EdgeIndex
	for at := source; at != target; {
		e := prevEdge[at]
		if e == simgraph.NoEdge {
			return nil, ErrNoPathFound
		}
		edges = append(edges, e)
		at = g.Edge(e).To

		if len(edges) > HopLimit {
			return nil, ErrMaxHopsExceeded
		}
	}

	route, err := newRoute(g, edges, amt)
	if err != nil {
		return nil, err
	}

	// Score the assembled route under the current beliefs. The first
	// hop is the sender's own channel and not scored.
	for i, hop := range route.Hops {
		if i == 0 {
			continue
		}
		route.SuccessProb *= beliefs.SuccessProbability(
			g.Edge(hop.Edge), hop.AmtToForward,
		)
	}

	log.Tracef("Found route %v: amt=%v, fees=%v, cltv=%v, prob=%.4f",
		route, route.TotalAmount, route.TotalFees,
		route.TotalTimeLock, route.SuccessProb)

	return route, nil
}
