// Package adversary tracks which nodes observed a payment and derives the
// deanonymization metrics reported per run: observation rates, predecessor
// and successor attack success, confirmation attack vulnerability and the
// diversity of the paths a payment used.
package adversary

import (
	"github.com/lnresearch/paysim/routing"
	"github.com/lnresearch/paysim/simgraph"
)

// Role describes in which capacity a node took part in an attempt.
type Role uint8

const (
	// RoleSource is the sender of the payment.
	RoleSource Role = iota

	// RoleDestination is the final recipient.
	RoleDestination

	// RoleIntermediary is any node that forwarded the payment.
	RoleIntermediary
)

// String returns a human readable role name.
func (r Role) String() string {
	switch r {
	case RoleSource:
		return "source"
	case RoleDestination:
		return "destination"
	case RoleIntermediary:
		return "intermediary"
	default:
		return "unknown"
	}
}

// Observation is one node's view of one attempt: the role it played, the
// amount that moved through it and the neighbors it saw the payment come
// from and go to.
type Observation struct {
	// Node is the observing node.
	Node simgraph.NodeIndex

	// Role is the capacity in which it took part.
	Role Role

	// Amount is the shard amount that passed through the node,
	// including the fees of downstream hops.
	Amount simgraph.MilliSatoshi

	// Pred is the node the payment arrived from, NoNode for the source.
	Pred simgraph.NodeIndex

	// Succ is the node the payment was handed to, NoNode for the
	// terminal node of the attempt.
	Succ simgraph.NodeIndex
}

// AttemptTrace captures everything observable about a single attempt: which
// edges carried an HTLC and what each involved node learned.
type AttemptTrace struct {
	// Edges lists the edges that actually carried an HTLC, in path
	// order. For a failed attempt this is the prefix up to and including
	// the failing hop.
	Edges []simgraph.EdgeIndex

	// Settled reports whether the attempt completed.
	Settled bool

	// Observations holds one entry per involved node.
	Observations []Observation
}

// Log accumulates the observations of all attempts of one payment,
// including every shard's attempts for split payments.
type Log struct {
	g *simgraph.Graph

	source simgraph.NodeIndex
	target simgraph.NodeIndex

	attempts []AttemptTrace
}

// NewLog creates an observation log for one payment.
func NewLog(g *simgraph.Graph, source,
	target simgraph.NodeIndex) *Log {

	return &Log{g: g, source: source, target: target}
}

// Source returns the payment's true sender.
func (l *Log) Source() simgraph.NodeIndex {
	return l.source
}

// Target returns the payment's true recipient.
func (l *Log) Target() simgraph.NodeIndex {
	return l.target
}

// Attempts returns the recorded attempt traces.
func (l *Log) Attempts() []AttemptTrace {
	return l.attempts
}

// RecordAttempt adds the trace of one attempt. traversed is the number of
// edges that actually carried an HTLC: all of them for a settled attempt,
// the prefix up to and including the failing hop otherwise.
func (l *Log) RecordAttempt(route *routing.Route, traversed int,
	settled bool) {

	if traversed > len(route.Hops) {
		traversed = len(route.Hops)
	}

	trace := AttemptTrace{
		Edges:   make([]simgraph.EdgeIndex, 0, traversed),
		Settled: settled,
	}
	for i := 0; i < traversed; i++ {
		trace.Edges = append(trace.Edges, route.Hops[i].Edge)
	}

	// Every endpoint of a traversed edge observed the attempt. The
	// nodes on the traversed prefix are the source followed by each
	// edge's far endpoint.
	for pos := 0; pos <= traversed; pos++ {
		var obs Observation
		switch {
		case pos == 0:
			obs = Observation{
				Node:   route.Source,
				Role:   RoleSource,
				Amount: route.TotalAmount,
				Pred:   simgraph.NoNode,
			}

		default:
			hop := route.Hops[pos-1]
			node := l.g.Edge(hop.Edge).To
			role := RoleIntermediary
			if node == route.Target {
				role = RoleDestination
			}
			obs = Observation{
				Node:   node,
				Role:   role,
				Amount: hop.AmtToForward,
				Pred:   l.g.Edge(hop.Edge).From,
			}
		}

		if pos < traversed {
			obs.Succ = l.g.Edge(route.Hops[pos].Edge).To
		} else {
			obs.Succ = simgraph.NoNode
		}

		trace.Observations = append(trace.Observations, obs)
	}

	l.attempts = append(l.attempts, trace)
}
