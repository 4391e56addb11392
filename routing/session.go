package routing

import (
	"github.com/lnresearch/paysim/oracle"
	"github.com/lnresearch/paysim/simgraph"
)

// DefaultMaxCandidates is the number of candidate routes a payment (or a
// shard of one) may request before giving up.
const DefaultMaxCandidates = 10

// Session hands out candidate routes for one payment between a fixed pair
// of nodes. Rather than materializing k shortest paths up front, the session
// re-runs the search on demand: every attempt outcome narrows the belief
// state and grows the excluded edge set, so each query naturally yields the
// next-best path that is still worth trying.
type Session struct {
	graph   *simgraph.Graph
	beliefs *oracle.BeliefState

	source simgraph.NodeIndex
	target simgraph.NodeIndex
	metric Metric

	constraints SearchConstraints

	// excluded collects edges that failed during this session and must
	// not be offered again by it.
	excluded map[simgraph.EdgeIndex]struct{}

	// remaining is the candidate budget left.
	remaining int
}

// SessionConfig bundles the knobs of a routing session.
type SessionConfig struct {
	// Metric ranks candidate paths.
	Metric Metric

	// MaxCandidates bounds how many routes the session will hand out. A
	// zero value means DefaultMaxCandidates.
	MaxCandidates int

	// Constraints bound individual paths. Zero values mean the stock
	// limits.
	Constraints SearchConstraints
}

// NewSession creates a session routing from source to target against the
// given belief state. The belief state is shared with the caller; attempt
// outcomes recorded there steer subsequent queries.
func NewSession(g *simgraph.Graph, beliefs *oracle.BeliefState, source,
	target simgraph.NodeIndex, cfg SessionConfig) *Session {

	maxCandidates := cfg.MaxCandidates
	if maxCandidates == 0 {
		maxCandidates = DefaultMaxCandidates
	}
	constraints := cfg.Constraints
	if constraints.CLTVLimit == 0 {
		constraints.CLTVLimit = DefaultCLTVLimit
	}
	if constraints.HopLimit == 0 {
		constraints.HopLimit = HopLimit
	}

	return &Session{
		graph:       g,
		beliefs:     beliefs,
		source:      source,
		target:      target,
		metric:      cfg.Metric,
		constraints: constraints,
		excluded:    make(map[simgraph.EdgeIndex]struct{}),
		remaining:   maxCandidates,
	}
}

// RequestRoute returns the best route for the given amount under the
// current beliefs and exclusions, consuming one unit of the candidate
// budget. Once the budget is spent, ErrCandidateBudgetExhausted is returned
// for every further query.
func (s *Session) RequestRoute(amt simgraph.MilliSatoshi) (*Route, error) {
	if s.remaining <= 0 {
		return nil, ErrCandidateBudgetExhausted
	}
	s.remaining--

	route, err := findPath(
		s.graph, s.beliefs, s.source, s.target, amt, s.metric,
		s.excluded, s.constraints,
	)
	if err != nil {
		return nil, err
	}

	return route, nil
}

// ExcludeEdge removes an edge from consideration for the rest of the
// session. Called when an attempt failed at that edge for a reason the
// belief state cannot express, e.g. the far node being offline.
func (s *Session) ExcludeEdge(e simgraph.EdgeIndex) {
	s.excluded[e] = struct{}{}
}

// Budget returns how many candidate routes the session may still hand out.
func (s *Session) Budget() int {
	return s.remaining
}
