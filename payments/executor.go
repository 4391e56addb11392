package payments

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/oracle"
	"github.com/lnresearch/paysim/routing"
	"github.com/lnresearch/paysim/simgraph"
)

// Config bundles the routing knobs applied to every payment an executor
// runs.
type Config struct {
	// Metric ranks candidate paths.
	Metric routing.Metric

	// MaxCandidates is the candidate route budget per shard. Zero means
	// the routing default.
	MaxCandidates int

	// Constraints bound individual paths. Zero values mean the routing
	// defaults.
	Constraints routing.SearchConstraints
}

// Executor runs one payment's state machine to completion. It owns the
// payment's liquidity snapshot, belief state and observation log; nothing
// is shared with other payments, so a payment runs without any locking.
type Executor struct {
	graph     *simgraph.Graph
	liquidity *oracle.Liquidity
	beliefs   *oracle.BeliefState
	obs       *adversary.Log
	rng       *rand.Rand
	cfg       Config

	payment    *Payment
	shards     []*Shard
	nextShard  int
	numAttempt int
}

// NewExecutor prepares an executor for one payment. liquidity must be the
// payment's private snapshot; it is mutated by settled shards.
func NewExecutor(g *simgraph.Graph, liquidity *oracle.Liquidity,
	rng *rand.Rand, cfg Config) *Executor {

	return &Executor{
		graph:     g,
		liquidity: liquidity,
		rng:       rng,
		cfg:       cfg,
	}
}

// Send runs the payment to its verdict. Beliefs start fresh for every
// payment: the simulator measures per-payment behavior, not longitudinal
// learning.
func (ex *Executor) Send(p *Payment) *Result {
	ex.payment = p
	ex.beliefs = oracle.NewBeliefState(ex.graph)
	ex.obs = adversary.NewLog(ex.graph, p.Source, p.Target)
	ex.shards = nil
	ex.nextShard = 0
	ex.numAttempt = 0

	log.Debugf("Payment %d: %v -> %v, amount %v, split=%v", p.ID,
		p.Source, p.Target, p.Amount, p.SplitAllowed)

	// The sender knows its own channel balances, so a payment that
	// cannot even leave the source fails before any routing. For split
	// payments the outbound total is the binding limit, for single
	// paths the largest single channel.
	if !ex.sourceCanAfford(p) {
		return ex.finish(VerdictFailure, ReasonCapacityExhausted)
	}

	root := ex.newShard(p.Amount)
	if ex.sendShard(root) {
		return ex.finish(VerdictSuccess, ReasonNone)
	}

	if !p.SplitAllowed || !ex.splittable(p.Amount, p.MinShardAmount) {
		return ex.finish(VerdictFailure, root.Reason)
	}

	return ex.split(p.Amount, p.MinShardAmount)
}

// sourceCanAfford prechecks the sender's own liquidity.
func (ex *Executor) sourceCanAfford(p *Payment) bool {
	if p.SplitAllowed {
		total := ex.liquidity.TotalOutboundBalance(p.Source)
		return total >= p.Amount
	}

	return ex.liquidity.MaxOutboundBalance(p.Source) >= p.Amount
}

// splittable reports whether halving the amount keeps both halves at or
// above the minimum shard amount.
func (ex *Executor) splittable(amt,
	minShard simgraph.MilliSatoshi) bool {

	if minShard == 0 {
		minShard = 1
	}

	return amt/2 >= minShard
}

// split recursively decomposes the amount into halves until every leaf
// either settles or cannot be split further. An explicit LIFO queue stands
// in for recursion so the traversal order is deterministic and the stack
// stays flat no matter how deep the splitting goes.
func (ex *Executor) split(amount,
	minShard simgraph.MilliSatoshi) *Result {

	half := amount / 2
	queue := []simgraph.MilliSatoshi{half, amount - half}

	someSettled := false
	failReason := ReasonNone
	for len(queue) > 0 {
		amt := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		shard := ex.newShard(amt)
		if ex.sendShard(shard) {
			someSettled = true
			continue
		}

		if ex.splittable(amt, minShard) {
			// Push the lower half first so the upper half is
			// attempted next.
			half := amt / 2
			queue = append(queue, half, amt-half)
			continue
		}

		// A leaf that can neither settle nor split fails the payment
		// as a whole; already settled shards remain committed but
		// the verdict flips to failure.
		if shard.Reason == ReasonNone {
			shard.Reason = ReasonShardTooSmall
		}
		if failReason == ReasonNone {
			failReason = shard.Reason
		}
	}

	switch {
	case failReason == ReasonNone:
		return ex.finish(VerdictSuccess, ReasonNone)

	case someSettled:
		return ex.finish(VerdictPartialSuccess, failReason)

	default:
		return ex.finish(VerdictFailure, failReason)
	}
}

// newShard registers a shard with the next free index.
func (ex *Executor) newShard(amt simgraph.MilliSatoshi) *Shard {
	shard := &Shard{
		Index:  ex.nextShard,
		Amount: amt,
	}
	ex.nextShard++
	ex.shards = append(ex.shards, shard)

	return shard
}

// sendShard tries to deliver one shard, requesting up to the candidate
// budget of routes and attempting each. The shared belief state carries
// everything learned by earlier shards and attempts.
func (ex *Executor) sendShard(shard *Shard) bool {
	session := routing.NewSession(
		ex.graph, ex.beliefs, ex.payment.Source, ex.payment.Target,
		routing.SessionConfig{
			Metric:        ex.cfg.Metric,
			MaxCandidates: ex.cfg.MaxCandidates,
			Constraints:   ex.cfg.Constraints,
		},
	)

	for {
		route, err := session.RequestRoute(shard.Amount)
		if err != nil {
			shard.Reason = reasonFromRoutingError(err)
			log.Debugf("Payment %d shard %d: no further "+
				"candidates: %v", ex.payment.ID, shard.Index,
				err)

			return false
		}

		attempt := ex.executeAttempt(route)
		shard.Attempts = append(shard.Attempts, attempt)

		if attempt.Settled {
			shard.Settled = true
			shard.Reason = ReasonNone

			return true
		}

		// Balance failures are already reflected in the beliefs and
		// steer the next query on their own. Other causes are opaque
		// to the belief model, so the failing edge is excluded
		// outright.
		failure := attempt.Failure
		if failure.Cause != CauseInsufficientBalance {
			session.ExcludeEdge(route.Hops[failure.Hop].Edge)
		}
	}
}

// executeAttempt walks the route source to target against the actual
// balances. Either every hop can lock the HTLC and the attempt settles
// atomically, or the first infeasible hop fails it and no balance moves at
// all. Belief updates and observations happen in both cases.
func (ex *Executor) executeAttempt(route *routing.Route) *Attempt {
	ex.numAttempt++

	failedAt := -1
	var cause FailureCause
	for i, hop := range route.Hops {
		edge := ex.graph.Edge(hop.Edge)

		// The route was built against policy bounds; hitting one
		// here means route construction is broken.
		if !edge.AmountInPolicy(hop.AmtToForward) {
			failedAt, cause = i, CausePolicyViolation
			break
		}

		if ex.liquidity.Actual(edge.Index) < hop.AmtToForward {
			failedAt, cause = i, CauseInsufficientBalance
			break
		}

		// The receiving node may fail the HTLC outright, modeling
		// offline or flaky nodes.
		succProb := ex.graph.Node(edge.To).SuccessProb
		if succProb < 1 && ex.rng.Float64() >= succProb {
			failedAt, cause = i, CauseNodeOffline
			break
		}
	}

	if failedAt == -1 {
		ex.settleRoute(route)
		ex.obs.RecordAttempt(route, len(route.Hops), true)

		log.Debugf("Payment %d: attempt %d settled over %d hops, "+
			"fees %v", ex.payment.ID, ex.numAttempt,
			len(route.Hops), route.TotalFees)

		return &Attempt{Route: route, Settled: true}
	}

	// The attempt unwinds without moving any balance. The sender still
	// learned that every hop before the failure could carry the amount,
	// and, for a balance failure, an upper bound on the failing edge.
	for i := 0; i < failedAt; i++ {
		edge := ex.graph.Edge(route.Hops[i].Edge)
		ex.beliefs.OnSuccess(edge, route.Hops[i].AmtToForward)
		ex.assertBeliefSound(edge, i)
	}

	failedEdge := ex.graph.Edge(route.Hops[failedAt].Edge)
	if cause == CauseInsufficientBalance {
		ex.beliefs.OnFailure(
			failedEdge, route.Hops[failedAt].AmtToForward,
		)
		ex.assertBeliefSound(failedEdge, failedAt)
	}

	ex.obs.RecordAttempt(route, failedAt+1, false)

	log.Debugf("Payment %d: attempt %d failed at hop %d: %v",
		ex.payment.ID, ex.numAttempt, failedAt, cause)

	return &Attempt{
		Route:   route,
		Failure: &HopFailure{Hop: failedAt, Cause: cause},
	}
}

// settleRoute commits a fully locked attempt: every edge's balance shifts
// by the forwarded amount and the beliefs are updated to match.
func (ex *Executor) settleRoute(route *routing.Route) {
	for i, hop := range route.Hops {
		edge := ex.graph.Edge(hop.Edge)

		ex.beliefs.OnSuccess(edge, hop.AmtToForward)
		ex.liquidity.Settle(edge.Index, hop.AmtToForward)
		ex.beliefs.OnSettle(edge, hop.AmtToForward)
		ex.assertBeliefSound(edge, i)
	}
}

// assertBeliefSound verifies lo <= actual <= hi for the given edge. A
// violation is a modeling bug and aborts the run with context.
func (ex *Executor) assertBeliefSound(edge *simgraph.DirectedEdge, hop int) {
	iv := ex.beliefs.Interval(edge.Index)
	actual := ex.liquidity.Actual(edge.Index)
	if actual < iv.Lo || actual > iv.Hi {
		panic(fmt.Sprintf("belief interval [%v, %v] excludes actual "+
			"balance %v (payment %d, attempt %d, hop %d, edge %d)",
			iv.Lo, iv.Hi, actual, ex.payment.ID, ex.numAttempt,
			hop, edge.Index))
	}
}

// finish assembles the result record.
func (ex *Executor) finish(verdict Verdict, reason FailureReason) *Result {
	res := &Result{
		Payment:      ex.payment,
		Verdict:      verdict,
		Reason:       reason,
		Shards:       ex.shards,
		HTLCAttempts: ex.numAttempt,
		Observations: ex.obs,
	}

	for _, shard := range ex.shards {
		for _, attempt := range shard.Attempts {
			if len(attempt.Route.Hops) > res.MaxPathLength {
				res.MaxPathLength = len(attempt.Route.Hops)
			}
			if attempt.Settled {
				res.TotalFees += attempt.Route.TotalFees
			}
		}
	}

	if verdict == VerdictSuccess &&
		res.SettledAmount() != ex.payment.Amount {

		panic(fmt.Sprintf("settled shards sum to %v, payment "+
			"amount is %v (payment %d)", res.SettledAmount(),
			ex.payment.Amount, ex.payment.ID))
	}

	log.Debugf("Payment %d finished: %v (%v), %d attempts, fees %v",
		ex.payment.ID, verdict, reason, res.HTLCAttempts,
		res.TotalFees)

	return res
}

// reasonFromRoutingError maps routing errors to payment failure reasons.
func reasonFromRoutingError(err error) FailureReason {
	switch {
	case errors.Is(err, routing.ErrNoPathFound):
		return ReasonNoPathFound

	case errors.Is(err, routing.ErrCLTVExceeded):
		return ReasonCLTVExceeded

	case errors.Is(err, routing.ErrCandidateBudgetExhausted):
		return ReasonCandidateBudgetExhausted

	default:
		return ReasonNoPathFound
	}
}
