// Package payments drives the per-payment state machine: requesting
// candidate routes, executing attempts hop by hop against the liquidity
// oracle, and splitting amounts into shards when single paths fail.
package payments

import (
	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/routing"
	"github.com/lnresearch/paysim/simgraph"
)

// FailureCause classifies why an individual hop failed an HTLC.
type FailureCause uint8

const (
	// CauseInsufficientBalance means the forwarding channel's actual
	// balance could not cover the amount.
	CauseInsufficientBalance FailureCause = iota

	// CauseNodeOffline means the forwarding node failed the HTLC, per
	// its uptime-derived success probability.
	CauseNodeOffline

	// CausePolicyViolation means the amount fell outside the edge's
	// HTLC bounds.
	CausePolicyViolation
)

// String returns a human readable cause.
func (c FailureCause) String() string {
	switch c {
	case CauseInsufficientBalance:
		return "insufficient balance"
	case CauseNodeOffline:
		return "node offline"
	case CausePolicyViolation:
		return "policy violation"
	default:
		return "unknown"
	}
}

// FailureReason classifies why a payment, or one of its shards, could not
// complete. These are modeling outcomes, not errors.
type FailureReason uint8

const (
	// ReasonNone means the payment settled.
	ReasonNone FailureReason = iota

	// ReasonNoPathFound means no feasible path existed.
	ReasonNoPathFound

	// ReasonCapacityExhausted means the sender's own channels cannot
	// carry the amount.
	ReasonCapacityExhausted

	// ReasonShardTooSmall means a failed shard could not be split
	// further without violating the minimum shard amount.
	ReasonShardTooSmall

	// ReasonCLTVExceeded means all candidate paths exceeded the time
	// lock budget.
	ReasonCLTVExceeded

	// ReasonCandidateBudgetExhausted means every candidate route within
	// the budget was attempted and failed.
	ReasonCandidateBudgetExhausted
)

// String returns a stable token for serialization.
func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoPathFound:
		return "no_path_found"
	case ReasonCapacityExhausted:
		return "capacity_exhausted"
	case ReasonShardTooSmall:
		return "shard_too_small"
	case ReasonCLTVExceeded:
		return "cltv_exceeded"
	case ReasonCandidateBudgetExhausted:
		return "candidate_budget_exhausted"
	default:
		return "unknown"
	}
}

// Verdict is the overall outcome of a payment.
type Verdict uint8

const (
	// VerdictSuccess means every shard settled.
	VerdictSuccess Verdict = iota

	// VerdictPartialSuccess means some shards settled but the payment
	// as a whole failed. Settled shards stay committed in the balance
	// state; the verdict counts as a failure.
	VerdictPartialSuccess

	// VerdictFailure means nothing settled.
	VerdictFailure
)

// String returns a stable token for serialization.
func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictPartialSuccess:
		return "partial_success"
	case VerdictFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Succeeded reports whether the verdict counts as an overall success.
func (v Verdict) Succeeded() bool {
	return v == VerdictSuccess
}

// HopFailure pins an attempt failure to a hop position and cause.
type HopFailure struct {
	// Hop is the index into the route's hops.
	Hop int

	// Cause classifies the failure.
	Cause FailureCause
}

// Attempt is one end-to-end try of a route for one amount.
type Attempt struct {
	// Route is the attempted route.
	Route *routing.Route

	// Settled reports whether all hops locked and settled.
	Settled bool

	// Failure describes where and why the attempt failed. Nil when
	// settled.
	Failure *HopFailure
}

// Shard is one sub-amount of a payment under MPP. A single-path payment is
// the degenerate case of one shard carrying the full amount.
type Shard struct {
	// Index orders shards within their payment.
	Index int

	// Amount is the shard's destination amount.
	Amount simgraph.MilliSatoshi

	// Attempts holds every routing attempt made for this shard.
	Attempts []*Attempt

	// Settled reports whether one of the attempts settled.
	Settled bool

	// Reason classifies the shard's failure when it did not settle.
	Reason FailureReason
}

// Payment describes one payment to simulate.
type Payment struct {
	// ID is the payment's index within the run.
	ID int

	// Source and Target are the endpoints.
	Source simgraph.NodeIndex
	Target simgraph.NodeIndex

	// Amount is the amount the target is owed.
	Amount simgraph.MilliSatoshi

	// SplitAllowed enables multi-path splitting after a failed
	// single-path attempt.
	SplitAllowed bool

	// MinShardAmount is the smallest amount a shard may carry.
	MinShardAmount simgraph.MilliSatoshi
}

// Result is the final account of a payment.
type Result struct {
	// Payment echoes the input.
	Payment *Payment

	// Verdict is the overall outcome.
	Verdict Verdict

	// Reason classifies the failure for non-successful verdicts.
	Reason FailureReason

	// Shards holds the full attempt tree, settled and failed shards
	// alike.
	Shards []*Shard

	// TotalFees is the sum of fees of all settled shards.
	TotalFees simgraph.MilliSatoshi

	// HTLCAttempts counts attempts across all shards.
	HTLCAttempts int

	// MaxPathLength is the longest route among all attempts, in hops.
	MaxPathLength int

	// Observations is the payment's observation log.
	Observations *adversary.Log
}

// SettledAmount sums the destination amounts of settled shards.
func (r *Result) SettledAmount() simgraph.MilliSatoshi {
	var total simgraph.MilliSatoshi
	for _, s := range r.Shards {
		if s.Settled {
			total += s.Amount
		}
	}

	return total
}

// NumParts returns the number of settled shards. It is 0 when nothing
// settled; a partial success reports the shards that did settle.
func (r *Result) NumParts() int {
	parts := 0
	for _, s := range r.Shards {
		if s.Settled {
			parts++
		}
	}

	return parts
}
