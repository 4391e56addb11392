package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/simgraph"
)

// AdversaryReport aggregates what one adversary set learned across all
// payments of a run.
type AdversaryReport struct {
	// Percent is the corrupted fraction of nodes, in percent.
	Percent int

	// Count is the number of adversary nodes.
	Count int

	// SetHash fingerprints the adversary set for reproducibility
	// checks across runs.
	SetHash string

	// ObservationRate is the fraction of payments that at least one
	// adversary forwarded.
	ObservationRate float64

	// PredAttackProb is the probability that an adversary intermediary
	// saw the true source as its predecessor.
	PredAttackProb float64

	// SuccAttackProb is the probability that an adversary intermediary
	// saw the true destination as its successor.
	SuccAttackProb float64

	// VulnerableRate is the fraction of payments open to a
	// confirmation attack by this adversary set.
	VulnerableRate float64
}

// newAdversaryReport scores one adversary set against all payment
// outcomes. expIdx selects the matching entry of each outcome's exposure
// list.
func newAdversaryReport(g *simgraph.Graph, percent int, set adversary.Set,
	outcomes []PaymentOutcome, expIdx int) AdversaryReport {

	report := AdversaryReport{
		Percent: percent,
		Count:   len(set),
		SetHash: hashAdversarySet(g, set),
	}

	var (
		observed   int
		vulnerable int
		advHops    int
		predHits   int
		succHits   int
	)
	for _, outcome := range outcomes {
		exp := outcome.Exposures[expIdx]
		if exp.Observed {
			observed++
		}
		if exp.Confirmable {
			vulnerable++
		}
		advHops += exp.AdversaryHops
		predHits += exp.PredHits
		succHits += exp.SuccHits
	}

	if len(outcomes) > 0 {
		report.ObservationRate =
			float64(observed) / float64(len(outcomes))
		report.VulnerableRate =
			float64(vulnerable) / float64(len(outcomes))
	}
	if advHops > 0 {
		report.PredAttackProb = float64(predHits) / float64(advHops)
		report.SuccAttackProb = float64(succHits) / float64(advHops)
	}

	return report
}

// hashAdversarySet fingerprints a set as the hash of its sorted node IDs.
func hashAdversarySet(g *simgraph.Graph, set adversary.Set) string {
	ids := make([]string, 0, len(set))
	for n := range set {
		ids = append(ids, string(g.Node(n).ID))
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Summary condenses a run into the headline aggregates shown at the end of
// a simulation.
type Summary struct {
	// TotalPayments is the number of evaluated payments.
	TotalPayments int

	// Succeeded counts payments with a success verdict.
	Succeeded int

	// SuccessRate is Succeeded over TotalPayments.
	SuccessRate float64

	// MeanFee is the mean fee paid by successful payments, in msat.
	MeanFee float64

	// MeanAttempts is the mean number of HTLC attempts per payment.
	MeanAttempts float64

	// MeanParts is the mean number of settled shards per successful
	// payment.
	MeanParts float64

	// MeanPathLen is the mean of each payment's longest attempted
	// path.
	MeanPathLen float64
}

// Summarize computes the run's headline numbers.
func (r *RunResult) Summarize() Summary {
	s := Summary{TotalPayments: len(r.Payments)}
	if s.TotalPayments == 0 {
		return s
	}

	var (
		fees     float64
		attempts float64
		parts    float64
		pathLen  float64
	)
	for _, outcome := range r.Payments {
		attempts += float64(outcome.HTLCAttempts)
		pathLen += float64(outcome.MaxPathLength)

		if outcome.Verdict.Succeeded() {
			s.Succeeded++
			fees += float64(outcome.TotalFees)
			parts += float64(outcome.NumParts())
		}
	}

	s.SuccessRate = float64(s.Succeeded) / float64(s.TotalPayments)
	s.MeanAttempts = attempts / float64(s.TotalPayments)
	s.MeanPathLen = pathLen / float64(s.TotalPayments)
	if s.Succeeded > 0 {
		s.MeanFee = fees / float64(s.Succeeded)
		s.MeanParts = parts / float64(s.Succeeded)
	}

	return s
}
