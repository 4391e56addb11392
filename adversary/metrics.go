package adversary

import (
	"github.com/lnresearch/paysim/simgraph"
)

// Set is a sampled adversary node set.
type Set map[simgraph.NodeIndex]struct{}

// Contains reports set membership.
func (s Set) Contains(n simgraph.NodeIndex) bool {
	_, ok := s[n]
	return ok
}

// PaymentExposure summarizes what a given adversary set learned about one
// payment.
type PaymentExposure struct {
	// Observed is true if at least one adversary forwarded any attempt
	// of the payment.
	Observed bool

	// AdversaryHops counts adversary intermediary observations across
	// all attempts.
	AdversaryHops int

	// PredHits counts adversary intermediary observations whose
	// predecessor was the true source.
	PredHits int

	// SuccHits counts adversary intermediary observations whose
	// successor was the true destination.
	SuccHits int

	// Confirmable is true if one attempt carried two adversaries, the
	// first of which saw the true source as predecessor and the last of
	// which saw the true destination as successor. Such a pair can
	// confirm the payment's endpoints by correlating their records.
	Confirmable bool
}

// Exposure evaluates the log against an adversary set.
func (l *Log) Exposure(adv Set) PaymentExposure {
	var exp PaymentExposure

	for _, attempt := range l.attempts {
		var advObs []Observation
		for _, obs := range attempt.Observations {
			if obs.Role != RoleIntermediary {
				continue
			}
			if !adv.Contains(obs.Node) {
				continue
			}
			advObs = append(advObs, obs)
		}
		if len(advObs) == 0 {
			continue
		}

		exp.Observed = true
		exp.AdversaryHops += len(advObs)
		for _, obs := range advObs {
			if obs.Pred == l.source {
				exp.PredHits++
			}
			if obs.Succ == l.target {
				exp.SuccHits++
			}
		}

		if len(advObs) >= 2 {
			first, last := advObs[0], advObs[len(advObs)-1]
			if first.Pred == l.source && last.Succ == l.target {
				exp.Confirmable = true
			}
		}
	}

	return exp
}

// JaccardDistances returns, for every pair of distinct attempts in the log,
// the Jaccard distance between their traversed edge sets. A distance of 1
// means fully disjoint paths. Only meaningful for payments with more than
// one attempt.
func (l *Log) JaccardDistances() []float64 {
	var distances []float64
	for i := 0; i < len(l.attempts); i++ {
		for j := i + 1; j < len(l.attempts); j++ {
			distances = append(distances, jaccardDistance(
				l.attempts[i].Edges, l.attempts[j].Edges,
			))
		}
	}

	return distances
}

func jaccardDistance(a, b []simgraph.EdgeIndex) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	inA := make(map[simgraph.EdgeIndex]struct{}, len(a))
	union := make(map[simgraph.EdgeIndex]struct{}, len(a)+len(b))
	for _, e := range a {
		inA[e] = struct{}{}
		union[e] = struct{}{}
	}

	intersection := 0
	seenB := make(map[simgraph.EdgeIndex]struct{}, len(b))
	for _, e := range b {
		if _, dup := seenB[e]; dup {
			continue
		}
		seenB[e] = struct{}{}
		if _, ok := inA[e]; ok {
			intersection++
		}
		union[e] = struct{}{}
	}

	return 1 - float64(intersection)/float64(len(union))
}

// LevenshteinDistances returns, for every pair of distinct attempts, the
// edit distance between their node sequences. This is the path similarity
// measure of Rohrer et al.
func (l *Log) LevenshteinDistances() []int {
	seqs := make([][]simgraph.NodeIndex, len(l.attempts))
	for i, attempt := range l.attempts {
		seq := []simgraph.NodeIndex{l.source}
		for _, e := range attempt.Edges {
			seq = append(seq, l.g.Edge(e).To)
		}
		seqs[i] = seq
	}

	var distances []int
	for i := 0; i < len(seqs); i++ {
		for j := i + 1; j < len(seqs); j++ {
			distances = append(distances,
				levenshtein(seqs[i], seqs[j]))
		}
	}

	return distances
}

func levenshtein(lhs, rhs []simgraph.NodeIndex) int {
	if len(lhs) == 0 {
		return len(rhs)
	}
	if len(rhs) == 0 {
		return len(lhs)
	}

	prev := make([]int, len(rhs)+1)
	curr := make([]int, len(rhs)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(lhs); i++ {
		curr[0] = i
		for j := 1; j <= len(rhs); j++ {
			cost := 1
			if lhs[i-1] == rhs[j-1] {
				cost = 0
			}

			curr[j] = min(
				prev[j]+1,
				min(curr[j-1]+1, prev[j-1]+cost),
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rhs)]
}
