package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/routing"
	"github.com/lnresearch/paysim/simgraph"
)

// ringGraph builds a cycle over the given node IDs so every pair is
// connected through at least two routes.
func ringGraph(t *testing.T, ids ...string) *simgraph.Graph {
	t.Helper()

	top := &simgraph.Topology{}
	for _, id := range ids {
		top.Nodes = append(top.Nodes, simgraph.TopologyNode{
			ID: simgraph.NodeID(id),
		})
	}
	policy := func() *simgraph.ChannelPolicy {
		return &simgraph.ChannelPolicy{
			FeeBaseMSat:   10,
			FeeRatePPM:    100,
			TimeLockDelta: 40,
			MinHTLC:       1,
			MaxHTLC:       10_000_000,
		}
	}
	for i := range ids {
		next := (i + 1) % len(ids)
		top.Channels = append(top.Channels, simgraph.Channel{
			ID:       fmt.Sprintf("%s-%s", ids[i], ids[next]),
			Node1:    simgraph.NodeID(ids[i]),
			Node2:    simgraph.NodeID(ids[next]),
			Capacity: 10_000_000,
			Policy1:  policy(),
			Policy2:  policy(),
		})
	}

	g, _, err := simgraph.Build(top, nil)
	require.NoError(t, err)

	return g
}

// TestRunDeterministicReplay checks that two runs with the same seed and
// configuration agree bit for bit on verdicts, fees, paths and adversary
// fingerprints.
func TestRunDeterministicReplay(t *testing.T) {
	t.Parallel()

	g := ringGraph(t, "a", "b", "c", "d", "e", "f")

	cfg := Config{
		Amount:             50_000,
		Seed:               19,
		NumPairs:           200,
		Split:              true,
		Metric:             routing.MetricMinFee,
		MinShard:           1000,
		AdversaryFractions: []int{20, 50},
		AdversaryStrategy:  adversary.StrategyRandom,
		Workers:            4,
	}

	runOnce := func() *RunResult {
		s, err := New(g, cfg)
		require.NoError(t, err)

		result, err := s.Run(context.Background())
		require.NoError(t, err)

		return result
	}

	r1, r2 := runOnce(), runOnce()

	require.Equal(t, r1.SkippedPairs, r2.SkippedPairs)
	require.Equal(t, len(r1.Payments), len(r2.Payments))
	for i := range r1.Payments {
		p1, p2 := r1.Payments[i], r2.Payments[i]
		require.Equal(t, p1.Verdict, p2.Verdict, "payment %d", i)
		require.Equal(t, p1.TotalFees, p2.TotalFees, "payment %d", i)
		require.Equal(t, p1.HTLCAttempts, p2.HTLCAttempts,
			"payment %d", i)
		require.Equal(t, p1.Exposures, p2.Exposures, "payment %d", i)
	}
	require.Equal(t, r1.Adversaries, r2.Adversaries)

	// The verdict histogram is reproducible by construction then.
	summary1, summary2 := r1.Summarize(), r2.Summarize()
	require.Equal(t, summary1, summary2)
}

// TestRunWorkerCountInvariance checks that the worker pool size does not
// leak into the results.
func TestRunWorkerCountInvariance(t *testing.T) {
	t.Parallel()

	g := ringGraph(t, "a", "b", "c", "d", "e")

	runWith := func(workers int) *RunResult {
		s, err := New(g, Config{
			Amount:   25_000,
			Seed:     7,
			NumPairs: 100,
			Metric:   routing.MetricMaxProb,
			Workers:  workers,
		})
		require.NoError(t, err)

		result, err := s.Run(context.Background())
		require.NoError(t, err)

		return result
	}

	r1, r8 := runWith(1), runWith(8)

	require.Equal(t, len(r1.Payments), len(r8.Payments))
	for i := range r1.Payments {
		require.Equal(t, r1.Payments[i].Verdict,
			r8.Payments[i].Verdict)
		require.Equal(t, r1.Payments[i].TotalFees,
			r8.Payments[i].TotalFees)
	}
}

// TestRunSkipsDegeneratePairs checks that identical-endpoint samples are
// skipped and accounted for.
func TestRunSkipsDegeneratePairs(t *testing.T) {
	t.Parallel()

	g := ringGraph(t, "a", "b", "c")

	s, err := New(g, Config{
		Amount:   1000,
		Seed:     3,
		NumPairs: 300,
		Metric:   routing.MetricMinFee,
	})
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)

	// With three nodes, a third of the samples collide in expectation.
	require.Greater(t, result.SkippedPairs, 0)
	require.Equal(t, 300, len(result.Payments)+result.SkippedPairs)
}

// TestRunFullAdversaryObservation checks that with every node corrupted,
// every payment that traversed an intermediary is observed.
func TestRunFullAdversaryObservation(t *testing.T) {
	t.Parallel()

	g := ringGraph(t, "a", "b", "c", "d", "e", "f")

	s, err := New(g, Config{
		Amount:             10_000,
		Seed:               11,
		NumPairs:           150,
		Metric:             routing.MetricMinFee,
		AdversaryFractions: []int{100},
		AdversaryStrategy:  adversary.StrategyRandom,
	})
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Adversaries, 1)
	require.Equal(t, g.NodeCount(), result.Adversaries[0].Count)

	sawMultiHop := false
	for _, outcome := range result.Payments {
		multiHop := false
		for _, trace := range outcome.Observations.Attempts() {
			if len(trace.Edges) >= 2 {
				multiHop = true
			}
		}
		if multiHop {
			sawMultiHop = true
			require.True(t, outcome.Exposures[0].Observed)
		}
	}
	require.True(t, sawMultiHop, "expected at least one multi-hop "+
		"payment in the sample")
}

// TestNewValidation checks the config sanity errors.
func TestNewValidation(t *testing.T) {
	t.Parallel()

	g := ringGraph(t, "a", "b", "c")

	_, err := New(g, Config{NumPairs: 0})
	require.Error(t, err)

	// A ranked strategy without a ranking cannot be evaluated.
	_, err = New(g, Config{
		NumPairs:           10,
		AdversaryFractions: []int{10},
		AdversaryStrategy:  adversary.StrategyBetweenness,
	})
	require.Error(t, err)
}
