// Package sim is the simulation driver: it samples payment pairs, runs
// every payment's state machine against a private snapshot of the initial
// balances, and aggregates the outcomes per adversary fraction.
package sim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/monitoring"
	"github.com/lnresearch/paysim/oracle"
	"github.com/lnresearch/paysim/payments"
	"github.com/lnresearch/paysim/routing"
	"github.com/lnresearch/paysim/simgraph"
)

// RNG stream identifiers. Every stochastic subsystem draws from its own
// sub-stream of the run seed so that adding draws to one subsystem never
// perturbs another.
const (
	streamBalances uint64 = iota
	streamPairs
	streamAdversaries

	// streamPayments is the base for per-payment streams; payment i
	// draws from streamPayments + i.
	streamPayments uint64 = 1 << 16
)

// Config parameterizes one simulation run.
type Config struct {
	// Amount is the destination amount of every payment, in msat.
	Amount simgraph.MilliSatoshi

	// Seed is the run seed all randomness derives from.
	Seed uint64

	// NumPairs is how many (source, destination) pairs to sample.
	NumPairs int

	// Split enables multi-path payments.
	Split bool

	// Metric ranks candidate paths.
	Metric routing.Metric

	// MinShard is the smallest amount a shard may carry.
	MinShard simgraph.MilliSatoshi

	// MaxCandidates is the candidate route budget per shard. Zero means
	// the routing default.
	MaxCandidates int

	// AdversaryFractions lists the adversary percentages to evaluate.
	AdversaryFractions []int

	// AdversaryStrategy selects how adversaries are drawn.
	AdversaryStrategy adversary.Strategy

	// Ranking supplies the node ranking for ranked strategies.
	Ranking adversary.Ranking

	// Workers bounds concurrent payment evaluation. Zero means one
	// worker per CPU.
	Workers int
}

// Pair is one sampled (source, destination) combination.
type Pair struct {
	Source simgraph.NodeIndex
	Target simgraph.NodeIndex
}

// PaymentOutcome couples a payment result with its exposure to each
// evaluated adversary set, indexed like Config.AdversaryFractions.
type PaymentOutcome struct {
	*payments.Result

	// Exposures holds one entry per adversary fraction.
	Exposures []adversary.PaymentExposure
}

// RunResult is the complete outcome of a simulation run.
type RunResult struct {
	// Config echoes the run parameters.
	Config Config

	// SkippedPairs counts sampled pairs that were unusable (identical
	// endpoints or no connecting path).
	SkippedPairs int

	// Payments holds the per-payment outcomes in payment index order.
	Payments []PaymentOutcome

	// Adversaries holds one aggregate report per adversary fraction.
	Adversaries []AdversaryReport
}

// Simulation runs payments over a loaded graph.
type Simulation struct {
	graph *simgraph.Graph
	cfg   Config
}

// New prepares a simulation.
func New(g *simgraph.Graph, cfg Config) (*Simulation, error) {
	if cfg.NumPairs <= 0 {
		return nil, fmt.Errorf("number of pairs must be positive, "+
			"got %d", cfg.NumPairs)
	}
	if g.NodeCount() < 2 {
		return nil, fmt.Errorf("graph with %d nodes cannot be "+
			"sampled for pairs", g.NodeCount())
	}

	needRanking := cfg.AdversaryStrategy != adversary.StrategyRandom &&
		len(cfg.AdversaryFractions) > 0
	if needRanking && len(cfg.Ranking) == 0 {
		return nil, fmt.Errorf("strategy %v requires a node ranking",
			cfg.AdversaryStrategy)
	}

	return &Simulation{graph: g, cfg: cfg}, nil
}

// Run executes the full simulation: draw balances, sample pairs, evaluate
// every payment on a worker pool, then score the adversary fractions.
// Results are aggregated in payment index order regardless of completion
// order, so a fixed seed reproduces the run bit for bit.
func (s *Simulation) Run(ctx context.Context) (*RunResult, error) {
	cfg := s.cfg

	liquidity := oracle.NewLiquidity(
		s.graph, rand.New(rand.NewPCG(cfg.Seed, streamBalances)),
	)

	pairs, skipped := s.samplePairs(
		rand.New(rand.NewPCG(cfg.Seed, streamPairs)),
	)
	log.Infof("Sampled %d usable pairs (%d skipped) for amount %v",
		len(pairs), skipped, cfg.Amount)

	// Sample every adversary set up front; the sets are fixed for the
	// whole run.
	advRNG := rand.New(rand.NewPCG(cfg.Seed, streamAdversaries))
	advSets := make([]adversary.Set, len(cfg.AdversaryFractions))
	for i, percent := range cfg.AdversaryFractions {
		set, err := adversary.Select(
			cfg.AdversaryStrategy, cfg.Ranking, s.graph, percent,
			advRNG,
		)
		if err != nil {
			return nil, err
		}
		advSets[i] = set
	}

	outcomes := make([]PaymentOutcome, len(pairs))

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for idx, pair := range pairs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		group.Go(func() error {
			// Each payment runs against its own snapshot of the
			// initial balances and a private RNG stream, so
			// payments neither share mutable state nor perturb
			// each other's randomness.
			executor := payments.NewExecutor(
				s.graph, liquidity.Snapshot(),
				rand.New(rand.NewPCG(
					cfg.Seed,
					streamPayments+uint64(idx),
				)),
				payments.Config{
					Metric:        cfg.Metric,
					MaxCandidates: cfg.MaxCandidates,
				},
			)

			result := executor.Send(&payments.Payment{
				ID:             idx,
				Source:         pair.Source,
				Target:         pair.Target,
				Amount:         cfg.Amount,
				SplitAllowed:   cfg.Split,
				MinShardAmount: cfg.MinShard,
			})

			exposures := make(
				[]adversary.PaymentExposure, len(advSets),
			)
			for i, set := range advSets {
				exposures[i] =
					result.Observations.Exposure(set)
			}

			outcomes[idx] = PaymentOutcome{
				Result:    result,
				Exposures: exposures,
			}

			monitoring.ObservePayment(
				result.Verdict.String(),
				result.HTLCAttempts, result.MaxPathLength,
				uint64(result.TotalFees),
				result.Verdict.Succeeded(),
			)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	reports := make([]AdversaryReport, len(advSets))
	for i := range advSets {
		reports[i] = newAdversaryReport(
			s.graph, cfg.AdversaryFractions[i], advSets[i],
			outcomes, i,
		)
	}

	return &RunResult{
		Config:       cfg,
		SkippedPairs: skipped,
		Payments:     outcomes,
		Adversaries:  reports,
	}, nil
}

// samplePairs draws NumPairs random pairs, dropping those with identical
// endpoints or no connecting path.
func (s *Simulation) samplePairs(rng *rand.Rand) ([]Pair, int) {
	numNodes := s.graph.NodeCount()

	pairs := make([]Pair, 0, s.cfg.NumPairs)
	skipped := 0
	for i := 0; i < s.cfg.NumPairs; i++ {
		src := simgraph.NodeIndex(rng.IntN(numNodes))
		dst := simgraph.NodeIndex(rng.IntN(numNodes))

		if src == dst {
			skipped++
			log.Debugf("Skipping pair %d: identical endpoints "+
				"%v", i, src)
			continue
		}
		if !s.reachable(src, dst) {
			skipped++
			log.Debugf("Skipping pair %d: no path %v -> %v", i,
				src, dst)
			continue
		}

		pairs = append(pairs, Pair{Source: src, Target: dst})
	}

	return pairs, skipped
}

// reachable runs a plain breadth-first search, ignoring amounts and
// policies. On an SCC-reduced graph this always holds; the precheck guards
// against graphs loaded without reduction.
func (s *Simulation) reachable(src, dst simgraph.NodeIndex) bool {
	visited := make([]bool, s.graph.NodeCount())
	visited[src] = true
	frontier := []simgraph.NodeIndex{src}

	for len(frontier) > 0 {
		node := frontier[0]
		frontier = frontier[1:]

		if node == dst {
			return true
		}

		for _, e := range s.graph.OutEdges(node) {
			if !visited[e.To] {
				visited[e.To] = true
				frontier = append(frontier, e.To)
			}
		}
	}

	return false
}
