package adversary

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/lnresearch/paysim/simgraph"
)

// Strategy selects how the adversary node set is drawn.
type Strategy uint8

const (
	// StrategyBetweenness corrupts the top nodes by betweenness
	// centrality.
	StrategyBetweenness Strategy = iota

	// StrategyDegree corrupts the top nodes by degree centrality.
	StrategyDegree

	// StrategyScore corrupts the top nodes of a generic score ranking.
	StrategyScore

	// StrategyRandom corrupts uniformly sampled nodes.
	StrategyRandom
)

// String returns the strategy's name.
func (s Strategy) String() string {
	switch s {
	case StrategyBetweenness:
		return "betweenness"
	case StrategyDegree:
		return "degree"
	case StrategyScore:
		return "score"
	case StrategyRandom:
		return "random"
	default:
		return "unknown"
	}
}

// Ranking is a list of nodes in descending score order, as produced by the
// external centrality tooling.
type Ranking []simgraph.NodeIndex

// LoadRanking reads a ranking file, one node ID per line in descending
// score order. IDs that don't resolve in the graph (nodes pruned at load)
// are skipped.
func LoadRanking(path string, g *simgraph.Graph) (Ranking, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open ranking file: %w", err)
	}
	defer f.Close()

	var (
		ranking Ranking
		skipped int
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}

		n, ok := g.NodeByID(simgraph.NodeID(id))
		if !ok {
			skipped++
			continue
		}
		ranking = append(ranking, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read ranking file: %w", err)
	}

	if skipped > 0 {
		log.Debugf("Ranking %v: skipped %d entries not present in "+
			"the reduced graph", path, skipped)
	}
	log.Infof("Loaded ranking with %d nodes from %v", len(ranking), path)

	return ranking, nil
}

// Select draws an adversary set covering the given percentage of the
// graph's nodes. Ranked strategies take the top slice of their ranking,
// the random strategy samples uniformly without replacement using the
// provided seeded generator.
func Select(strategy Strategy, ranking Ranking, g *simgraph.Graph,
	percent int, rng *rand.Rand) (Set, error) {

	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("adversary percentage %d out of range",
			percent)
	}

	count := g.NodeCount() * percent / 100
	set := make(Set, count)

	if strategy == StrategyRandom {
		perm := rng.Perm(g.NodeCount())
		for _, i := range perm[:count] {
			set[simgraph.NodeIndex(i)] = struct{}{}
		}

		return set, nil
	}

	if len(ranking) < count {
		return nil, fmt.Errorf("ranking holds %d nodes, %d requested",
			len(ranking), count)
	}
	for _, n := range ranking[:count] {
		set[n] = struct{}{}
	}

	return set, nil
}
