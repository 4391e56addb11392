package main

import (
	"fmt"

	flags "github.com/jessevdk/go-flags"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/netparse"
	"github.com/lnresearch/paysim/routing"
)

// config holds the command line options of the simulator.
//
//nolint:lll
type config struct {
	Amount        uint64          `long:"amount" short:"a" description:"Payment amount in msat" default:"100000"`
	Run           uint64          `long:"run" short:"r" description:"Seed all randomness of the run derives from" default:"19"`
	Pairs         int             `long:"pairs" short:"n" description:"Number of (source, destination) pairs to sample" default:"5000"`
	Split         bool            `long:"split" description:"Enable multi-path payments"`
	PathMetric    routing.Metric  `long:"path-metric" description:"Metric ranking candidate paths (minfee or maxprob)" default:"minfee"`
	MinShard      uint64          `long:"min" description:"Minimum shard amount in msat when splitting" default:"1000"`
	GraphSource   netparse.Source `long:"graph-source" description:"Dialect of the topology file (lnd or lnr)" default:"lnd"`
	Adversaries   []int           `long:"adversaries" description:"Adversary percentage to evaluate; may be given multiple times"`
	Random        bool            `long:"random" description:"Sample adversaries uniformly at random"`
	Betweenness   string          `long:"betweenness" short:"b" description:"Ranking file for the betweenness strategy, one node ID per line in descending order"`
	Degree        string          `long:"degree" short:"d" description:"Ranking file for the degree strategy"`
	Score         string          `long:"score" short:"c" description:"Ranking file for the generic score strategy"`
	OutputDir     string          `long:"out" short:"o" description:"Directory the result files are written to" default:"results"`
	MaxCandidates int             `long:"candidates" description:"Candidate route budget per payment shard" default:"10"`
	Workers       int             `long:"workers" description:"Concurrent payment workers (0 for one per CPU)"`
	Prometheus    string          `long:"prometheus" description:"Serve Prometheus metrics on this address while the run lasts"`
	DebugLevel    string          `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}" default:"info"`

	Args struct {
		GraphFile string `positional-arg-name:"graph-file" description:"Path to the JSON topology snapshot"`
	} `positional-args:"yes" required:"yes"`
}

// loadConfig parses and validates the command line.
func loadConfig(args []string) (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Amount == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if cfg.Pairs <= 0 {
		return nil, fmt.Errorf("number of pairs must be positive")
	}
	for _, percent := range cfg.Adversaries {
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("adversary percentage %d out "+
				"of range", percent)
		}
	}

	if _, err := cfg.strategy(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// strategy derives the adversary selection strategy from the given flags.
func (cfg *config) strategy() (adversary.Strategy, error) {
	switch {
	case cfg.Random:
		return adversary.StrategyRandom, nil

	case cfg.Betweenness != "":
		return adversary.StrategyBetweenness, nil

	case cfg.Degree != "":
		return adversary.StrategyDegree, nil

	case cfg.Score != "":
		return adversary.StrategyScore, nil

	case len(cfg.Adversaries) == 0:
		// No adversary evaluation requested, the strategy is moot.
		return adversary.StrategyRandom, nil

	default:
		return 0, fmt.Errorf("adversary fractions given but no " +
			"selection strategy; pass --random or one of -b, " +
			"-d, -c")
	}
}

// rankingFile returns the ranking file backing the chosen strategy, if any.
func (cfg *config) rankingFile() string {
	switch {
	case cfg.Random:
		return ""
	case cfg.Betweenness != "":
		return cfg.Betweenness
	case cfg.Degree != "":
		return cfg.Degree
	case cfg.Score != "":
		return cfg.Score
	default:
		return ""
	}
}
