// paysim-batch sweeps the full evaluation grid: every amount of the ladder
// times both routing metrics times single and multi path delivery, all over
// one shared sample of payment pairs. Combinations run in parallel and each
// produces its own result file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/btcsuite/btclog/v2"
	flags "github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/build"
	"github.com/lnresearch/paysim/netparse"
	"github.com/lnresearch/paysim/oracle"
	"github.com/lnresearch/paysim/payments"
	"github.com/lnresearch/paysim/results"
	"github.com/lnresearch/paysim/routing"
	"github.com/lnresearch/paysim/sim"
	"github.com/lnresearch/paysim/simgraph"
)

const (
	exitOK            = 0
	exitRunError      = 1
	exitInvalidConfig = 2
	exitBadInput      = 3
)

// amountLadderSat is the payment amount sweep, in satoshis.
var amountLadderSat = []uint64{
	100, 500, 1000, 5000, 10_000, 50_000, 100_000, 500_000, 1_000_000,
	5_000_000, 10_000_000,
}

// config holds the batch driver's command line options.
//
//nolint:lll
type config struct {
	Run         uint64          `long:"run" short:"r" description:"Seed all randomness of the runs derives from" default:"19"`
	Pairs       int             `long:"pairs" short:"n" description:"Number of (source, destination) pairs shared by all combinations" default:"5000"`
	MinShard    uint64          `long:"min" description:"Minimum shard amount in msat when splitting" default:"1000"`
	GraphSource netparse.Source `long:"graph-source" description:"Dialect of the topology file (lnd or lnr)" default:"lnd"`
	Adversaries []int           `long:"adversaries" description:"Adversary percentage to evaluate; may be given multiple times"`
	Random      bool            `long:"random" description:"Sample adversaries uniformly at random"`
	Betweenness string          `long:"betweenness" short:"b" description:"Ranking file for the betweenness strategy"`
	OutputDir   string          `long:"out" short:"o" description:"Directory the result files are written to" default:"results"`
	Combos      int             `long:"parallel" description:"Combinations evaluated in parallel" default:"2"`
	DebugLevel  string          `long:"debuglevel" description:"Logging level for all subsystems" default:"info"`

	Args struct {
		GraphFile string `positional-arg-name:"graph-file" description:"Path to the JSON topology snapshot"`
	} `positional-args:"yes" required:"yes"`
}

// combo is one cell of the evaluation grid.
type combo struct {
	amount simgraph.MilliSatoshi
	metric routing.Metric
	split  bool
}

func (c combo) suffix() string {
	parts := "single"
	if c.split {
		parts = "mpp"
	}

	return fmt.Sprintf("%s_%s_%dsat", c.metric, parts,
		c.amount.ToSatoshis())
}

var log btclog.Logger

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if fe, ok := err.(*flags.Error); ok &&
			fe.Type == flags.ErrHelp {

			return exitOK
		}
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)

		return exitInvalidConfig
	}

	mgr := build.NewSubLoggerManager(build.NewConsoleHandler(false))
	log = mgr.GenSubLogger("BTCH")
	simgraph.UseLogger(mgr.GenSubLogger(simgraph.Subsystem))
	netparse.UseLogger(mgr.GenSubLogger(netparse.Subsystem))
	oracle.UseLogger(mgr.GenSubLogger(oracle.Subsystem))
	routing.UseLogger(mgr.GenSubLogger(routing.Subsystem))
	payments.UseLogger(mgr.GenSubLogger(payments.Subsystem))
	adversary.UseLogger(mgr.GenSubLogger(adversary.Subsystem))
	sim.UseLogger(mgr.GenSubLogger(sim.Subsystem))
	if err := build.ParseAndSetDebugLevels(cfg.DebugLevel, mgr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitInvalidConfig
	}

	top, err := netparse.ParseFile(cfg.Args.GraphFile, cfg.GraphSource)
	if err != nil {
		log.Errorf("Unable to read topology: %v", err)
		return exitBadInput
	}
	graph, stats, err := simgraph.Build(top, nil)
	if err != nil {
		log.Errorf("Unable to build graph: %v", err)
		return exitBadInput
	}
	log.Infof("Graph ready: %d nodes, %d channels (%d dropped)",
		graph.NodeCount(), graph.ChannelCount(), stats.Dropped())

	strategy := adversary.StrategyRandom
	var ranking adversary.Ranking
	if !cfg.Random && cfg.Betweenness != "" {
		strategy = adversary.StrategyBetweenness
		ranking, err = adversary.LoadRanking(cfg.Betweenness, graph)
		if err != nil {
			log.Errorf("Unable to read ranking: %v", err)
			return exitBadInput
		}
	}
	if len(cfg.Adversaries) > 0 && !cfg.Random && len(ranking) == 0 {

		fmt.Fprintln(os.Stderr, "invalid configuration: adversary "+
			"fractions given but no selection strategy")

		return exitInvalidConfig
	}

	var combos []combo
	for _, sat := range amountLadderSat {
		for _, metric := range []routing.Metric{
			routing.MetricMinFee, routing.MetricMaxProb,
		} {
			for _, split := range []bool{false, true} {
				combos = append(combos, combo{
					amount: simgraph.NewMSatFromSatoshis(
						sat,
					),
					metric: metric,
					split:  split,
				})
			}
		}
	}

	log.Infof("Sweeping %d combinations of %d pairs each, run seed %d",
		len(combos), cfg.Pairs, cfg.Run)

	group, ctx := errgroup.WithContext(context.Background())
	group.SetLimit(cfg.Combos)

	for _, c := range combos {
		group.Go(func() error {
			return runCombo(ctx, graph, cfg, c, strategy, ranking)
		})
	}

	if err := group.Wait(); err != nil {
		log.Errorf("Batch failed: %v", err)
		return exitRunError
	}

	log.Infof("Batch complete, results in %v", cfg.OutputDir)

	return exitOK
}

// runCombo evaluates one grid cell and writes its result file. All cells
// share the run seed, so they sample identical pairs and identical initial
// balances: only the knob under study varies.
func runCombo(ctx context.Context, graph *simgraph.Graph, cfg *config,
	c combo, strategy adversary.Strategy,
	ranking adversary.Ranking) error {

	simulation, err := sim.New(graph, sim.Config{
		Amount:             c.amount,
		Seed:               cfg.Run,
		NumPairs:           cfg.Pairs,
		Split:              c.split,
		Metric:             c.metric,
		MinShard:           simgraph.MilliSatoshi(cfg.MinShard),
		AdversaryFractions: cfg.Adversaries,
		AdversaryStrategy:  strategy,
		Ranking:            ranking,
		// Combinations already run in parallel; keep each one
		// single-threaded so the grid scales with cores without
		// oversubscription.
		Workers: 1,
	})
	if err != nil {
		return err
	}

	result, err := simulation.Run(ctx)
	if err != nil {
		return fmt.Errorf("combination %v: %w", c.suffix(), err)
	}

	writer, err := results.Create(cfg.OutputDir, cfg.Run, c.suffix())
	if err != nil {
		return err
	}
	defer writer.Close()

	if err := writer.WriteRun(graph, result); err != nil {
		return fmt.Errorf("combination %v: %w", c.suffix(), err)
	}

	summary := result.Summarize()
	log.Infof("Combination %v done: %d/%d succeeded", c.suffix(),
		summary.Succeeded, summary.TotalPayments)

	return nil
}
