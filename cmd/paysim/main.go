package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	flags "github.com/jessevdk/go-flags"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/monitoring"
	"github.com/lnresearch/paysim/netparse"
	"github.com/lnresearch/paysim/results"
	"github.com/lnresearch/paysim/sim"
	"github.com/lnresearch/paysim/simgraph"
)

// Exit codes: 0 on a complete run, 2 on invalid configuration, 3 on
// unreadable inputs.
const (
	exitOK            = 0
	exitRunError      = 1
	exitInvalidConfig = 2
	exitBadInput      = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := loadConfig(args)
	if err != nil {
		// The help pseudo-error has already printed usage.
		var flagErr *flags.Error
		if ok := asFlagsErr(err, &flagErr); ok &&
			flagErr.Type == flags.ErrHelp {

			return exitOK
		}
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)

		return exitInvalidConfig
	}

	if err := setupLogging(cfg.DebugLevel); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitInvalidConfig
	}

	if cfg.Prometheus != "" {
		monitoring.Serve(cfg.Prometheus)
		log.Infof("Serving Prometheus metrics on %v", cfg.Prometheus)
	}

	// Load and reduce the topology.
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

	// Load the adversary ranking if a ranked strategy was chosen.
	strategy, err := cfg.strategy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitInvalidConfig
	}
	var ranking adversary.Ranking
	if path := cfg.rankingFile(); path != "" {
		ranking, err = adversary.LoadRanking(path, graph)
		if err != nil {
			log.Errorf("Unable to read ranking: %v", err)
			return exitBadInput
		}
	}

	simulation, err := sim.New(graph, sim.Config{
		Amount:             simgraph.MilliSatoshi(cfg.Amount),
		Seed:               cfg.Run,
		NumPairs:           cfg.Pairs,
		Split:              cfg.Split,
		Metric:             cfg.PathMetric,
		MinShard:           simgraph.MilliSatoshi(cfg.MinShard),
		MaxCandidates:      cfg.MaxCandidates,
		AdversaryFractions: cfg.Adversaries,
		AdversaryStrategy:  strategy,
		Ranking:            ranking,
		Workers:            cfg.Workers,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitInvalidConfig
	}

	log.Infof("Starting run %d: %d pairs of %v, metric=%v, split=%v",
		cfg.Run, cfg.Pairs, simgraph.MilliSatoshi(cfg.Amount),
		cfg.PathMetric, cfg.Split)

	result, err := simulation.Run(context.Background())
	if err != nil {
		log.Errorf("Simulation failed: %v", err)
		return exitRunError
	}

	writer, err := results.Create(cfg.OutputDir, cfg.Run, "")
	if err != nil {
		log.Errorf("Unable to open result file: %v", err)
		return exitRunError
	}
	if err := writer.WriteRun(graph, result); err != nil {
		writer.Close()
		log.Errorf("Unable to write results: %v", err)

		return exitRunError
	}
	if err := writer.Close(); err != nil {
		log.Errorf("Unable to close result file: %v", err)
		return exitRunError
	}

	printSummary(result)

	return exitOK
}

// printSummary renders the run's headline numbers.
func printSummary(result *sim.RunResult) {
	summary := result.Summarize()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{
		"Payments", "Succeeded", "Success rate", "Mean fee (msat)",
		"Mean attempts", "Mean parts",
	})
	t.AppendRow(table.Row{
		summary.TotalPayments,
		summary.Succeeded,
		fmt.Sprintf("%.2f%%", summary.SuccessRate*100),
		fmt.Sprintf("%.1f", summary.MeanFee),
		fmt.Sprintf("%.2f", summary.MeanAttempts),
		fmt.Sprintf("%.2f", summary.MeanParts),
	})
	t.Render()

	if len(result.Adversaries) == 0 {
		return
	}

	at := table.NewWriter()
	at.SetOutputMirror(os.Stdout)
	at.AppendHeader(table.Row{
		"Adversaries", "Observation rate", "Pred attack",
		"Succ attack", "Vulnerable",
	})
	for _, report := range result.Adversaries {
		at.AppendRow(table.Row{
			fmt.Sprintf("%d%% (%d)", report.Percent,
				report.Count),
			fmt.Sprintf("%.3f", report.ObservationRate),
			fmt.Sprintf("%.3f", report.PredAttackProb),
			fmt.Sprintf("%.3f", report.SuccAttackProb),
			fmt.Sprintf("%.3f", report.VulnerableRate),
		})
	}
	at.Render()
}

// asFlagsErr unwraps a go-flags error.
func asFlagsErr(err error, target **flags.Error) bool {
	fe, ok := err.(*flags.Error)
	if ok {
		*target = fe
	}

	return ok
}
