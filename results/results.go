// Package results serializes simulation runs as a stream of structured
// JSON records, one value per line: a run header, one record per payment,
// one record per adversary report, and a closing summary.
package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lnresearch/paysim/payments"
	"github.com/lnresearch/paysim/sim"
	"github.com/lnresearch/paysim/simgraph"
)

// RunHeader opens a result stream.
type RunHeader struct {
	Record     string `json:"record"`
	Run        uint64 `json:"run"`
	AmountMsat uint64 `json:"amount_msat"`
	Metric     string `json:"metric"`
	Split      bool   `json:"split"`
	Pairs      int    `json:"pairs"`
	Skipped    int    `json:"skipped_pairs"`
	Nodes      int    `json:"nodes"`
	Channels   int    `json:"channels"`
}

// HopRecord is one hop of an attempted path.
type HopRecord struct {
	ChannelID string `json:"channel_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// AttemptRecord is one end-to-end try of a route.
type AttemptRecord struct {
	Shard      int    `json:"shard"`
	AmountMsat uint64 `json:"amount_msat"`
	Settled    bool   `json:"settled"`
	FeeMsat    uint64 `json:"fee_msat"`
	TimeLock   uint32 `json:"time_lock"`

	// FailedAtHop is the failing hop index, -1 for settled attempts.
	FailedAtHop  int         `json:"failed_at_hop"`
	FailureCause string      `json:"failure_cause,omitempty"`
	Path         []HopRecord `json:"path"`
}

// ObservationRecord is one node's view of the payment.
type ObservationRecord struct {
	Node       string `json:"node"`
	Role       string `json:"role"`
	AmountMsat uint64 `json:"amount_msat"`
	Pred       string `json:"pred,omitempty"`
	Succ       string `json:"succ,omitempty"`
}

// PaymentRecord is the full account of one payment.
type PaymentRecord struct {
	Record        string              `json:"record"`
	ID            int                 `json:"id"`
	Source        string              `json:"source"`
	Destination   string              `json:"destination"`
	AmountMsat    uint64              `json:"amount_msat"`
	Verdict       string              `json:"verdict"`
	Reason        string              `json:"reason,omitempty"`
	NumParts      int                 `json:"num_parts"`
	HTLCAttempts  int                 `json:"htlc_attempts"`
	TotalFeeMsat  uint64              `json:"total_fee_msat"`
	MaxPathLength int                 `json:"max_path_length"`
	Attempts      []AttemptRecord     `json:"attempts"`
	Observations  []ObservationRecord `json:"observations"`

	// PathDiversity holds the pairwise Jaccard distances between the
	// attempts' edge sets; only populated when more than one attempt
	// was made.
	PathDiversity []float64 `json:"path_diversity,omitempty"`
}

// AdversaryRecord is the aggregate of one adversary fraction.
type AdversaryRecord struct {
	Record          string  `json:"record"`
	Percent         int     `json:"percent"`
	Count           int     `json:"count"`
	SetHash         string  `json:"set_hash"`
	ObservationRate float64 `json:"observation_rate"`
	PredAttackProb  float64 `json:"pred_attack_prob"`
	SuccAttackProb  float64 `json:"succ_attack_prob"`
	VulnerableRate  float64 `json:"vulnerable_rate"`
}

// SummaryRecord closes a result stream.
type SummaryRecord struct {
	Record       string  `json:"record"`
	Payments     int     `json:"payments"`
	Succeeded    int     `json:"succeeded"`
	SuccessRate  float64 `json:"success_rate"`
	MeanFeeMsat  float64 `json:"mean_fee_msat"`
	MeanAttempts float64 `json:"mean_attempts"`
	MeanParts    float64 `json:"mean_parts"`
	MeanPathLen  float64 `json:"mean_path_len"`
}

// Writer emits a result stream.
type Writer struct {
	w   io.Writer
	c   io.Closer
	enc *json.Encoder
}

// Create opens a result file named run<seed>[_suffix].json inside dir,
// creating the directory as needed.
func Create(dir string, run uint64, suffix string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create output dir: %w", err)
	}

	name := fmt.Sprintf("run%d", run)
	if suffix != "" {
		name += "_" + suffix
	}
	path := filepath.Join(dir, name+".json")

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create result file: %w", err)
	}

	return &Writer{w: f, c: f, enc: json.NewEncoder(f)}, nil
}

// NewWriter wraps an arbitrary writer, mainly for tests.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, enc: json.NewEncoder(w)}
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if w.c != nil {
		return w.c.Close()
	}

	return nil
}

// WriteRun serializes a complete run result.
func (w *Writer) WriteRun(g *simgraph.Graph, result *sim.RunResult) error {
	header := RunHeader{
		Record:     "run",
		Run:        result.Config.Seed,
		AmountMsat: uint64(result.Config.Amount),
		Metric:     result.Config.Metric.String(),
		Split:      result.Config.Split,
		Pairs:      result.Config.NumPairs,
		Skipped:    result.SkippedPairs,
		Nodes:      g.NodeCount(),
		Channels:   g.ChannelCount(),
	}
	if err := w.enc.Encode(header); err != nil {
		return err
	}

	for i := range result.Payments {
		record := NewPaymentRecord(g, &result.Payments[i])
		if err := w.enc.Encode(record); err != nil {
			return err
		}
	}

	for _, report := range result.Adversaries {
		record := AdversaryRecord{
			Record:          "adversaries",
			Percent:         report.Percent,
			Count:           report.Count,
			SetHash:         report.SetHash,
			ObservationRate: report.ObservationRate,
			PredAttackProb:  report.PredAttackProb,
			SuccAttackProb:  report.SuccAttackProb,
			VulnerableRate:  report.VulnerableRate,
		}
		if err := w.enc.Encode(record); err != nil {
			return err
		}
	}

	summary := result.Summarize()
	return w.enc.Encode(SummaryRecord{
		Record:       "summary",
		Payments:     summary.TotalPayments,
		Succeeded:    summary.Succeeded,
		SuccessRate:  summary.SuccessRate,
		MeanFeeMsat:  summary.MeanFee,
		MeanAttempts: summary.MeanAttempts,
		MeanParts:    summary.MeanParts,
		MeanPathLen:  summary.MeanPathLen,
	})
}

// NewPaymentRecord flattens a payment outcome into its serialized form.
func NewPaymentRecord(g *simgraph.Graph,
	outcome *sim.PaymentOutcome) PaymentRecord {

	p := outcome.Payment
	record := PaymentRecord{
		Record:        "payment",
		ID:            p.ID,
		Source:        string(g.Node(p.Source).ID),
		Destination:   string(g.Node(p.Target).ID),
		AmountMsat:    uint64(p.Amount),
		Verdict:       outcome.Verdict.String(),
		NumParts:      outcome.NumParts(),
		HTLCAttempts:  outcome.HTLCAttempts,
		TotalFeeMsat:  uint64(outcome.TotalFees),
		MaxPathLength: outcome.MaxPathLength,
	}
	if outcome.Reason != payments.ReasonNone {
		record.Reason = outcome.Reason.String()
	}

	for _, shard := range outcome.Shards {
		for _, attempt := range shard.Attempts {
			record.Attempts = append(record.Attempts,
				newAttemptRecord(g, shard, attempt))
		}
	}

	if len(outcome.Observations.Attempts()) > 1 {
		record.PathDiversity = outcome.Observations.JaccardDistances()
	}

	for _, trace := range outcome.Observations.Attempts() {
		for _, obs := range trace.Observations {
			rec := ObservationRecord{
				Node:       string(g.Node(obs.Node).ID),
				Role:       obs.Role.String(),
				AmountMsat: uint64(obs.Amount),
			}
			if obs.Pred != simgraph.NoNode {
				rec.Pred = string(g.Node(obs.Pred).ID)
			}
			if obs.Succ != simgraph.NoNode {
				rec.Succ = string(g.Node(obs.Succ).ID)
			}
			record.Observations = append(record.Observations, rec)
		}
	}

	return record
}

func newAttemptRecord(g *simgraph.Graph, shard *payments.Shard,
	attempt *payments.Attempt) AttemptRecord {

	route := attempt.Route
	record := AttemptRecord{
		Shard:       shard.Index,
		AmountMsat:  uint64(route.ReceiverAmount()),
		Settled:     attempt.Settled,
		FeeMsat:     uint64(route.TotalFees),
		TimeLock:    route.TotalTimeLock,
		FailedAtHop: -1,
	}
	if attempt.Failure != nil {
		record.FailedAtHop = attempt.Failure.Hop
		record.FailureCause = attempt.Failure.Cause.String()
	}

	for _, hop := range route.Hops {
		edge := g.Edge(hop.Edge)
		record.Path = append(record.Path, HopRecord{
			ChannelID: edge.ChannelID,
			From:      string(g.Node(edge.From).ID),
			To:        string(g.Node(edge.To).ID),
		})
	}

	return record
}
