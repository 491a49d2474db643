package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/idbtx/internal/harness"
	"github.com/roach88/idbtx/internal/store"
	"github.com/roach88/idbtx/internal/telemetry"
	"github.com/roach88/idbtx/internal/trace"
)

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name          string                       `json:"name"`
	File          string                       `json:"file"`
	Pass          bool                         `json:"pass"`
	Ticks         int64                        `json:"ticks"`
	Digest        string                       `json:"digest,omitempty"`
	RunID         string                       `json:"run_id,omitempty"`
	GoldenUpdated bool                         `json:"golden_updated,omitempty"`
	Errors        []string                     `json:"errors,omitempty"`
	Transactions  map[string]harness.TxOutcome `json:"transactions,omitempty"`
	Trace         []trace.Event                `json:"trace,omitempty"`
	Metrics       map[string]float64           `json:"metrics,omitempty"`

	scenario *harness.Scenario
	result   *harness.Result
}

// fail marks the result failed with msg.
func (r *ScenarioResult) fail(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}

// execConfig configures one scenario execution.
type execConfig struct {
	logger   *slog.Logger
	maxTicks int
	metrics  bool
}

// executeScenario loads and runs one scenario file. Load and setup
// failures are reported in the result rather than returned.
func executeScenario(path string, cfg execConfig) ScenarioResult {
	res := ScenarioResult{Name: scenarioName(path), File: path}

	scenario, err := LoadScenarioFile(path)
	if err != nil {
		res.fail(fmt.Sprintf("failed to load scenario: %v", err))
		return res
	}
	res.Name = scenario.Name
	res.scenario = scenario

	opts := []harness.Option{harness.WithLogger(cfg.logger)}
	if cfg.maxTicks > 0 {
		opts = append(opts, harness.WithTickLimit(cfg.maxTicks))
	}

	var reg *prometheus.Registry
	if cfg.metrics {
		reg = prometheus.NewRegistry()
		m, err := telemetry.NewMetrics(reg)
		if err != nil {
			res.fail(fmt.Sprintf("failed to register metrics: %v", err))
			return res
		}
		opts = append(opts, harness.WithObserver(m))
	}

	result, err := harness.Run(scenario, opts...)
	if err != nil {
		res.fail(fmt.Sprintf("execution failed: %v", err))
		return res
	}

	res.result = result
	res.Pass = result.Pass
	res.Ticks = result.Ticks
	res.Errors = append(res.Errors, result.Errors...)
	res.Transactions = result.Transactions

	digest, err := harness.Digest(scenario.Name, result)
	if err != nil {
		res.fail(fmt.Sprintf("failed to digest trace: %v", err))
	}
	res.Digest = digest

	if reg != nil {
		counters, err := gatherCounters(reg)
		if err != nil {
			res.fail(fmt.Sprintf("failed to gather metrics: %v", err))
		}
		res.Metrics = counters
	}
	return res
}

// gatherCounters flattens every counter in reg to "name{k=v,...}" keys.
func gatherCounters(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			out[key] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}

// recordRuns appends executed scenarios to the trace log at path and sets
// their run IDs. Results that never ran are skipped.
func recordRuns(ctx context.Context, path string, results []ScenarioResult) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	for i := range results {
		res := &results[i]
		if res.result == nil {
			continue
		}

		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate run id: %w", err)
		}
		run := store.Run{
			ID:       id.String(),
			Scenario: res.Name,
			Passed:   res.Pass,
			Ticks:    res.Ticks,
			Digest:   res.Digest,
			Errors:   res.Errors,
		}
		if err := st.WriteRun(ctx, run); err != nil {
			return err
		}
		if err := st.WriteEvents(ctx, run.ID, res.result.Trace); err != nil {
			return err
		}
		res.RunID = run.ID
	}
	return nil
}

// writeTrace renders events one per line.
func writeTrace(w io.Writer, events []trace.Event) {
	for _, ev := range events {
		fmt.Fprintf(w, "  [%d] tick %d %s", ev.Seq, ev.Tick, ev.Label())
		if ev.Error != "" {
			fmt.Fprintf(w, " (%s)", ev.Error)
		}
		if ev.Detail != "" {
			fmt.Fprintf(w, " %s", ev.Detail)
		}
		fmt.Fprintln(w)
	}
}

// writeStatus renders the pass/fail line and errors of one result.
func writeStatus(w io.Writer, res ScenarioResult) {
	mark := "\u2713"
	if !res.Pass {
		mark = "\u2717"
	}
	suffix := ""
	if res.GoldenUpdated {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(w, "%s %s%s\n", mark, res.Name, suffix)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// writeTransactions renders the final transaction states in label order.
func writeTransactions(w io.Writer, txs map[string]harness.TxOutcome) {
	for _, label := range sortedKeys(txs) {
		tx := txs[label]
		line := fmt.Sprintf("  %s [%s] %s %s", label, tx.ID, tx.Mode, tx.State)
		if tx.Error != "" {
			line += " " + tx.Error
		}
		fmt.Fprintln(w, line)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
