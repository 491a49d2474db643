package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/idbtx/internal/store"
	"github.com/roach88/idbtx/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Scenario string // optional - filter runs by scenario name
	Target   string // optional - filter events by target label
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID       string   `json:"id"`
	Scenario string   `json:"scenario"`
	Passed   bool     `json:"passed"`
	Ticks    int64    `json:"ticks"`
	Digest   string   `json:"digest"`
	Errors   []string `json:"errors,omitempty"`
}

// TraceResult holds one recorded run and its events.
type TraceResult struct {
	Run    RunSummary    `json:"run"`
	Events []trace.Event `json:"events"`
	Stats  TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for a run.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByType      map[string]int `json:"by_type"`
	LastTick    int64          `json:"last_tick"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Inspect recorded scenario runs",
		Long: `Inspect the runs recorded by "idbtx run --db" and "idbtx test --db".

Without a run ID, lists every recorded run in recording order. With a run
ID, prints that run's event deliveries and summary statistics.

Examples:
  idbtx trace --db ./runs.db
  idbtx trace --db ./runs.db --scenario constraint-abort
  idbtx trace --db ./runs.db 01927b3e-... --target tx1
  idbtx trace --db ./runs.db 01927b3e-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace log (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "list only runs of this scenario")
	cmd.Flags().StringVar(&opts.Target, "target", "", "show only events delivered to this target")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if runID == "" {
		return listRuns(ctx, st, opts, formatter)
	}

	run, events, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	result := TraceResult{
		Run:    summarizeRun(run),
		Events: filterEvents(events, opts.Target),
	}
	result.Stats = traceStats(result.Events)

	return formatter.Emit(result, func(w io.Writer) {
		outputTraceText(w, result)
	})
}

func listRuns(ctx context.Context, st *store.Store, opts *TraceOptions, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx, opts.Scenario)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, summarizeRun(run))
	}

	return formatter.Emit(summaries, func(w io.Writer) {
		if len(summaries) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return
		}
		for _, run := range summaries {
			fmt.Fprintf(w, "%s  %s  %s  %d ticks  %s\n",
				run.ID, passLabel(run.Passed), run.Scenario, run.Ticks, truncateID(run.Digest))
		}
	})
}

func summarizeRun(run store.Run) RunSummary {
	return RunSummary{
		ID:       run.ID,
		Scenario: run.Scenario,
		Passed:   run.Passed,
		Ticks:    run.Ticks,
		Digest:   run.Digest,
		Errors:   run.Errors,
	}
}

// filterEvents keeps the events delivered to target. An empty target
// keeps everything.
func filterEvents(events []trace.Event, target string) []trace.Event {
	if target == "" {
		return events
	}
	out := []trace.Event{}
	for _, ev := range events {
		if ev.Target == target {
			out = append(out, ev)
		}
	}
	return out
}

func traceStats(events []trace.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events), ByType: make(map[string]int)}
	for _, ev := range events {
		stats.ByType[ev.Type]++
		stats.LastTick = max(stats.LastTick, ev.Tick)
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Scenario: %s\n", result.Run.Scenario)
	fmt.Fprintf(w, "Status: %s\n", passLabel(result.Run.Passed))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		writeTrace(w, result.Events)
	}
	fmt.Fprintln(w)

	if len(result.Run.Errors) > 0 {
		fmt.Fprintln(w, "=== Errors ===")
		for _, e := range result.Run.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	for _, typ := range sortedKeys(result.Stats.ByType) {
		fmt.Fprintf(w, "  %-12s  %d\n", typ+":", result.Stats.ByType[typ])
	}
	fmt.Fprintf(w, "  Last Tick:    %d\n", result.Stats.LastTick)
}

func passLabel(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

// truncateID shortens long identifiers for display.
func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
