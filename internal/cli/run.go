package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	MaxTicks int
	Metrics  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run one scenario and print its trace",
		Long: `Run a single YAML or CUE scenario against a fresh scheduler and
database and print every event delivery in order, the final state of each
transaction and the assertion results.

With --db the run and its trace are appended to a SQLite trace log that
can be inspected later with "idbtx trace".

Examples:
  idbtx run scenarios/constraint_abort.yaml
  idbtx run scenarios/readers.cue --db ./runs.db --metrics
  idbtx run scenarios/loop.yaml --max-ticks 50 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "append the run to this SQLite trace log")
	cmd.Flags().IntVar(&opts.MaxTicks, "max-ticks", 0, "scheduler tick budget (overrides the scenario)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report transaction and request counters")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := LoadScenarioFile(path); err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	formatter.VerboseLog("Running scenario %s", path)
	results := []ScenarioResult{executeScenario(path, execConfig{
		logger:   opts.Logger(formatter.GetErrWriter()),
		maxTicks: opts.MaxTicks,
		metrics:  opts.Metrics,
	})}

	if opts.Database != "" {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := recordRuns(ctx, opts.Database, results); err != nil {
			_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		formatter.VerboseLog("Recorded run %s in %s", results[0].RunID, opts.Database)
	}

	res := results[0]
	if res.result != nil {
		res.Trace = res.result.Trace
	}

	text := func(w io.Writer) {
		writeTrace(w, res.Trace)
		if len(res.Transactions) > 0 {
			fmt.Fprintln(w, "Transactions:")
			writeTransactions(w, res.Transactions)
		}
		if len(res.Metrics) > 0 {
			fmt.Fprintln(w, "Metrics:")
		}
		for _, key := range sortedKeys(res.Metrics) {
			fmt.Fprintf(w, "  %s %g\n", key, res.Metrics[key])
		}
		if res.RunID != "" {
			fmt.Fprintf(w, "Run: %s\n", res.RunID)
		}
		fmt.Fprintf(w, "Digest: %s (%d ticks)\n", res.Digest, res.Ticks)
		writeStatus(w, res)
	}

	if !res.Pass {
		if err := formatter.Fail(ErrCodeTestFailed, "scenario failed", res, text); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", res.Name))
	}
	return formatter.Emit(res, text)
}

// loadErrorCode is the code carried by a LoadError, or the generic code.
func loadErrorCode(err error) string {
	if le, ok := err.(*LoadError); ok {
		return le.Code
	}
	return ErrCodeGeneric
}
