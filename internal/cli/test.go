package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/idbtx/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	Parallel int    // scenarios run concurrently
	Database string // optional trace log
	MaxTicks int
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every scenario file (.yaml, .yml, .cue) under a directory.

A scenario passes when all of its assertions hold and, if a golden file
exists at <dir>/golden/<name>.golden, its canonical trace matches it
byte for byte. Scenarios run concurrently; each owns its scheduler and
database.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  idbtx test ./scenarios
  idbtx test ./scenarios --filter "abort-*"
  idbtx test ./scenarios --update
  idbtx test ./scenarios --parallel 1 --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", runtime.NumCPU(), "number of scenarios to run concurrently")
	cmd.Flags().StringVar(&opts.Database, "db", "", "append every run to this SQLite trace log")
	cmd.Flags().IntVar(&opts.MaxTicks, "max-ticks", 0, "scheduler tick budget per scenario")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := FindScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(files) == 0 {
		return formatter.Emit(TestResult{Scenarios: []ScenarioResult{}}, func(w io.Writer) {
			fmt.Fprintln(w, "No scenarios found.")
		})
	}

	cfg := execConfig{
		logger:   opts.Logger(formatter.GetErrWriter()),
		maxTicks: opts.MaxTicks,
	}

	results := make([]ScenarioResult, len(files))
	var g errgroup.Group
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}
	for i, file := range files {
		formatter.VerboseLog("Running %s", file)
		g.Go(func() error {
			res := executeScenario(file, cfg)
			checkGolden(&res, opts.Update)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if opts.Database != "" {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := recordRuns(ctx, opts.Database, results); err != nil {
			_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record runs", err)
		}
	}

	summary := TestResult{Scenarios: results, Total: len(results)}
	for _, res := range results {
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	text := func(w io.Writer) {
		for _, res := range summary.Scenarios {
			writeStatus(w, res)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
		if summary.Failed == 0 {
			fmt.Fprintln(w, "\u2713 All scenarios passed")
		}
	}

	if summary.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", summary.Failed)
		if err := formatter.Fail(ErrCodeTestFailed, msg, summary, text); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Emit(summary, text)
}

// checkGolden compares res against its golden file, or rewrites the file
// when update is set. Scenarios without a golden file are judged by their
// assertions alone.
func checkGolden(res *ScenarioResult, update bool) {
	if res.result == nil {
		return
	}

	data, err := harness.Snapshot(res.scenario.Name, res.result)
	if err != nil {
		res.fail(fmt.Sprintf("failed to snapshot trace: %v", err))
		return
	}
	goldenPath := goldenFilePath(res.File)

	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			res.fail(fmt.Sprintf("failed to create golden directory: %v", err))
			return
		}
		if err := os.WriteFile(goldenPath, data, 0644); err != nil {
			res.fail(fmt.Sprintf("failed to write golden file: %v", err))
			return
		}
		res.GoldenUpdated = true
		return
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		res.fail(fmt.Sprintf("failed to read golden file: %v", err))
		return
	}
	if !bytes.Equal(golden, data) {
		res.fail("trace does not match golden file (run with --update to regenerate)")
	}
}
