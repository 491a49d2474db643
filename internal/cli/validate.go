package cli

import (
	"fmt"
	"io"
	"os"

	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/cobra"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	File     string `json:"file"`
	Scenario string `json:"scenario,omitempty"`
	Valid    bool   `json:"valid"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate scenario files without running them",
		Long: `Parse and check scenario files without running them.

Each path may be a scenario file or a directory, which is searched
recursively. Checks syntax, CUE concreteness, unknown fields, operation
names, transaction modes and assertion references.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (path not found, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	files, err := collectScenarioFiles(paths)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		_ = formatter.Error(ErrCodeNoFiles, "no scenario files found", nil)
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		fv := ValidateScenarioFile(file)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	text := func(w io.Writer) {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(w, "\u2713 %s\n", fv.File)
				continue
			}
			fmt.Fprintf(w, "\u2717 %s\n", fv.File)
			if fv.Line > 0 {
				fmt.Fprintf(w, "  line %d\n", fv.Line)
			}
			fmt.Fprintf(w, "  %s: %s\n", fv.Code, fv.Message)
		}
	}

	if !result.Valid {
		invalid := 0
		for _, fv := range result.Files {
			if !fv.Valid {
				invalid++
			}
		}
		msg := fmt.Sprintf("validation failed for %d file(s)", invalid)
		if err := formatter.Fail(ErrCodeInvalidInput, msg, result, text); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Emit(result, text)
}

// collectScenarioFiles expands directories into the scenario files they
// contain. Plain files are kept as given.
func collectScenarioFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Path: p, Message: "path not found"}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := FindScenarioFiles(p, "")
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// ValidateScenarioFile loads one file and reports whether it is a valid
// scenario. CUE errors carry the line of their first position.
func ValidateScenarioFile(path string) FileValidation {
	fv := FileValidation{File: path}
	if !IsScenarioFile(path) {
		fv.Code = ErrCodeInvalidInput
		fv.Message = "not a scenario file (expected .yaml, .yml or .cue)"
		return fv
	}

	scenario, err := LoadScenarioFile(path)
	if err != nil {
		fv.Code = loadErrorCode(err)
		fv.Message = err.Error()
		if le, ok := err.(*LoadError); ok {
			fv.Message = le.Message
		}
		fv.Line = lineOf(err)
		return fv
	}

	fv.Valid = true
	fv.Scenario = scenario.Name
	return fv
}

// lineOf returns the line of the first CUE position in err, or 0.
func lineOf(err error) int {
	for _, pos := range cueerrors.Positions(err) {
		if pos.IsValid() {
			return pos.Line()
		}
	}
	return 0
}
