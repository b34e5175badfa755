package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/personmod/internal/harness"
	"github.com/roach88/personmod/internal/person"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // glob over scenario file names
	Golden string // directory of <scenario>.golden snapshots
	Update bool   // rewrite golden files instead of comparing
}

// ScenarioResult holds the result of a single scenario.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall result.
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
		Use:   "test <scenario-path>...",
		Short: "Run scenario files against the module",
		Long: `Run YAML scenarios against a fresh in-memory copy of the module,
checking each step's expected outcome and the scenario's assertions.

With --golden, each scenario's trace and final state are also compared
with <dir>/<scenario>.golden; --update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  personmod test ./scenarios
  personmod test ./scenarios --filter "dup*"
  personmod test ./scenarios --golden ./golden --update
  personmod test ./scenarios/capacity.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden snapshots")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden snapshots (requires --golden)")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, paths []string, cmd *cobra.Command) error {
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	files, err := harness.FindScenarios(paths...)
	if err != nil {
		return WrapExitError(ExitCommandError, "find scenarios", err)
	}
	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "filter scenarios", err)
	}

	def, err := person.Definition()
	if err != nil {
		return WrapExitError(ExitCommandError, "load module", err)
	}
	reg, err := person.NewRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "load module", err)
	}
	h, err := harness.New(def, reg, harness.WithLogger(opts.log.Named("harness")))
	if err != nil {
		return WrapExitError(ExitCommandError, "create harness", err)
	}

	out := opts.formatter(cmd)
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(ctx, h, file, opts)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
		if !out.JSON() {
			writeScenarioResult(out.Writer, sr)
		}
	}

	if out.JSON() {
		if err := out.Success(result); err != nil {
			return err
		}
	} else if result.Total == 0 {
		fmt.Fprintln(out.Writer, "No scenarios found.")
	} else {
		fmt.Fprintf(out.Writer, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

func filterScenarios(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid filter pattern %q", pattern)
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func runScenario(ctx context.Context, h *harness.Harness, file string, opts *TestOptions) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}

	s, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("load: %v", err)}
		return sr
	}
	sr.Name = s.Name

	res, err := h.Run(ctx, s)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("run: %v", err)}
		return sr
	}
	sr.Pass = res.Pass
	sr.Errors = res.Errors

	if opts.Golden != "" {
		if err := checkGolden(opts.Golden, s.Name, res, opts.Update); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
		}
	}
	return sr
}

// checkGolden compares res with <dir>/<name>.golden, or rewrites it when
// update is set. A missing golden file is only an error when comparing.
func checkGolden(dir, name string, res *harness.Result, update bool) error {
	data, err := harness.MarshalSnapshot(name, res)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	path := filepath.Join(dir, name+".golden")

	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create golden directory")
		}
		return errors.Wrap(os.WriteFile(path, data, 0o644), "write golden file")
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return errors.WithHint(errors.Wrap(err, "read golden file"), "run with --update to create it")
	}
	if !bytes.Equal(want, data) {
		return errors.Newf("trace differs from %s", path)
	}
	return nil
}

func writeScenarioResult(w io.Writer, sr ScenarioResult) {
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
