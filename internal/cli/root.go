// Package cli implements the personmod command.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/personmod/internal/config"
	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/logging"
	"github.com/roach88/personmod/internal/person"
	"github.com/roach88/personmod/internal/store"
)

// RootOptions holds global flags and what PersistentPreRunE builds from them.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "json" | "text"

	cfg *config.Config
	log *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the personmod command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "personmod",
		Short: "PersonRegistry module host",
		Long: `personmod hosts the PersonRegistry module: a person table and the
add_person and say_hello reducers, persisted in SQLite.

Configuration comes from personmod.toml (or --config), PERSONMOD_*
environment variables and flags, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default ./personmod.toml if present)")
	pf.String("db", "personmod.db", "path to SQLite database")
	pf.Int64("max-rows", 0, "row limit per table (0 = unlimited)")
	pf.Bool("log-json", false, "write logs as JSON")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logs")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCallCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDescribeCommand(opts))
	cmd.AddCommand(NewCallsCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "init logging", err)
	}
	o.cfg = cfg
	o.log = log
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openStore opens the configured database for the PersonRegistry module.
func (o *RootOptions) openStore() (*store.SQLite, *ir.ModuleDef, error) {
	def, err := person.Definition()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load module", err)
	}
	st, err := store.Open(o.cfg.Database.Path, def, store.WithMaxRows(o.cfg.Database.MaxRows))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}
	o.log.Debug("database open",
		zap.String("path", o.cfg.Database.Path),
		zap.Int64("max_rows", o.cfg.Database.MaxRows),
	)
	return st, def, nil
}

// withHost runs fn against a host serving st, then stops the host.
func (o *RootOptions) withHost(ctx context.Context, st store.Store, fn func(*host.Host) error) error {
	h, err := person.NewHost(st, host.WithLogger(o.log))
	if err != nil {
		return WrapExitError(ExitCommandError, "start host", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(runCtx) }()

	fnErr := fn(h)
	h.Stop()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return errors.CombineErrors(fnErr, err)
	}
	return fnErr
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(stderr, "Hint: %s\n", hint)
	}
	return GetExitCode(err)
}
