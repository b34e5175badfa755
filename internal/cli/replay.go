package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/person"
	"github.com/roach88/personmod/internal/store"
)

// ReplayOutput is the replay command's result payload.
type ReplayOutput struct {
	Replayed      int    `json:"replayed"`
	Skipped       int    `json:"skipped"`
	SourceHash    string `json:"source_hash"`
	ReplayHash    string `json:"replay_hash"`
	Deterministic bool   `json:"deterministic"`
}

// String renders the replay summary for text output.
func (r ReplayOutput) String() string {
	verdict := "deterministic"
	if !r.Deterministic {
		verdict = "MISMATCH"
	}
	return fmt.Sprintf("replayed %d calls (%d skipped)\nsource %s\nreplay %s\n%s",
		r.Replayed, r.Skipped, r.SourceHash, r.ReplayHash, verdict)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Re-run the call log and verify the resulting state",
		Long: `Re-execute every committed call from the database's call log against
an empty in-memory store, then compare state hashes.

Exits 1 when the replayed state differs from the stored state.

Examples:
  personmod replay
  personmod replay --db people.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runReplay(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	src, def, err := opts.openStore()
	if err != nil {
		return err
	}
	defer src.Close()

	reg, err := person.NewRegistry()
	if err != nil {
		return WrapExitError(ExitCommandError, "load module", err)
	}

	dst := store.NewMemory(def)
	defer dst.Close()

	res, err := host.Replay(ctx, src, dst, def, reg, host.WithLogger(opts.log.Named("replay")))
	if err != nil {
		return WrapExitError(ExitCommandError, "replay", err)
	}

	result := ReplayOutput{
		Replayed:      res.Replayed,
		Skipped:       res.Skipped,
		SourceHash:    res.SourceHash,
		ReplayHash:    res.ReplayHash,
		Deterministic: res.Deterministic(),
	}
	opts.log.Debug("replay finished",
		zap.Int("replayed", result.Replayed),
		zap.Bool("deterministic", result.Deterministic),
	)

	out := opts.formatter(cmd)
	if err := out.Success(result); err != nil {
		return err
	}
	if !result.Deterministic {
		return NewExitError(ExitFailure, "replayed state does not match stored state")
	}
	return nil
}
