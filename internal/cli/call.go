package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Args   string
	Caller string
}

// CallOutput is the result of one call.
type CallOutput struct {
	Reducer      string `json:"reducer"`
	RequestID    string `json:"request_id"`
	InvocationID string `json:"invocation_id"`
	Seq          int64  `json:"seq"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
}

func (c CallOutput) String() string {
	s := fmt.Sprintf("%s %s (seq %d, request %s)", c.Reducer, c.Outcome, c.Seq, c.RequestID)
	if c.Error != "" {
		s += ": " + c.Error
	}
	return s
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <reducer>",
		Short: "Call a reducer",
		Long: `Call a reducer once and record it in the call log.

Exit codes:
  0 - The call committed
  1 - The reducer ran and failed; nothing was written
  2 - The call was rejected (unknown reducer, bad args) or the database failed

Examples:
  personmod call add_person --args '{"name":"Ada","age":30}'
  personmod call say_hello
  personmod call add_person --args '{"name":"Bob","age":25}' --caller bob --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "reducer arguments as a JSON object")
	cmd.Flags().StringVar(&opts.Caller, "caller", "cli", "caller identity recorded in the call log")

	return cmd
}

func runCall(ctx context.Context, opts *CallOptions, reducer string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	var args ir.IRObject
	if err := args.UnmarshalJSON([]byte(opts.Args)); err != nil {
		return WrapExitError(ExitCommandError, "invalid --args", err)
	}

	st, _, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	caller := ir.Caller{Identity: opts.Caller}
	return opts.withHost(ctx, st, func(h *host.Host) error {
		res, callErr := h.Call(ctx, reducer, args, caller)
		if res == nil {
			// Rejected before it was logged, or the host could not run it.
			if c := host.CodeOf(callErr); c != "" && out.JSON() {
				_ = out.Error(string(c), callErr.Error(), nil)
			}
			return WrapExitError(ExitCommandError, "call "+reducer, callErr)
		}

		result := CallOutput{
			Reducer:      reducer,
			RequestID:    res.RequestID,
			InvocationID: res.InvocationID,
			Seq:          res.Seq,
			Outcome:      res.Outcome,
		}
		if callErr != nil {
			result.Error = callErr.Error()
		}
		if err := out.Success(result); err != nil {
			return err
		}
		if callErr != nil {
			return WrapExitError(ExitFailure, "call "+reducer, callErr)
		}
		return nil
	})
}
