package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/personmod/internal/ir"
)

// CallsOptions holds flags for the calls command.
type CallsOptions struct {
	*RootOptions
	Reducer string
}

// CallLogEntry pairs an invocation with its completion, if any.
type CallLogEntry struct {
	Invocation ir.Invocation  `json:"invocation"`
	Completion *ir.Completion `json:"completion,omitempty"`
}

// NewCallsCommand creates the calls command.
func NewCallsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Print the call log",
		Long: `Print every recorded call in seq order with its outcome.

Rejected calls never reach the log. A call without an outcome was
interrupted before it finished.

Examples:
  personmod calls
  personmod calls --reducer add_person --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalls(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Reducer, "reducer", "", "only show calls to this reducer")

	return cmd
}

func runCalls(ctx context.Context, opts *CallsOptions, cmd *cobra.Command) error {
	st, _, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	invs, comps, err := st.ReadCalls(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "read call log", err)
	}
	entries := joinCalls(invs, comps, opts.Reducer)

	out := opts.formatter(cmd)
	if out.JSON() {
		return out.Success(entries)
	}
	if len(entries) == 0 {
		return out.Success("No calls recorded.")
	}

	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tREDUCER\tCALLER\tOUTCOME\tARGS")
	for _, e := range entries {
		outcome := "pending"
		if e.Completion != nil {
			outcome = e.Completion.Outcome
		}
		args, err := e.Invocation.Args.MarshalJSON()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.Invocation.Seq, e.Invocation.Reducer, e.Invocation.Caller.Identity, outcome, args)
	}
	return tw.Flush()
}

// joinCalls matches completions to invocations, keeping invocation order.
func joinCalls(invs []ir.Invocation, comps []ir.Completion, reducer string) []CallLogEntry {
	byInv := make(map[string]*ir.Completion, len(comps))
	for i := range comps {
		byInv[comps[i].InvocationID] = &comps[i]
	}

	entries := make([]CallLogEntry, 0, len(invs))
	for _, inv := range invs {
		if reducer != "" && inv.Reducer != reducer {
			continue
		}
		entries = append(entries, CallLogEntry{Invocation: inv, Completion: byInv[inv.ID]})
	}
	return entries
}
