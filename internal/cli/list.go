package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/query"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Where string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "Print the rows of a table",
		Long: `Print every committed row of a table in primary key order.

--where takes a boolean expression over the table's columns.

Examples:
  personmod list person
  personmod list person --where 'age >= 18 && name startsWith "A"'
  personmod list person --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Where, "where", "", "filter expression")

	return cmd
}

func runList(ctx context.Context, opts *ListOptions, table string, cmd *cobra.Command) error {
	st, def, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	td, ok := def.Table(table)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown table %q", table))
	}

	var filter *query.Filter
	if opts.Where != "" {
		if filter, err = query.Compile(td, opts.Where); err != nil {
			return WrapExitError(ExitCommandError, "invalid --where", err)
		}
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "begin read", err)
	}
	rows, err := tx.Scan(ctx, table)
	_ = tx.Rollback()
	if err != nil {
		return WrapExitError(ExitCommandError, "scan "+table, err)
	}

	rows, err = query.Apply(rows, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "filter rows", err)
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		if rows == nil {
			rows = []ir.IRObject{}
		}
		return out.Success(rows)
	}
	return writeRows(out, td, rows)
}

// writeRows prints rows as an aligned table with a header.
func writeRows(out *OutputFormatter, td *ir.TableDef, rows []ir.IRObject) error {
	tw := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)
	names := make([]string, len(td.Columns))
	for i, c := range td.Columns {
		names[i] = strings.ToUpper(c.Name)
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))

	for _, row := range rows {
		cells := make([]string, len(td.Columns))
		for i, c := range td.Columns {
			cells[i] = formatCell(row[c.Name])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	out.VerboseLog("%d rows", len(rows))
	return nil
}

func formatCell(v ir.IRValue) string {
	switch val := v.(type) {
	case ir.IRString:
		if val == "" {
			return `""`
		}
		return string(val)
	case ir.IRInt:
		return fmt.Sprintf("%d", int64(val))
	case ir.IRBool:
		return fmt.Sprintf("%t", bool(val))
	default:
		return "-"
	}
}
