package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/person"
)

// DescribeOptions holds flags for the describe command.
type DescribeOptions struct {
	*RootOptions
	Source bool
}

// ModuleDescription is the describe command's JSON payload.
type ModuleDescription struct {
	*ir.ModuleDef
	Hash string `json:"hash"`
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DescribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the module's tables and reducers",
		Long: `Print the compiled module definition, or its CUE source with --source.

Examples:
  personmod describe
  personmod describe --source
  personmod describe --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Source, "source", false, "print the CUE declaration")

	return cmd
}

func runDescribe(opts *DescribeOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	if opts.Source {
		if out.JSON() {
			return out.Success(map[string]string{"source": person.Declaration()})
		}
		_, err := fmt.Fprint(out.Writer, person.Declaration())
		return err
	}

	def, err := person.Definition()
	if err != nil {
		return WrapExitError(ExitCommandError, "load module", err)
	}
	hash, err := ir.ModuleHash(def)
	if err != nil {
		return WrapExitError(ExitCommandError, "hash module", err)
	}

	if out.JSON() {
		return out.Success(ModuleDescription{ModuleDef: def, Hash: hash})
	}
	return out.Success(formatModule(def, hash))
}

func formatModule(def *ir.ModuleDef, hash string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", def.Name)
	fmt.Fprintf(&b, "hash   %s\n", hash)

	for _, t := range def.Tables {
		visibility := "private"
		if t.Public {
			visibility = "public"
		}
		fmt.Fprintf(&b, "\ntable %s (%s)\n", t.Name, visibility)
		for _, c := range t.Columns {
			var flags []string
			if c.PrimaryKey {
				flags = append(flags, "primary key")
			}
			if c.AutoInc {
				flags = append(flags, "auto_inc")
			}
			line := fmt.Sprintf("  %-8s %s", c.Name, c.Type)
			if len(flags) > 0 {
				line += "  " + strings.Join(flags, ", ")
			}
			b.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}

	b.WriteString("\nreducers\n")
	for _, r := range def.Reducers {
		args := make([]string, len(r.Args))
		for i, a := range r.Args {
			args[i] = a.Name + ": " + a.Type
		}
		fmt.Fprintf(&b, "  %s(%s)\n", r.Name, strings.Join(args, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
