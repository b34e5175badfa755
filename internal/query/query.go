// Package query filters table rows with boolean expr-lang expressions.
//
// Column names are the expression's variables: `age >= 18 && name != ""`.
// Expressions are type-checked against the table's columns at compile time,
// so a misspelled column or a non-boolean result is rejected before any row
// is read.
package query

import (
	"github.com/cockroachdb/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/personmod/internal/ir"
)

// Filter is a compiled row predicate.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile type-checks expression against table's columns.
func Compile(table *ir.TableDef, expression string) (*Filter, error) {
	if expression == "" {
		return nil, errors.New("filter expression must not be empty")
	}

	program, err := expr.Compile(expression, expr.Env(environment(table)), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(err, "compile filter %q", expression)
	}
	return &Filter{source: expression, program: program}, nil
}

// environment returns a zero-valued row with the Go type of each column.
func environment(table *ir.TableDef) map[string]any {
	env := make(map[string]any, len(table.Columns))
	for _, col := range table.Columns {
		switch col.Type {
		case ir.TypeString:
			env[col.Name] = ""
		case ir.TypeBool:
			env[col.Name] = false
		default:
			env[col.Name] = int64(0)
		}
	}
	return env
}

func (f *Filter) String() string {
	return f.source
}

// Match evaluates the filter against one row.
func (f *Filter) Match(row ir.IRObject) (bool, error) {
	env, _ := ir.ToGo(row).(map[string]any)
	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, errors.Wrapf(err, "evaluate filter %q", f.source)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, errors.Newf("filter %q returned %T, not bool", f.source, out)
	}
	return ok, nil
}

// Apply returns the rows f matches, in order. A nil filter matches every row.
func Apply(rows []ir.IRObject, f *Filter) ([]ir.IRObject, error) {
	if f == nil {
		return rows, nil
	}
	out := make([]ir.IRObject, 0, len(rows))
	for _, row := range rows {
		ok, err := f.Match(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}
