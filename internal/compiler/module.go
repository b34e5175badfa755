package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/personmod/internal/ir"
)

// CompileModule parses a CUE value into a validated ModuleDef.
//
// The CUE value should be the module struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	def, err := CompileModule(v.LookupPath(cue.ParsePath("module.person_registry")))
func CompileModule(v cue.Value) (*ir.ModuleDef, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "module", Message: "module not found"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &ir.ModuleDef{
		Tables:   []ir.TableDef{},
		Reducers: []ir.ReducerSig{},
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}

	var err error
	def.Tables, err = parseTables(v)
	if err != nil {
		return nil, err
	}

	def.Reducers, err = parseReducers(v)
	if err != nil {
		return nil, err
	}

	if errs := def.Validate(); len(errs) > 0 {
		return nil, &InvalidModuleError{Module: def.Name, Errors: errs}
	}
	return def, nil
}

// CompileModuleSource compiles CUE source text holding exactly one
// `module: <name>: {...}` declaration.
func CompileModuleSource(filename, src string) (*ir.ModuleDef, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modules := v.LookupPath(cue.ParsePath("module"))
	if !modules.Exists() {
		return nil, &CompileError{Field: "module", Message: "no module declared", Pos: v.Pos()}
	}

	iter, err := modules.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var found []cue.Value
	for iter.Next() {
		found = append(found, iter.Value())
	}
	switch len(found) {
	case 0:
		return nil, &CompileError{Field: "module", Message: "no module declared", Pos: modules.Pos()}
	case 1:
		return CompileModule(found[0])
	default:
		return nil, &CompileError{
			Field:   "module",
			Message: fmt.Sprintf("expected exactly one module, found %d", len(found)),
			Pos:     modules.Pos(),
		}
	}
}

func parseTables(v cue.Value) ([]ir.TableDef, error) {
	tables := []ir.TableDef{}

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if !tableVal.Exists() {
		return tables, nil
	}

	iter, err := tableVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		tv := iter.Value()
		field := "table." + name

		table := ir.TableDef{Name: name}

		table.Public, err = optionalBool(tv, "public")
		if err != nil {
			return nil, err
		}

		colsVal := tv.LookupPath(cue.ParsePath("columns"))
		if !colsVal.Exists() {
			return nil, &CompileError{
				Field:   field + ".columns",
				Message: "table columns are required",
				Pos:     tv.Pos(),
			}
		}

		colIter, err := colsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}

		for i := 0; colIter.Next(); i++ {
			col, err := parseColumn(colIter.Value(), fmt.Sprintf("%s.columns[%d]", field, i))
			if err != nil {
				return nil, err
			}
			table.Columns = append(table.Columns, col)
		}

		tables = append(tables, table)
	}

	return tables, nil
}

func parseColumn(v cue.Value, field string) (ir.ColumnDef, error) {
	var col ir.ColumnDef
	var err error

	if col.Name, err = requiredString(v, "name", field); err != nil {
		return col, err
	}
	if col.Type, err = requiredString(v, "type", field); err != nil {
		return col, err
	}
	if col.PrimaryKey, err = optionalBool(v, "primary_key"); err != nil {
		return col, err
	}
	if col.AutoInc, err = optionalBool(v, "auto_inc"); err != nil {
		return col, err
	}
	return col, nil
}

func parseReducers(v cue.Value) ([]ir.ReducerSig, error) {
	reducers := []ir.ReducerSig{}

	reducerVal := v.LookupPath(cue.ParsePath("reducer"))
	if !reducerVal.Exists() {
		return reducers, nil
	}

	iter, err := reducerVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		rv := iter.Value()

		sig := ir.ReducerSig{Name: name, Args: []ir.NamedArg{}}

		argsVal := rv.LookupPath(cue.ParsePath("args"))
		if argsVal.Exists() {
			argIter, err := argsVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for i := 0; argIter.Next(); i++ {
				field := fmt.Sprintf("reducer.%s.args[%d]", name, i)
				arg := ir.NamedArg{}
				if arg.Name, err = requiredString(argIter.Value(), "name", field); err != nil {
					return nil, err
				}
				if arg.Type, err = requiredString(argIter.Value(), "type", field); err != nil {
					return nil, err
				}
				sig.Args = append(sig.Args, arg)
			}
		}

		reducers = append(reducers, sig)
	}

	return reducers, nil
}

func requiredString(v cue.Value, key, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(key))
	if !sv.Exists() {
		return "", &CompileError{
			Field:   field + "." + key,
			Message: key + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, key string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidModuleError carries every validation failure found in a module.
type InvalidModuleError struct {
	Module string
	Errors []ir.ValidationError
}

func (e *InvalidModuleError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("module %q is invalid: %s", e.Module, strings.Join(msgs, "; "))
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
