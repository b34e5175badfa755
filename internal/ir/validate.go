package ir

import (
	"fmt"
	"strings"
)

// ValidationError is one problem found in a module definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the definition and returns every problem found rather
// than stopping at the first.
func (m *ModuleDef) Validate() []ValidationError {
	var errs []ValidationError

	if m.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "module name is required"})
	}

	seenTables := make(map[string]bool)
	for i := range m.Tables {
		t := &m.Tables[i]
		field := fmt.Sprintf("tables[%d]", i)
		if t.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "table name is required"})
		} else if seenTables[t.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate table name: %q", t.Name)})
		}
		seenTables[t.Name] = true
		errs = append(errs, t.validate(field)...)
	}

	seenReducers := make(map[string]bool)
	for i, r := range m.Reducers {
		field := fmt.Sprintf("reducers[%d]", i)
		if r.Name == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "reducer name is required"})
		} else if seenReducers[r.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate reducer name: %q", r.Name)})
		}
		seenReducers[r.Name] = true

		seenArgs := make(map[string]bool)
		for j, a := range r.Args {
			argField := fmt.Sprintf("%s.args[%d]", field, j)
			if a.Name == "" {
				errs = append(errs, ValidationError{Field: argField + ".name", Message: "argument name is required"})
			} else if seenArgs[a.Name] {
				errs = append(errs, ValidationError{Field: argField + ".name", Message: fmt.Sprintf("duplicate argument name: %q", a.Name)})
			}
			seenArgs[a.Name] = true
			if !ValidTypes[a.Type] {
				errs = append(errs, ValidationError{Field: argField + ".type", Message: invalidTypeMessage(a.Type)})
			}
		}
	}

	return errs
}

func (t *TableDef) validate(field string) []ValidationError {
	var errs []ValidationError

	if len(t.Columns) == 0 {
		errs = append(errs, ValidationError{Field: field + ".columns", Message: "at least one column is required"})
	}

	primaryKeys := 0
	seen := make(map[string]bool)
	for j, c := range t.Columns {
		colField := fmt.Sprintf("%s.columns[%d]", field, j)
		if c.Name == "" {
			errs = append(errs, ValidationError{Field: colField + ".name", Message: "column name is required"})
		} else if seen[c.Name] {
			errs = append(errs, ValidationError{Field: colField + ".name", Message: fmt.Sprintf("duplicate column name: %q", c.Name)})
		}
		seen[c.Name] = true

		if !ValidTypes[c.Type] {
			errs = append(errs, ValidationError{Field: colField + ".type", Message: invalidTypeMessage(c.Type)})
		}
		if c.PrimaryKey {
			primaryKeys++
		}
		if c.AutoInc && c.Type != TypeU32 && c.Type != TypeU64 {
			errs = append(errs, ValidationError{Field: colField + ".auto_inc", Message: "auto_inc requires an unsigned integer column"})
		}
	}

	if len(t.Columns) > 0 && primaryKeys != 1 {
		errs = append(errs, ValidationError{
			Field:   field + ".columns",
			Message: fmt.Sprintf("exactly one primary key column is required, found %d", primaryKeys),
		})
	}

	return errs
}

func invalidTypeMessage(typ string) string {
	allowed := []string{TypeString, TypeU32, TypeU64, TypeBool}
	return fmt.Sprintf("invalid type %q, must be one of: %s", typ, strings.Join(allowed, ", "))
}
