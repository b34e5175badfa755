package store

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
)

// prepareRow checks row against the table's columns and returns a complete
// copy. The auto_inc column, if any, is left at zero for the caller to fill.
func prepareRow(t *ir.TableDef, row ir.IRObject) (ir.IRObject, error) {
	for _, name := range row.SortedKeys() {
		if _, ok := t.Column(name); !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "table %s has no column %q", t.Name, name)
		}
	}

	out := make(ir.IRObject, len(t.Columns))
	for _, c := range t.Columns {
		if c.AutoInc {
			out[c.Name] = ir.IRInt(0)
			continue
		}
		v, ok := row[c.Name]
		if !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "%s.%s: missing value", t.Name, c.Name)
		}
		if err := ir.CheckValue(c.Type, v); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", t.Name, c.Name)
		}
		out[c.Name] = v
	}
	return out, nil
}

// checkSequence reports whether next still fits the auto_inc column.
func checkSequence(t *ir.TableDef, col *ir.ColumnDef, next uint64) error {
	limit := uint64(math.MaxInt64)
	if col.Type == ir.TypeU32 {
		limit = math.MaxUint32
	}
	if next > limit {
		return errors.Wrapf(ErrCapacityExceeded, "%s.%s: id sequence exhausted", t.Name, col.Name)
	}
	return nil
}

func checkCapacity(t *ir.TableDef, count, maxRows int64) error {
	if maxRows > 0 && count >= maxRows {
		return errors.Wrapf(ErrCapacityExceeded, "table %s is full (%d rows)", t.Name, maxRows)
	}
	return nil
}

// compareValues orders two primary key values of the same column type.
func compareValues(a, b ir.IRValue) int {
	switch av := a.(type) {
	case ir.IRInt:
		bv, _ := b.(ir.IRInt)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case ir.IRString:
		bv, _ := b.(ir.IRString)
		return strings.Compare(string(av), string(bv))
	case ir.IRBool:
		bv, _ := b.(ir.IRBool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		}
		return 1
	}
	return 0
}
