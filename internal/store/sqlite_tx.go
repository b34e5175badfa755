package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
)

type sqliteTx struct {
	tx *sql.Tx
	s  *SQLite
}

func (t *sqliteTx) table(name string) (*ir.TableDef, error) {
	td, ok := t.s.def.Table(name)
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "%q", name)
	}
	return td, nil
}

func (t *sqliteTx) Insert(ctx context.Context, table string, row ir.IRObject) (ir.IRObject, error) {
	td, err := t.table(table)
	if err != nil {
		return nil, err
	}

	out, err := prepareRow(td, row)
	if err != nil {
		return nil, err
	}

	if t.s.opts.maxRows > 0 {
		n, err := t.Count(ctx, table)
		if err != nil {
			return nil, err
		}
		if err := checkCapacity(td, n, t.s.opts.maxRows); err != nil {
			return nil, err
		}
	}

	col, hasSeq := td.AutoInc()
	var next uint64
	if hasSeq {
		next, err = t.nextValue(ctx, td.Name)
		if err != nil {
			return nil, err
		}
		if err := checkSequence(td, col, next); err != nil {
			return nil, err
		}
		out[col.Name] = ir.IRInt(int64(next))
	}

	names := make([]string, len(td.Columns))
	marks := make([]string, len(td.Columns))
	args := make([]any, len(td.Columns))
	for i, c := range td.Columns {
		names[i] = quoteIdent(c.Name)
		marks[i] = "?"
		args[i] = sqlArg(out[c.Name])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(tablePrefix+td.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return nil, errors.Wrapf(mapSQLiteError(err), "insert into %s", td.Name)
	}

	if hasSeq {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO sequences (table_name, next_value) VALUES (?, ?)
			ON CONFLICT(table_name) DO UPDATE SET next_value = excluded.next_value
		`, td.Name, int64(next+1))
		if err != nil {
			return nil, errors.Wrapf(err, "advance sequence for %s", td.Name)
		}
	}

	return out, nil
}

func (t *sqliteTx) nextValue(ctx context.Context, table string) (uint64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT next_value FROM sequences WHERE table_name = ?", table,
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read sequence for %s", table)
	}
	return uint64(next), nil
}

func (t *sqliteTx) Count(ctx context.Context, table string) (int64, error) {
	td, err := t.table(table)
	if err != nil {
		return 0, err
	}

	var n int64
	err = t.tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(tablePrefix+td.Name)),
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", td.Name)
	}
	return n, nil
}

func (t *sqliteTx) Scan(ctx context.Context, table string) ([]ir.IRObject, error) {
	td, err := t.table(table)
	if err != nil {
		return nil, err
	}
	pk, _ := td.PrimaryKey()

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s COLLATE BINARY ASC",
		selectList(td), quoteIdent(tablePrefix+td.Name), quoteIdent(pk.Name))
	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", td.Name)
	}
	defer rows.Close()

	result := []ir.IRObject{}
	for rows.Next() {
		row, err := scanRow(rows, td)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate %s", td.Name)
	}
	return result, nil
}

func (t *sqliteTx) Get(ctx context.Context, table string, pk uint64) (ir.IRObject, bool, error) {
	td, err := t.table(table)
	if err != nil {
		return nil, false, err
	}
	pkCol, _ := td.PrimaryKey()
	if pkCol.Type != ir.TypeU32 && pkCol.Type != ir.TypeU64 {
		return nil, false, errors.Wrapf(ErrTypeMismatch, "table %s has a %s primary key", td.Name, pkCol.Type)
	}
	if pk > math.MaxInt64 {
		return nil, false, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		selectList(td), quoteIdent(tablePrefix+td.Name), quoteIdent(pkCol.Name))
	rows, err := t.tx.QueryContext(ctx, query, int64(pk))
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", td.Name)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, errors.Wrapf(rows.Err(), "get %s", td.Name)
	}
	row, err := scanRow(rows, td)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

func (t *sqliteTx) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	return insertCompletion(ctx, t.tx, comp)
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxDone
		}
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxDone
		}
		return errors.Wrap(err, "rollback")
	}
	return nil
}

func selectList(td *ir.TableDef) string {
	names := make([]string, len(td.Columns))
	for i, c := range td.Columns {
		names[i] = quoteIdent(c.Name)
	}
	return strings.Join(names, ", ")
}

func scanRow(rows *sql.Rows, td *ir.TableDef) (ir.IRObject, error) {
	dest := make([]any, len(td.Columns))
	for i, c := range td.Columns {
		switch c.Type {
		case ir.TypeString:
			dest[i] = new(string)
		case ir.TypeBool:
			dest[i] = new(bool)
		default:
			dest[i] = new(int64)
		}
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, errors.Wrapf(err, "scan %s row", td.Name)
	}

	row := make(ir.IRObject, len(td.Columns))
	for i, c := range td.Columns {
		switch v := dest[i].(type) {
		case *string:
			row[c.Name] = ir.IRString(*v)
		case *bool:
			row[c.Name] = ir.IRBool(*v)
		case *int64:
			row[c.Name] = ir.IRInt(*v)
		}
	}
	return row, nil
}

func sqlArg(v ir.IRValue) any {
	switch x := v.(type) {
	case ir.IRString:
		return string(x)
	case ir.IRInt:
		return int64(x)
	case ir.IRBool:
		return bool(x)
	}
	return nil
}
