package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
)

var (
	// ErrTableNotFound is returned for a table the module does not declare.
	ErrTableNotFound = errors.New("table not found")

	// ErrCapacityExceeded is returned when an insert would exceed the
	// configured row limit or exhaust a table's id sequence.
	ErrCapacityExceeded = errors.New("storage capacity exceeded")

	// ErrTypeMismatch is returned when a row does not fit the table's columns.
	ErrTypeMismatch = ir.ErrTypeMismatch

	// ErrUniqueViolation is returned when an insert repeats a primary key.
	ErrUniqueViolation = errors.New("unique constraint violated")

	// ErrTxDone is returned by operations on a finished transaction.
	ErrTxDone = errors.New("transaction already committed or rolled back")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store is the storage handle owned by a host.
type Store interface {
	// Begin starts a transaction over the module's tables.
	Begin(ctx context.Context) (Tx, error)

	// WriteInvocation appends an invocation to the call log. Writing the
	// same id twice is a no-op.
	WriteInvocation(ctx context.Context, inv ir.Invocation) error

	// WriteCompletion appends a completion to the call log. Each invocation
	// has at most one completion; later writes are ignored.
	WriteCompletion(ctx context.Context, comp ir.Completion) error

	// ReadCalls returns the whole call log ordered by seq.
	ReadCalls(ctx context.Context) ([]ir.Invocation, []ir.Completion, error)

	// LastSeq returns the highest seq in the call log, or 0 when empty.
	LastSeq(ctx context.Context) (int64, error)

	Close() error
}

// Tx is a unit of work over the module's tables.
type Tx interface {
	// Insert validates row against the table's columns, assigns the
	// auto_inc column from the table's sequence and stores it. The stored
	// row is returned.
	Insert(ctx context.Context, table string, row ir.IRObject) (ir.IRObject, error)

	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)

	// Scan returns every row of table in primary key order.
	Scan(ctx context.Context, table string) ([]ir.IRObject, error)

	// Get returns the row whose integer primary key equals pk.
	Get(ctx context.Context, table string, pk uint64) (ir.IRObject, bool, error)

	// WriteCompletion records comp with this transaction's writes: it
	// becomes visible on Commit and is discarded on Rollback. The
	// referenced invocation must already be in the call log.
	WriteCompletion(ctx context.Context, comp ir.Completion) error

	Commit() error
	Rollback() error
}

// Option configures a store backend.
type Option func(*options)

type options struct {
	maxRows int64
}

// WithMaxRows limits every table to n rows. Zero means unlimited.
func WithMaxRows(n int64) Option {
	return func(o *options) {
		o.maxRows = n
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// StateHash hashes the contents of every table declared by def. Two stores
// holding the same rows produce the same hash regardless of backend.
func StateHash(ctx context.Context, st Store, def *ir.ModuleDef) (string, error) {
	tx, err := st.Begin(ctx)
	if err != nil {
		return "", errors.Wrap(err, "state hash")
	}
	defer tx.Rollback()

	tables := make(map[string][]ir.IRObject, len(def.Tables))
	for _, t := range def.Tables {
		rows, err := tx.Scan(ctx, t.Name)
		if err != nil {
			return "", errors.Wrapf(err, "state hash: scan %s", t.Name)
		}
		tables[t.Name] = rows
	}
	return ir.StateHash(tables)
}
