package host

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

// ReducerContext is what a reducer sees of the host during one call.
type ReducerContext struct {
	ctx context.Context

	// DB gives table access through the call's transaction.
	DB *DB

	// Caller is the identity that invoked the reducer.
	Caller ir.Caller

	// RequestID correlates this call across log lines.
	RequestID string

	// Seq is the logical time the call was received.
	Seq int64

	// Log is the module's diagnostic sink. Emitting never fails the call.
	Log *zap.SugaredLogger
}

func (rc *ReducerContext) Context() context.Context {
	return rc.ctx
}

// DB is the table view of one call's transaction.
type DB struct {
	ctx context.Context
	tx  store.Tx
}

// Table returns a handle on the named table. Unknown names surface as
// store.ErrTableNotFound on first use.
func (db *DB) Table(name string) *TableHandle {
	return &TableHandle{db: db, name: name}
}

// TableHandle performs row operations on a single table.
type TableHandle struct {
	db   *DB
	name string
}

func (h *TableHandle) Name() string {
	return h.name
}

// Insert stores row and returns it with its auto_inc column assigned.
func (h *TableHandle) Insert(row ir.IRObject) (ir.IRObject, error) {
	return h.db.tx.Insert(h.db.ctx, h.name, row)
}

func (h *TableHandle) Count() (int64, error) {
	return h.db.tx.Count(h.db.ctx, h.name)
}

// All returns every row in primary key order.
func (h *TableHandle) All() ([]ir.IRObject, error) {
	return h.db.tx.Scan(h.db.ctx, h.name)
}

// FindByID returns the row with the given integer primary key.
func (h *TableHandle) FindByID(id uint64) (ir.IRObject, bool, error) {
	return h.db.tx.Get(h.db.ctx, h.name, id)
}
