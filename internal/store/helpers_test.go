package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/personmod/internal/ir"
)

// testModule declares an auto_inc table, a string-keyed table and a u32
// sequence table.
func testModule() *ir.ModuleDef {
	return &ir.ModuleDef{
		Name: "test_module",
		Tables: []ir.TableDef{
			{
				Name:   "person",
				Public: true,
				Columns: []ir.ColumnDef{
					{Name: "id", Type: ir.TypeU64, PrimaryKey: true, AutoInc: true},
					{Name: "name", Type: ir.TypeString},
					{Name: "age", Type: ir.TypeU32},
				},
			},
			{
				Name: "tag",
				Columns: []ir.ColumnDef{
					{Name: "label", Type: ir.TypeString, PrimaryKey: true},
					{Name: "pinned", Type: ir.TypeBool},
				},
			},
			{
				Name: "counter",
				Columns: []ir.ColumnDef{
					{Name: "id", Type: ir.TypeU32, PrimaryKey: true, AutoInc: true},
				},
			},
		},
	}
}

func person(name string, age int64) ir.IRObject {
	return ir.IRObject{"id": ir.IRInt(0), "name": ir.IRString(name), "age": ir.IRInt(age)}
}

// createTestStore opens a SQLite store in a temp dir.
func createTestStore(t *testing.T, opts ...Option) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), testModule(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachBackend runs fn against a fresh SQLite and a fresh Memory store.
func forEachBackend(t *testing.T, fn func(t *testing.T, st Store), opts ...Option) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, createTestStore(t, opts...))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory(testModule(), opts...))
	})
}

func createTestInvocation(id, reducer string, seq int64) ir.Invocation {
	return ir.Invocation{
		ID:          id,
		RequestID:   "req-" + id,
		Reducer:     reducer,
		Args:        ir.IRObject{},
		Seq:         seq,
		Caller:      ir.Caller{Identity: "tester"},
		ModuleHash:  "test-hash",
		HostVersion: "0.1.0",
		IRVersion:   "1",
	}
}

func createTestCompletion(id, invocationID, outcome string, seq int64) ir.Completion {
	return ir.Completion{
		ID:           id,
		InvocationID: invocationID,
		Outcome:      outcome,
		Seq:          seq,
		Caller:       ir.Caller{Identity: "tester"},
	}
}
