package host

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

func testModule() *ir.ModuleDef {
	return &ir.ModuleDef{
		Name: "test_module",
		Tables: []ir.TableDef{{
			Name:   "person",
			Public: true,
			Columns: []ir.ColumnDef{
				{Name: "id", Type: ir.TypeU64, PrimaryKey: true, AutoInc: true},
				{Name: "name", Type: ir.TypeString},
				{Name: "age", Type: ir.TypeU32},
			},
		}},
		Reducers: []ir.ReducerSig{
			{Name: "add_person", Args: []ir.NamedArg{{Name: "name", Type: ir.TypeString}, {Name: "age", Type: ir.TypeU32}}},
			{Name: "say_hello", Args: []ir.NamedArg{}},
			{Name: "add_then_fail", Args: []ir.NamedArg{{Name: "name", Type: ir.TypeString}}},
			{Name: "explode", Args: []ir.NamedArg{}},
		},
	}
}

func insertPerson(rc *ReducerContext, name ir.IRValue, age ir.IRValue) error {
	_, err := rc.DB.Table("person").Insert(ir.IRObject{"id": ir.IRInt(0), "name": name, "age": age})
	return err
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register("add_person", func(rc *ReducerContext, args ir.IRObject) error {
		return insertPerson(rc, args["name"], args["age"])
	}))
	require.NoError(t, reg.Register("say_hello", func(rc *ReducerContext, args ir.IRObject) error {
		rc.Log.Info("hello")
		return nil
	}))
	require.NoError(t, reg.Register("add_then_fail", func(rc *ReducerContext, args ir.IRObject) error {
		if err := insertPerson(rc, args["name"], ir.IRInt(1)); err != nil {
			return err
		}
		return errors.New("refusing to keep it")
	}))
	require.NoError(t, reg.Register("explode", func(rc *ReducerContext, args ir.IRObject) error {
		if err := insertPerson(rc, ir.IRString("ghost"), ir.IRInt(1)); err != nil {
			return err
		}
		panic("kaboom")
	}))
	return reg
}

// startHost runs a host over st until the test ends.
func startHost(t *testing.T, st store.Store, opts ...Option) *Host {
	t.Helper()
	h, err := New(st, testModule(), testRegistry(t), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	t.Cleanup(func() {
		h.Stop()
		<-done
		cancel()
	})
	return h
}

func addArgs(name string, age int64) ir.IRObject {
	return ir.IRObject{"name": ir.IRString(name), "age": ir.IRInt(age)}
}

func countPeople(t *testing.T, st store.Store) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	n, err := tx.Count(ctx, "person")
	require.NoError(t, err)
	return n
}

var alice = ir.Caller{Identity: "alice", ConnectionID: "conn-1"}

var errLogDown = errors.New("call log unavailable")

// txLogFailStore fails completions written inside a transaction. With
// failStandalone set, completions written outside one fail too.
type txLogFailStore struct {
	store.Store
	failStandalone bool
}

func (s txLogFailStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return txLogFailTx{Tx: tx}, nil
}

func (s txLogFailStore) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	if s.failStandalone {
		return errLogDown
	}
	return s.Store.WriteCompletion(ctx, comp)
}

type txLogFailTx struct {
	store.Tx
}

func (txLogFailTx) WriteCompletion(context.Context, ir.Completion) error {
	return errLogDown
}

// gatedStore blocks Begin until release is closed, signalling entered
// first.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Begin(ctx context.Context) (store.Tx, error) {
	close(s.entered)
	<-s.release
	return s.Store.Begin(ctx)
}
