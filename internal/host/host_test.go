package host

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

func TestCallCommits(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(testModule())
	h := startHost(t, st, WithRequestIDs(NewFixedGenerator("req-1")), WithLogger(zaptest.NewLogger(t)))

	res, err := h.Call(ctx, "add_person", addArgs("Ada", 30), alice)
	require.NoError(t, err)

	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, int64(1), res.Seq)
	assert.Equal(t, ir.OutcomeCommitted, res.Outcome)
	assert.Nil(t, res.Err)
	assert.Equal(t, ir.MustInvocationID("req-1", "add_person", addArgs("Ada", 30), 1), res.InvocationID)

	invs, comps, err := st.ReadCalls(ctx)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Len(t, comps, 1)
	assert.Equal(t, alice, invs[0].Caller)
	assert.Equal(t, h.ModuleHash(), invs[0].ModuleHash)
	assert.Equal(t, int64(2), comps[0].Seq)
	assert.Equal(t, res.CompletionID, comps[0].ID)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	row, found, err := tx.Get(ctx, "person", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRObject{"id": ir.IRInt(1), "name": ir.IRString("Ada"), "age": ir.IRInt(30)}, row)
}

func TestCallUnknownReducer(t *testing.T) {
	st := store.NewMemory(testModule())
	h := startHost(t, st)

	res, err := h.Call(context.Background(), "delete_person", ir.IRObject{}, alice)
	assert.Nil(t, res)
	assert.True(t, IsUnknownReducer(err))

	seq, err := st.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq, "rejected calls are not logged")
}

func TestCallInvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args ir.IRObject
		want string
	}{
		{"missing age", ir.IRObject{"name": ir.IRString("Ada")}, `missing argument "age"`},
		{"wrong type", ir.IRObject{"name": ir.IRInt(7), "age": ir.IRInt(1)}, `argument "name"`},
		{"age overflow", addArgs("Ada", 4294967296), `argument "age"`},
		{"negative age", addArgs("Ada", -1), `argument "age"`},
		{"unexpected", ir.IRObject{"name": ir.IRString("Ada"), "age": ir.IRInt(1), "email": ir.IRString("x")}, `unexpected argument "email"`},
	}

	st := store.NewMemory(testModule())
	h := startHost(t, st)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.Call(context.Background(), "add_person", tt.args, alice)
			assert.Nil(t, res)
			require.True(t, IsInvalidArgs(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.Equal(t, int64(0), countPeople(t, st))
}

func TestCallAcceptsBoundaryAges(t *testing.T) {
	st := store.NewMemory(testModule())
	h := startHost(t, st)

	for _, age := range []int64{0, 150, 4294967295} {
		_, err := h.Call(context.Background(), "add_person", addArgs("", age), alice)
		require.NoError(t, err, "age %d", age)
	}
	assert.Equal(t, int64(3), countPeople(t, st))
}

func TestReducerErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(testModule())
	h := startHost(t, st)

	res, err := h.Call(ctx, "add_then_fail", ir.IRObject{"name": ir.IRString("Ada")}, alice)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ir.OutcomeFailed, res.Outcome)
	assert.Equal(t, ErrCodeReducerFailed, CodeOf(err))
	assert.Equal(t, int64(0), countPeople(t, st))

	_, comps, err := st.ReadCalls(ctx)
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, ir.OutcomeFailed, comps[0].Outcome)
	assert.Contains(t, comps[0].Error, "refusing to keep it")

	_, err = h.Call(ctx, "add_person", addArgs("Bob", 25), alice)
	require.NoError(t, err)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	rows, err := tx.Scan(ctx, "person")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRInt(1), rows[0]["id"], "rolled back insert did not consume an id")
}

func TestReducerPanicRollsBack(t *testing.T) {
	st := store.NewMemory(testModule())
	h := startHost(t, st)

	res, err := h.Call(context.Background(), "explode", nil, alice)
	require.Error(t, err)
	assert.Equal(t, ir.OutcomeFailed, res.Outcome)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, int64(0), countPeople(t, st))

	_, err = h.Call(context.Background(), "say_hello", nil, alice)
	assert.NoError(t, err, "host keeps serving after a panic")
}

func TestCapacityExceeded(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(testModule(), store.WithMaxRows(1))
	h := startHost(t, st)

	_, err := h.Call(ctx, "add_person", addArgs("Ada", 30), alice)
	require.NoError(t, err)

	res, err := h.Call(ctx, "add_person", addArgs("Bob", 25), alice)
	require.Error(t, err)
	assert.True(t, IsCapacityError(err), "got %v", err)
	assert.Equal(t, ir.OutcomeFailed, res.Outcome)
	assert.Equal(t, int64(1), countPeople(t, st))
}

func TestModuleLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	st := store.NewMemory(testModule())
	h := startHost(t, st, WithLogger(zap.New(core)))

	_, err := h.Call(context.Background(), "say_hello", ir.IRObject{}, alice)
	require.NoError(t, err)

	hello := logs.FilterMessage("hello").All()
	require.Len(t, hello, 1)
	assert.Equal(t, zapcore.InfoLevel, hello[0].Level)
	assert.Equal(t, "module.test_module", hello[0].LoggerName)
	assert.Equal(t, int64(0), countPeople(t, st))
}

func TestCustomModuleLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := startHost(t, store.NewMemory(testModule()), WithModuleLogger(zap.New(core).Sugar()))

	_, err := h.Call(context.Background(), "say_hello", nil, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("hello").Len())
}

func TestHostLogsLifecycle(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := startHost(t, store.NewMemory(testModule()),
		WithLogger(zap.New(core)),
		WithRequestIDs(NewFixedGenerator("req-1", "req-2")),
	)

	_, err := h.Call(context.Background(), "add_person", addArgs("Ada", 30), alice)
	require.NoError(t, err)
	_, err = h.Call(context.Background(), "add_then_fail", ir.IRObject{"name": ir.IRString("x")}, alice)
	require.Error(t, err)

	committed := logs.FilterMessage("call committed").All()
	require.Len(t, committed, 1)
	fields := committed[0].ContextMap()
	assert.Equal(t, "add_person", fields["reducer"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, int64(1), fields["seq"])
	assert.Equal(t, ir.OutcomeCommitted, fields["outcome"])

	failed := logs.FilterMessage("call failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "req-2", failed[0].ContextMap()["request_id"])
}

func TestCallsAreSerialized(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(testModule())
	h := startHost(t, st)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Call(ctx, "add_person", addArgs("p", 1), alice)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	rows, err := tx.Scan(ctx, "person")
	require.NoError(t, err)
	require.Len(t, rows, n)
	for i, row := range rows {
		assert.Equal(t, ir.IRInt(i+1), row["id"])
	}
}

func TestCallAfterStop(t *testing.T) {
	h, err := New(store.NewMemory(testModule()), testModule(), testRegistry(t))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()
	h.Stop()
	require.NoError(t, <-done)

	_, err = h.Call(context.Background(), "say_hello", nil, alice)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	h, err := New(store.NewMemory(testModule()), testModule(), testRegistry(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCallContextCancelled(t *testing.T) {
	h, err := New(store.NewMemory(testModule()), testModule(), testRegistry(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No Run loop: the call can only end through ctx.
	_, err = h.Call(ctx, "say_hello", nil, alice)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostResumesClock(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(testModule())

	first := startHost(t, st)
	_, err := first.Call(ctx, "say_hello", nil, alice)
	require.NoError(t, err)

	second, err := New(st, testModule(), testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.clock.Current())
}

func TestNewRejectsUnboundRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("add_person", func(*ReducerContext, ir.IRObject) error { return nil }))

	_, err := New(store.NewMemory(testModule()), testModule(), reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "say_hello")
}

func TestSQLiteBackedHost(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(t.TempDir()+"/host.db", testModule())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := startHost(t, st)
	for _, name := range []string{"Ada", "Bob"} {
		_, err := h.Call(ctx, "add_person", addArgs(name, 30), alice)
		require.NoError(t, err)
	}
	_, err = h.Call(ctx, "add_then_fail", ir.IRObject{"name": ir.IRString("x")}, alice)
	require.Error(t, err)

	assert.Equal(t, int64(2), countPeople(t, st))

	last, err := st.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), last)
}

func TestCompletionLogFailureLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(testModule())
	h := startHost(t, txLogFailStore{Store: mem, failStandalone: true})

	res, err := h.Call(ctx, "add_person", addArgs("Ada", 30), alice)
	assert.Nil(t, res)
	assert.Equal(t, ErrCodeStorage, CodeOf(err))
	assert.ErrorIs(t, err, errLogDown)
	assert.Equal(t, int64(0), countPeople(t, mem))

	invs, comps, err := mem.ReadCalls(ctx)
	require.NoError(t, err)
	assert.Len(t, invs, 1)
	assert.Empty(t, comps)

	replayed, err := Replay(ctx, mem, store.NewMemory(testModule()), testModule(), testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, 0, replayed.Replayed)
	assert.Equal(t, 1, replayed.Skipped)
	assert.True(t, replayed.Deterministic())
}

func TestCompletionInTxFailureRecordsFailedCall(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory(testModule())
	h := startHost(t, txLogFailStore{Store: mem})

	res, err := h.Call(ctx, "add_person", addArgs("Ada", 30), alice)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ErrCodeStorage, CodeOf(err))
	assert.Equal(t, ir.OutcomeFailed, res.Outcome)
	assert.Equal(t, int64(0), countPeople(t, mem))

	_, comps, err := mem.ReadCalls(ctx)
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, ir.OutcomeFailed, comps[0].Outcome)
	assert.Equal(t, res.CompletionID, comps[0].ID)
}

func TestCallCancelledWhileRunningReportsOutcome(t *testing.T) {
	mem := store.NewMemory(testModule())
	gated := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	h := startHost(t, gated)

	ctx, cancel := context.WithCancel(context.Background())
	type reply struct {
		res *CallResult
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		res, err := h.Call(ctx, "add_person", addArgs("Ada", 30), alice)
		replies <- reply{res, err}
	}()

	<-gated.entered
	cancel()
	close(gated.release)

	r := <-replies
	require.NoError(t, r.err)
	require.NotNil(t, r.res)
	assert.Equal(t, ir.OutcomeCommitted, r.res.Outcome)
	assert.Equal(t, int64(1), countPeople(t, mem))
}
