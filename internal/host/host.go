package host

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

// Host executes a module's reducers.
//
// Thread-safety model:
//   - Call(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Stop(): safe from any goroutine, idempotent
type Host struct {
	store      store.Store
	def        *ir.ModuleDef
	reg        *Registry
	clock      *Clock
	queue      *queue[*pendingCall]
	ids        RequestIDGenerator
	log        *zap.Logger
	moduleLog  *zap.SugaredLogger
	moduleHash string
}

// CallResult reports how a call ended.
type CallResult struct {
	RequestID    string
	InvocationID string
	CompletionID string
	Seq          int64

	// CompletionSeq is the logical time the outcome was recorded.
	CompletionSeq int64
	Outcome       string

	// Err is the *CallError for a failed call.
	Err error
}

type pendingCall struct {
	ctx       context.Context
	requestID string
	reducer   string
	args      ir.IRObject
	caller    ir.Caller
	done      chan callOutcome

	// state moves from callQueued to callRunning (Run took it) or to
	// callAbandoned (the caller gave up first), never both.
	state atomic.Int32
}

const (
	callQueued int32 = iota
	callRunning
	callAbandoned
)

type callOutcome struct {
	result *CallResult
	err    error
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host's own logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		h.log = l
	}
}

// WithModuleLogger sets the sink reducers write diagnostics to. Defaults to
// the host logger named "module.<name>".
func WithModuleLogger(l *zap.SugaredLogger) Option {
	return func(h *Host) {
		h.moduleLog = l
	}
}

// WithRequestIDs sets the request id generator. Defaults to UUIDv7.
func WithRequestIDs(g RequestIDGenerator) Option {
	return func(h *Host) {
		h.ids = g
	}
}

// WithClock sets the logical clock. By default the clock resumes after the
// last seq in the store's call log.
func WithClock(c *Clock) Option {
	return func(h *Host) {
		h.clock = c
	}
}

// New creates a Host for def backed by st. Every reducer def declares must
// be registered in reg, and nothing else.
func New(st store.Store, def *ir.ModuleDef, reg *Registry, opts ...Option) (*Host, error) {
	if err := reg.Bind(def); err != nil {
		return nil, err
	}

	moduleHash, err := ir.ModuleHash(def)
	if err != nil {
		return nil, errors.Wrap(err, "new host")
	}

	h := &Host{
		store:      st,
		def:        def,
		reg:        reg,
		queue:      newQueue[*pendingCall](),
		ids:        UUIDv7Generator{},
		log:        zap.NewNop(),
		moduleHash: moduleHash,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.clock == nil {
		last, err := st.LastSeq(context.Background())
		if err != nil {
			return nil, errors.Wrap(err, "new host: resume clock")
		}
		h.clock = NewClockAt(last)
	}
	if h.moduleLog == nil {
		h.moduleLog = h.log.Named("module." + def.Name).Sugar()
	}

	return h, nil
}

// Module returns the definition the host serves.
func (h *Host) Module() *ir.ModuleDef {
	return h.def
}

// ModuleHash returns the content hash recorded on every invocation.
func (h *Host) ModuleHash() string {
	return h.moduleHash
}

// Call executes reducer with args on behalf of caller and waits for it to
// finish.
//
// Unknown reducers and invalid args are rejected here, before anything is
// queued or logged. A call that ran but did not commit returns its
// CallResult together with the *CallError. Other errors (a stopped host,
// a cancelled ctx before the call started, a call log that could not be
// written) come with a nil result. Once the call has started, cancelling
// ctx no longer abandons it: Call waits and reports its outcome.
func (h *Host) Call(ctx context.Context, reducer string, args ir.IRObject, caller ir.Caller) (*CallResult, error) {
	if err := h.check(reducer, args); err != nil {
		return nil, err
	}

	pc := &pendingCall{
		ctx:       ctx,
		requestID: h.ids.Generate(),
		reducer:   reducer,
		args:      args.Clone(),
		caller:    caller,
		done:      make(chan callOutcome, 1),
	}
	if !h.queue.Enqueue(pc) {
		return nil, ErrStopped
	}

	select {
	case out := <-pc.done:
		return out.result, out.err
	case <-ctx.Done():
		if pc.state.CompareAndSwap(callQueued, callAbandoned) {
			return nil, ctx.Err()
		}
		// Run already took the call; its outcome will be recorded, so
		// report it rather than the cancellation.
		out := <-pc.done
		return out.result, out.err
	}
}

func (h *Host) check(reducer string, args ir.IRObject) error {
	sig, ok := h.def.Reducer(reducer)
	if !ok {
		return &CallError{
			Code:    ErrCodeUnknownReducer,
			Reducer: reducer,
			Message: "no such reducer",
		}
	}
	return checkArgs(sig, args)
}

// Run is the single-writer loop. It blocks until ctx is cancelled or Stop
// is called. Calls still queued when it returns fail with ErrStopped.
func (h *Host) Run(ctx context.Context) error {
	h.log.Info("host starting",
		zap.String("module", h.def.Name),
		zap.Int64("seq", h.clock.Current()),
	)
	defer h.abandonQueued()

	for {
		if pc, ok := h.queue.TryDequeue(); ok {
			h.process(ctx, pc)
			continue
		}

		select {
		case <-ctx.Done():
			h.log.Info("host stopping: context cancelled")
			h.queue.Close()
			return ctx.Err()

		case <-h.queue.Wait():
			// A stale wakeup leaves the queue empty but open; a closed and
			// drained queue means Stop was called.
			if h.queue.Len() == 0 && h.queue.Closed() {
				h.log.Info("host stopping: stopped")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the calls already queued are done.
func (h *Host) Stop() {
	h.queue.Close()
}

func (h *Host) abandonQueued() {
	h.queue.Close()
	for _, pc := range h.queue.Drain() {
		pc.done <- callOutcome{err: ErrStopped}
	}
}

func (h *Host) process(ctx context.Context, pc *pendingCall) {
	if !pc.state.CompareAndSwap(callQueued, callRunning) {
		return
	}
	if err := pc.ctx.Err(); err != nil {
		pc.done <- callOutcome{err: err}
		return
	}
	result, err := h.execute(ctx, pc.requestID, pc.reducer, pc.args, pc.caller)
	pc.done <- callOutcome{result: result, err: err}
}

// execute runs one call end to end. Only Run and Replay call it, so calls
// never overlap.
func (h *Host) execute(ctx context.Context, requestID, reducer string, args ir.IRObject, caller ir.Caller) (*CallResult, error) {
	log := h.log.With(
		zap.String("reducer", reducer),
		zap.String("request_id", requestID),
	)

	seq := h.clock.Next()
	invID, err := ir.InvocationID(requestID, reducer, args, seq)
	if err != nil {
		return nil, errors.Wrap(err, "invocation id")
	}

	inv := ir.Invocation{
		ID:          invID,
		RequestID:   requestID,
		Reducer:     reducer,
		Args:        args,
		Seq:         seq,
		Caller:      caller,
		ModuleHash:  h.moduleHash,
		HostVersion: ir.HostVersion,
		IRVersion:   ir.IRVersion,
	}
	if err := h.store.WriteInvocation(ctx, inv); err != nil {
		return nil, &CallError{Code: ErrCodeStorage, Reducer: reducer, Message: "write invocation", Err: err}
	}
	log.Debug("call started", zap.Int64("seq", seq))

	comp, callErr := h.runInTx(ctx, inv, h.clock.Next())
	if comp.ID == "" {
		log.Error("call has no completion", zap.Int64("seq", seq), zap.Error(callErr))
		return nil, callErr
	}

	result := &CallResult{
		RequestID:     requestID,
		InvocationID:  invID,
		CompletionID:  comp.ID,
		Seq:           seq,
		CompletionSeq: comp.Seq,
		Outcome:       comp.Outcome,
		Err:           callErr,
	}

	if callErr != nil {
		log.Warn("call failed",
			zap.Int64("seq", seq),
			zap.String("outcome", comp.Outcome),
			zap.Error(callErr),
		)
		return result, callErr
	}
	log.Info("call committed",
		zap.Int64("seq", seq),
		zap.String("outcome", comp.Outcome),
	)
	return result, nil
}

// runInTx runs the reducer and writes its committed completion inside one
// transaction, so a call is committed exactly when its completion is.
//
// A call that does not commit is rolled back and gets a failed completion
// written on its own; the *CallError is returned with it. When even that
// write fails the returned completion is zero and the error is a
// STORAGE_FAILED *CallError: the invocation stays without an outcome and
// no table was changed.
func (h *Host) runInTx(ctx context.Context, inv ir.Invocation, compSeq int64) (ir.Completion, error) {
	fn, _ := h.reg.Lookup(inv.Reducer)

	tx, err := h.store.Begin(ctx)
	if err != nil {
		return h.fail(ctx, inv, compSeq, &CallError{Code: ErrCodeStorage, Reducer: inv.Reducer, Message: "begin transaction", Err: err})
	}

	rc := &ReducerContext{
		ctx:       ctx,
		DB:        &DB{ctx: ctx, tx: tx},
		Caller:    inv.Caller,
		RequestID: inv.RequestID,
		Seq:       inv.Seq,
		Log:       h.moduleLog,
	}

	if err := invoke(fn, rc, inv.Args); err != nil {
		h.rollback(tx, inv.Reducer)
		code := ErrCodeReducerFailed
		if errors.Is(err, store.ErrCapacityExceeded) {
			code = ErrCodeCapacityExceeded
		}
		return h.fail(ctx, inv, compSeq, &CallError{Code: code, Reducer: inv.Reducer, Message: err.Error(), Err: err})
	}

	comp, err := newCompletion(inv, ir.OutcomeCommitted, "", compSeq)
	if err != nil {
		h.rollback(tx, inv.Reducer)
		return ir.Completion{}, &CallError{Code: ErrCodeStorage, Reducer: inv.Reducer, Message: "completion id", Err: err}
	}
	if err := tx.WriteCompletion(ctx, comp); err != nil {
		h.rollback(tx, inv.Reducer)
		return h.fail(ctx, inv, compSeq, &CallError{Code: ErrCodeStorage, Reducer: inv.Reducer, Message: "write completion", Err: err})
	}
	if err := tx.Commit(); err != nil {
		return h.fail(ctx, inv, compSeq, &CallError{Code: ErrCodeStorage, Reducer: inv.Reducer, Message: "commit", Err: err})
	}
	return comp, nil
}

// fail records a failed completion for a call that did not commit.
func (h *Host) fail(ctx context.Context, inv ir.Invocation, compSeq int64, callErr *CallError) (ir.Completion, error) {
	comp, err := newCompletion(inv, ir.OutcomeFailed, callErr.Error(), compSeq)
	if err == nil {
		err = h.store.WriteCompletion(ctx, comp)
	}
	if err != nil {
		return ir.Completion{}, &CallError{
			Code:    ErrCodeStorage,
			Reducer: inv.Reducer,
			Message: "write completion",
			Err:     errors.CombineErrors(err, callErr),
		}
	}
	return comp, callErr
}

func (h *Host) rollback(tx store.Tx, reducer string) {
	if err := tx.Rollback(); err != nil {
		h.log.Error("rollback failed", zap.String("reducer", reducer), zap.Error(err))
	}
}

func newCompletion(inv ir.Invocation, outcome, errMsg string, seq int64) (ir.Completion, error) {
	id, err := ir.CompletionID(inv.ID, outcome, errMsg, seq)
	if err != nil {
		return ir.Completion{}, errors.Wrap(err, "completion id")
	}
	return ir.Completion{
		ID:           id,
		InvocationID: inv.ID,
		Outcome:      outcome,
		Error:        errMsg,
		Seq:          seq,
		Caller:       inv.Caller,
	}, nil
}

// invoke calls fn and turns a panic into an error.
func invoke(fn Reducer, rc *ReducerContext, args ir.IRObject) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("reducer panicked: %v", r)
		}
	}()
	return fn(rc, args)
}
