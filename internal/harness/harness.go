package harness

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
	"github.com/roach88/personmod/internal/testutil"
)

// DefaultCaller is the identity calls are made as when a scenario names none.
const DefaultCaller = "scenario"

// Harness runs scenarios for one module.
type Harness struct {
	def *ir.ModuleDef
	reg *host.Registry
	log *zap.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger for host lifecycle messages. Module diagnostics
// are always captured into the trace instead.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) {
		h.log = l
	}
}

// New returns a harness for def whose reducers are in reg.
func New(def *ir.ModuleDef, reg *host.Registry, opts ...Option) (*Harness, error) {
	if err := reg.Bind(def); err != nil {
		return nil, err
	}
	h := &Harness{def: def, reg: reg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run executes s on a fresh in-memory store. The returned error reports a
// harness problem; scenario failures are in Result.Errors.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	st := store.NewMemory(h.def, store.WithMaxRows(s.MaxRows))
	defer st.Close()

	moduleLog, logs := testutil.ObservedLogger(zapcore.DebugLevel)
	hst, err := host.New(st, h.def, h.reg,
		host.WithLogger(h.log.With(zap.String("scenario", s.Name))),
		host.WithModuleLogger(moduleLog.Sugar()),
		host.WithRequestIDs(testutil.NewSequentialIDs(s.Name)),
		host.WithClock(host.NewClock()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "start host")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- hst.Run(runCtx) }()
	defer func() {
		hst.Stop()
		<-done
		cancel()
	}()

	caller := ir.Caller{Identity: s.Caller}
	if caller.Identity == "" {
		caller.Identity = DefaultCaller
	}

	result := NewResult()
	for i, step := range s.Flow {
		if err := h.runStep(ctx, hst, caller, i, step, logs, result); err != nil {
			return nil, err
		}
	}

	if err := h.captureState(ctx, st, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, hst *host.Host, caller ir.Caller, i int, step FlowStep, logs *observer.ObservedLogs, result *Result) error {
	args, err := ir.ObjectFromGo(step.Args)
	if err != nil {
		return errors.Wrapf(err, "flow[%d]: args", i)
	}

	res, callErr := hst.Call(ctx, step.Call, args, caller)

	var got, code string
	switch {
	case res == nil && callErr != nil:
		if !host.IsUnknownReducer(callErr) && !host.IsInvalidArgs(callErr) {
			return errors.Wrapf(callErr, "flow[%d]: %s", i, step.Call)
		}
		got, code = OutcomeRejected, string(host.CodeOf(callErr))
		result.addEvent(TraceEvent{
			Type:    EventRejected,
			Reducer: step.Call,
			Args:    argsToGo(args),
			Code:    code,
		})

	default:
		got, code = res.Outcome, string(host.CodeOf(res.Err))
		result.addEvent(TraceEvent{
			Type:      EventInvocation,
			Reducer:   step.Call,
			RequestID: res.RequestID,
			Args:      argsToGo(args),
			Seq:       res.Seq,
		})
		for _, entry := range logs.TakeAll() {
			result.addEvent(TraceEvent{
				Type:    EventLog,
				Level:   entry.Level.String(),
				Message: entry.Message,
			})
		}
		result.addEvent(TraceEvent{
			Type:    EventCompletion,
			Reducer: step.Call,
			Outcome: res.Outcome,
			Code:    code,
			Seq:     res.CompletionSeq,
		})
	}

	want := ExpectClause{Outcome: OutcomeCommitted}
	if step.Expect != nil {
		want = *step.Expect
	}
	if got != want.Outcome {
		msg := fmt.Sprintf("flow[%d] %s: expected outcome %s, got %s", i, step.Call, want.Outcome, got)
		if callErr != nil {
			msg += ": " + callErr.Error()
		}
		result.AddError(msg)
	} else if want.Code != "" && code != want.Code {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected code %s, got %q", i, step.Call, want.Code, code))
	}
	return nil
}

func (h *Harness) captureState(ctx context.Context, st store.Store, result *Result) error {
	tx, err := st.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "read final state")
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range h.def.Tables {
		rows, err := tx.Scan(ctx, t.Name)
		if err != nil {
			return errors.Wrapf(err, "read final state of %s", t.Name)
		}
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			out = append(out, argsToGo(row))
		}
		result.State[t.Name] = out
	}
	return nil
}

func argsToGo(obj ir.IRObject) map[string]any {
	m, _ := ir.ToGo(obj).(map[string]any)
	return m
}
