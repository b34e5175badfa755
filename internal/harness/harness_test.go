package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
)

func TestRun_AddAndGreet(t *testing.T) {
	h := newPersonHarness(t)
	s := mustParse(t, `
name: add_and_greet
description: two people then a greeting
flow:
  - call: add_person
    args: { name: Ada, age: 30 }
  - call: add_person
    args: { name: Bob, age: 25 }
  - call: say_hello
    args: {}
assertions:
  - type: row_count
    table: person
    count: 2
  - type: final_state
    table: person
    where: { name: Bob }
    expect: { id: 2, age: 25 }
  - type: log_count
    message: "Hello from PersonRegistry!"
    count: 1
  - type: trace_order
    reducers: [add_person, say_hello]
`)

	result, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 7)
	assert.Equal(t, TraceEvent{
		Type:      EventInvocation,
		Reducer:   "add_person",
		RequestID: "add_and_greet-1",
		Args:      map[string]any{"name": "Ada", "age": int64(30)},
		Seq:       1,
	}, result.Trace[0])
	assert.Equal(t, TraceEvent{Type: EventCompletion, Reducer: "add_person", Outcome: ir.OutcomeCommitted, Seq: 2}, result.Trace[1])
	assert.Equal(t, TraceEvent{Type: EventLog, Level: "info", Message: "Hello from PersonRegistry!"}, result.Trace[5])
	assert.Equal(t, int64(6), result.Trace[6].Seq)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	h := newPersonHarness(t)
	s := mustParse(t, `
name: mismatch
description: expects a failure that does not happen
flow:
  - call: say_hello
    args: {}
    expect: { outcome: failed }
assertions:
  - type: row_count
    table: person
    count: 0
`)

	result, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected outcome failed, got committed")
}

func TestRun_Rejected(t *testing.T) {
	h := newPersonHarness(t)
	s := mustParse(t, `
name: rejected
description: bad calls never reach the log
flow:
  - call: add_person
    args: { name: Ada }
    expect: { outcome: rejected, code: INVALID_ARGS }
  - call: remove_person
    args: {}
    expect: { outcome: rejected, code: UNKNOWN_REDUCER }
  - call: add_person
    args: { name: Ada, age: -1 }
    expect: { outcome: rejected }
assertions:
  - type: row_count
    table: person
    count: 0
  - type: trace_count
    reducer: add_person
    count: 0
`)

	result, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 3)
	for _, e := range result.Trace {
		assert.Equal(t, EventRejected, e.Type)
		assert.Zero(t, e.Seq)
	}
	assert.Equal(t, string(host.ErrCodeUnknownReducer), result.Trace[1].Code)
}

func TestRun_CapacityFailure(t *testing.T) {
	h := newPersonHarness(t)
	s := mustParse(t, `
name: capacity
description: the third insert does not fit
max_rows: 2
flow:
  - call: add_person
    args: { name: Ada, age: 30 }
  - call: add_person
    args: { name: Bob, age: 25 }
  - call: add_person
    args: { name: Cy, age: 40 }
    expect: { outcome: failed, code: CAPACITY_EXCEEDED }
  - call: say_hello
    args: {}
assertions:
  - type: row_count
    table: person
    count: 2
  - type: trace_count
    reducer: add_person
    count: 3
`)

	result, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WrongCode(t *testing.T) {
	h := newPersonHarness(t)
	s := mustParse(t, `
name: wrong_code
description: code is checked when the outcome matches
flow:
  - call: add_person
    args: { name: Ada }
    expect: { outcome: rejected, code: UNKNOWN_REDUCER }
assertions:
  - type: row_count
    table: person
    count: 0
`)

	result, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected code UNKNOWN_REDUCER, got "INVALID_ARGS"`)
}

func TestRun_FloatArgsAreHarnessErrors(t *testing.T) {
	h := newPersonHarness(t)
	s := mustParse(t, `
name: floats
description: floats cannot be converted
flow:
  - call: add_person
    args: { name: Ada, age: 30.5 }
assertions:
  - type: row_count
    table: person
    count: 0
`)

	_, err := h.Run(context.Background(), s)
	assert.ErrorContains(t, err, "flow[0]: args")
}

func TestRun_DeterministicAndIsolated(t *testing.T) {
	h := newPersonHarness(t)
	s := mustParse(t, `
name: repeat
description: same scenario twice
caller: tester
flow:
  - call: add_person
    args: { name: Ada, age: 30 }
assertions:
  - type: final_state
    table: person
    where: { name: Ada }
    expect: { id: 1 }
`)

	first, err := h.Run(context.Background(), s)
	require.NoError(t, err)
	second, err := h.Run(context.Background(), s)
	require.NoError(t, err)

	assert.True(t, second.Pass, "errors: %v", second.Errors)
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.State, second.State)
}

func TestNew_RejectsMismatchedRegistry(t *testing.T) {
	def := &ir.ModuleDef{
		Name: "m",
		Tables: []ir.TableDef{{
			Name:    "t",
			Columns: []ir.ColumnDef{{Name: "id", Type: ir.TypeU64, PrimaryKey: true, AutoInc: true}},
		}},
		Reducers: []ir.ReducerSig{{Name: "noop"}},
	}
	_, err := New(def, host.NewRegistry())
	assert.ErrorContains(t, err, "no handler for declared reducers: noop")
}
