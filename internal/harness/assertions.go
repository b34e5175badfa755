package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/personmod/internal/ir"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		n := 0
		for _, event := range e.Trace {
			if event.Type == EventInvocation || event.Type == EventRejected {
				n++
				fmt.Fprintf(&buf, "  [%d] %s %v (%s)\n", n, event.Reducer, event.Args, event.Type)
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(result.State, a)
		case AssertRowCount:
			err = assertRowCount(result.State, a)
		case AssertLogCount:
			err = assertLogCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// assertTraceContains passes when an executed call to the reducer has args
// containing every expected key and value.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Type == EventInvocation && event.Reducer == a.Reducer && matchFields(event.Args, a.Args) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("call %s with args %v", a.Reducer, a.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder compares first occurrences. Other calls may come between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventInvocation {
			continue
		}
		if _, seen := positions[event.Reducer]; !seen {
			positions[event.Reducer] = i + 1
		}
	}

	for _, r := range a.Reducers {
		if positions[r] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all reducers called: %v", a.Reducers),
				Actual:   fmt.Sprintf("missing call: %s", r),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Reducers); i++ {
		prev, curr := a.Reducers[i-1], a.Reducers[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("calls in order: %v", a.Reducers),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventInvocation && event.Reducer == a.Reducer {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d calls to %s", a.Count, a.Reducer),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertLogCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventLog && event.Message == a.Message {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d log entries %q", a.Count, a.Message),
			Actual:   fmt.Sprintf("%d entries", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertRowCount(state map[string][]map[string]any, a Assertion) error {
	rows, ok := state[a.Table]
	if !ok {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("table %s", a.Table),
			Actual:   "no such table",
		}
	}
	if len(rows) != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	return nil
}

// assertFinalState requires exactly one row matching Where, then checks the
// Expect fields on it.
func assertFinalState(state map[string][]map[string]any, a Assertion) error {
	rows, ok := state[a.Table]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("table %s", a.Table),
			Actual:   "no such table",
		}
	}

	var matched []map[string]any
	for _, row := range rows {
		if matchFields(row, a.Where) {
			matched = append(matched, row)
		}
	}

	whereDesc := formatWhere(a.Where)
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(matched)),
		}
	}

	row := matched[0]
	for _, key := range sortedKeys(a.Expect) {
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("columns: %v", sortedKeys(row)),
			}
		}
		if !valuesEqual(actual, a.Expect[key]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, a.Expect[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, actual),
			}
		}
	}
	return nil
}

// matchFields is a subset match: every expected key must be present with an
// equal value. Extra keys in actual are ignored.
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares via IR so that YAML ints and stored int64 agree.
func valuesEqual(actual, expected any) bool {
	a, errA := ir.FromGo(actual)
	e, errE := ir.FromGo(expected)
	if errA != nil || errE != nil {
		return reflect.DeepEqual(actual, expected)
	}
	return reflect.DeepEqual(a, e)
}

func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
