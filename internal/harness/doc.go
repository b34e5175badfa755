// Package harness runs YAML conformance scenarios against a module.
//
// Each scenario executes on a fresh in-memory store behind a real host, with
// sequential request ids and a logical clock starting at zero, so the same
// scenario always yields the same trace.
//
// # Scenario Format
//
//	name: add_and_greet
//	description: "Two people are added, then say_hello runs"
//	caller: tester            # optional, default "scenario"
//	max_rows: 0               # optional table capacity, 0 = unlimited
//	flow:
//	  - call: add_person
//	    args: { name: Ada, age: 30 }
//	  - call: say_hello
//	    args: {}
//	    expect:
//	      outcome: committed  # committed | failed | rejected
//	      code: ""            # optional error code when not committed
//	assertions:
//	  - type: row_count
//	    table: person
//	    count: 1
//	  - type: final_state
//	    table: person
//	    where: { name: Ada }
//	    expect: { age: 30 }
//
// # Assertion Types
//
//   - trace_contains: a call to reducer with matching args (subset) ran
//   - trace_order: reducers were first called in the given order
//   - trace_count: reducer was called exactly count times
//   - final_state: exactly one row matches where, and it has the expect values
//   - row_count: table holds exactly count rows
//   - log_count: message was emitted exactly count times
//
// # Golden Traces
//
// RunWithGolden compares the trace with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
