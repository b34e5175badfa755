// Package ir provides the canonical intermediate representation shared by the
// module host and the modules it runs.
//
// ir imports nothing internal. Every other internal package depends on it, so
// it stays the foundational layer:
//   - value types (IRString, IRInt, IRBool, IRObject) used for reducer
//     arguments, table rows and call-log payloads
//   - module definitions (ModuleDef, TableDef, ReducerSig) compiled from CUE
//   - call-log records (Invocation, Completion)
//   - RFC 8785 canonical JSON and content-addressed ids
//
// Constraints:
//   - no float types; numbers are int64
//   - all JSON tags use snake_case
//   - ordering uses the logical seq, never wall-clock time
package ir
