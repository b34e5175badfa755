// Package host runs a module's reducers against a store.
//
// A Host owns everything a module needs at runtime: the storage handle,
// the logical clock, the reducer dispatch table, per-call transactions, the
// call log and the module's diagnostic log sink.
//
// Single-Writer Loop:
// Calls are queued FIFO and executed one at a time by Run. Each call runs
// inside exactly one store transaction, so a reducer never observes another
// call's partial writes.
//
// Call Processing:
//  1. Call looks up the reducer and checks args against its signature
//  2. the call is queued; Run takes it off the queue
//  3. the invocation is stamped with Clock.Next() and written to the call log
//  4. a transaction is opened and the reducer runs with a ReducerContext
//  5. Commit on success, Rollback on error or panic
//  6. the completion is stamped and written to the call log
//
// Calls rejected in step 1 never reach the queue and are not logged.
//
// Logical Clock:
// Invocations and completions are stamped with a monotonic seq.
// Wall-clock time is never used for ordering.
package host
