package host

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	// Replayed counts committed calls re-executed against the target.
	Replayed int
	// Skipped counts calls that did not commit in the source log.
	Skipped int

	SourceHash string
	ReplayHash string
}

// Deterministic reports whether replay reproduced the source state.
func (r *ReplayResult) Deterministic() bool {
	return r.SourceHash == r.ReplayHash
}

// Replay re-executes every committed call in src's log, in seq order, against
// dst, keeping the original request ids and callers, then compares the
// state hashes of both stores. dst should start empty.
//
// Replay is deterministic because ids come from transactional sequences:
// calls that rolled back in src never consumed an id.
func Replay(ctx context.Context, src, dst store.Store, def *ir.ModuleDef, reg *Registry, opts ...Option) (*ReplayResult, error) {
	invocations, completions, err := src.ReadCalls(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "replay: read calls")
	}

	outcomes := make(map[string]string, len(completions))
	for _, c := range completions {
		outcomes[c.InvocationID] = c.Outcome
	}

	h, err := New(dst, def, reg, append(opts, WithClock(NewClock()))...)
	if err != nil {
		return nil, errors.Wrap(err, "replay")
	}

	result := &ReplayResult{}
	for _, inv := range invocations {
		if outcomes[inv.ID] != ir.OutcomeCommitted {
			result.Skipped++
			continue
		}
		if _, ok := def.Reducer(inv.Reducer); !ok {
			return nil, errors.Newf("replay: invocation %s calls undeclared reducer %q", inv.ID, inv.Reducer)
		}

		if _, err := h.execute(ctx, inv.RequestID, inv.Reducer, inv.Args, inv.Caller); err != nil {
			return nil, errors.Wrapf(err, "replay: invocation %s (seq %d)", inv.ID, inv.Seq)
		}
		result.Replayed++
	}

	if result.SourceHash, err = store.StateHash(ctx, src, def); err != nil {
		return nil, errors.Wrap(err, "replay: source state")
	}
	if result.ReplayHash, err = store.StateHash(ctx, dst, def); err != nil {
		return nil, errors.Wrap(err, "replay: replayed state")
	}
	return result, nil
}
