package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
)

// WriteInvocation inserts an invocation record. Duplicate ids are ignored.
func (s *SQLite) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	argsJSON, err := marshalArgs(inv.Args)
	if err != nil {
		return errors.Wrap(err, "write invocation")
	}
	callerJSON, err := marshalCaller(inv.Caller)
	if err != nil {
		return errors.Wrap(err, "write invocation")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations
		(id, request_id, reducer, args, seq, caller, module_hash, host_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.RequestID,
		inv.Reducer,
		argsJSON,
		inv.Seq,
		callerJSON,
		inv.ModuleHash,
		inv.HostVersion,
		inv.IRVersion,
	)
	if err != nil {
		return errors.Wrap(err, "write invocation")
	}
	return nil
}

// WriteCompletion inserts a completion record. A duplicate id or a second
// completion for the same invocation is ignored. The referenced invocation
// must already exist.
func (s *SQLite) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	return insertCompletion(ctx, s.db, comp)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCompletion(ctx context.Context, db execer, comp ir.Completion) error {
	callerJSON, err := marshalCaller(comp.Caller)
	if err != nil {
		return errors.Wrap(err, "write completion")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO completions
		(id, invocation_id, outcome, error, seq, caller)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		comp.ID,
		comp.InvocationID,
		comp.Outcome,
		comp.Error,
		comp.Seq,
		callerJSON,
	)
	if err != nil {
		return errors.Wrap(err, "write completion")
	}
	return nil
}

// ReadCalls returns every invocation and completion ordered by
// seq ASC, id COLLATE BINARY ASC. Empty logs yield empty, non-nil slices.
func (s *SQLite) ReadCalls(ctx context.Context) ([]ir.Invocation, []ir.Completion, error) {
	invocations, err := s.readInvocations(ctx)
	if err != nil {
		return nil, nil, err
	}
	completions, err := s.readCompletions(ctx)
	if err != nil {
		return nil, nil, err
	}
	return invocations, completions, nil
}

func (s *SQLite) readInvocations(ctx context.Context) ([]ir.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, reducer, args, seq, caller, module_hash, host_version, ir_version
		FROM invocations
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query invocations")
	}
	defer rows.Close()

	invocations := []ir.Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate invocations")
	}
	return invocations, nil
}

func (s *SQLite) readCompletions(ctx context.Context) ([]ir.Completion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invocation_id, outcome, error, seq, caller
		FROM completions
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query completions")
	}
	defer rows.Close()

	completions := []ir.Completion{}
	for rows.Next() {
		comp, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		completions = append(completions, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate completions")
	}
	return completions, nil
}

// LastSeq returns the highest seq in the call log. The host resumes its
// logical clock from this value after a restart.
func (s *SQLite) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			(SELECT COALESCE(MAX(seq), 0) FROM invocations),
			(SELECT COALESCE(MAX(seq), 0) FROM completions)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, errors.Wrap(err, "get last seq")
	}
	return seq, nil
}

func scanInvocation(rows *sql.Rows) (ir.Invocation, error) {
	var inv ir.Invocation
	var argsJSON, callerJSON string

	if err := rows.Scan(
		&inv.ID, &inv.RequestID, &inv.Reducer, &argsJSON, &inv.Seq,
		&callerJSON, &inv.ModuleHash, &inv.HostVersion, &inv.IRVersion,
	); err != nil {
		return ir.Invocation{}, errors.Wrap(err, "scan invocation")
	}

	args, err := unmarshalArgs(argsJSON)
	if err != nil {
		return ir.Invocation{}, err
	}
	inv.Args = args

	caller, err := unmarshalCaller(callerJSON)
	if err != nil {
		return ir.Invocation{}, err
	}
	inv.Caller = caller

	return inv, nil
}

func scanCompletion(rows *sql.Rows) (ir.Completion, error) {
	var comp ir.Completion
	var callerJSON string

	if err := rows.Scan(
		&comp.ID, &comp.InvocationID, &comp.Outcome, &comp.Error, &comp.Seq, &callerJSON,
	); err != nil {
		return ir.Completion{}, errors.Wrap(err, "scan completion")
	}

	caller, err := unmarshalCaller(callerJSON)
	if err != nil {
		return ir.Completion{}, err
	}
	comp.Caller = caller

	return comp, nil
}
