package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
)

// Memory is a process-local Store. It has the same semantics as SQLite and
// is used by tests and by replay verification.
//
// A transaction holds the store exclusively until Commit or Rollback;
// its inserts are staged and only become visible on Commit.
type Memory struct {
	def    *ir.ModuleDef
	opts   options
	sem    chan struct{}
	closed atomic.Bool

	tables map[string][]ir.IRObject
	seqs   map[string]uint64

	logMu       sync.Mutex
	invocations map[string]ir.Invocation
	completions map[string]ir.Completion
	completed   map[string]bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store for the tables def declares.
func NewMemory(def *ir.ModuleDef, opts ...Option) *Memory {
	m := &Memory{
		def:         def,
		opts:        buildOptions(opts),
		sem:         make(chan struct{}, 1),
		tables:      make(map[string][]ir.IRObject),
		seqs:        make(map[string]uint64),
		invocations: make(map[string]ir.Invocation),
		completions: make(map[string]ir.Completion),
		completed:   make(map[string]bool),
	}
	return m
}

// Begin waits for exclusive access or for ctx to be cancelled.
func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "begin transaction")
	}
	if m.closed.Load() {
		<-m.sem
		return nil, ErrClosed
	}
	return &memoryTx{
		m:      m,
		staged: make(map[string][]ir.IRObject),
		seqs:   make(map[string]uint64),
	}, nil
}

func (m *Memory) Close() error {
	m.sem <- struct{}{}
	m.closed.Store(true)
	<-m.sem
	return nil
}

func (m *Memory) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.logMu.Lock()
	defer m.logMu.Unlock()

	if _, ok := m.invocations[inv.ID]; ok {
		return nil
	}
	inv.Args = inv.Args.Clone()
	m.invocations[inv.ID] = inv
	return nil
}

func (m *Memory) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.logMu.Lock()
	defer m.logMu.Unlock()

	if err := m.checkInvocation(comp); err != nil {
		return err
	}
	m.recordCompletion(comp)
	return nil
}

// checkInvocation and recordCompletion expect logMu to be held.
func (m *Memory) checkInvocation(comp ir.Completion) error {
	if _, ok := m.invocations[comp.InvocationID]; !ok {
		return errors.Newf("write completion: invocation %s not found", comp.InvocationID)
	}
	return nil
}

func (m *Memory) recordCompletion(comp ir.Completion) {
	if _, ok := m.completions[comp.ID]; ok || m.completed[comp.InvocationID] {
		return
	}
	m.completions[comp.ID] = comp
	m.completed[comp.InvocationID] = true
}

func (m *Memory) ReadCalls(ctx context.Context) ([]ir.Invocation, []ir.Completion, error) {
	if m.closed.Load() {
		return nil, nil, ErrClosed
	}
	m.logMu.Lock()
	defer m.logMu.Unlock()

	invocations := make([]ir.Invocation, 0, len(m.invocations))
	for _, inv := range m.invocations {
		inv.Args = inv.Args.Clone()
		invocations = append(invocations, inv)
	}
	slices.SortFunc(invocations, func(a, b ir.Invocation) int {
		return cmp.Or(cmp.Compare(a.Seq, b.Seq), cmp.Compare(a.ID, b.ID))
	})

	completions := make([]ir.Completion, 0, len(m.completions))
	for _, comp := range m.completions {
		completions = append(completions, comp)
	}
	slices.SortFunc(completions, func(a, b ir.Completion) int {
		return cmp.Or(cmp.Compare(a.Seq, b.Seq), cmp.Compare(a.ID, b.ID))
	})

	return invocations, completions, nil
}

func (m *Memory) LastSeq(ctx context.Context) (int64, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	m.logMu.Lock()
	defer m.logMu.Unlock()

	var last int64
	for _, inv := range m.invocations {
		last = max(last, inv.Seq)
	}
	for _, comp := range m.completions {
		last = max(last, comp.Seq)
	}
	return last, nil
}

type memoryTx struct {
	m      *Memory
	done   bool
	staged map[string][]ir.IRObject
	seqs   map[string]uint64
	comps  []ir.Completion
}

func (t *memoryTx) table(name string) (*ir.TableDef, error) {
	if t.done {
		return nil, ErrTxDone
	}
	td, ok := t.m.def.Table(name)
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "%q", name)
	}
	return td, nil
}

// rows returns committed rows followed by this transaction's staged rows.
func (t *memoryTx) rows(table string) []ir.IRObject {
	committed := t.m.tables[table]
	staged := t.staged[table]
	out := make([]ir.IRObject, 0, len(committed)+len(staged))
	out = append(out, committed...)
	return append(out, staged...)
}

func (t *memoryTx) nextValue(table string) uint64 {
	if next, ok := t.seqs[table]; ok {
		return next
	}
	if next, ok := t.m.seqs[table]; ok {
		return next
	}
	return 1
}

func (t *memoryTx) Insert(ctx context.Context, table string, row ir.IRObject) (ir.IRObject, error) {
	td, err := t.table(table)
	if err != nil {
		return nil, err
	}

	out, err := prepareRow(td, row)
	if err != nil {
		return nil, err
	}

	existing := t.rows(td.Name)
	if err := checkCapacity(td, int64(len(existing)), t.m.opts.maxRows); err != nil {
		return nil, err
	}

	col, hasSeq := td.AutoInc()
	var next uint64
	if hasSeq {
		next = t.nextValue(td.Name)
		if err := checkSequence(td, col, next); err != nil {
			return nil, err
		}
		out[col.Name] = ir.IRInt(int64(next))
	}

	pk, _ := td.PrimaryKey()
	for _, r := range existing {
		if compareValues(r[pk.Name], out[pk.Name]) == 0 {
			return nil, errors.Wrapf(ErrUniqueViolation, "insert into %s: duplicate %s", td.Name, pk.Name)
		}
	}

	t.staged[td.Name] = append(t.staged[td.Name], out)
	if hasSeq {
		t.seqs[td.Name] = next + 1
	}
	return out.Clone(), nil
}

func (t *memoryTx) Count(ctx context.Context, table string) (int64, error) {
	td, err := t.table(table)
	if err != nil {
		return 0, err
	}
	return int64(len(t.m.tables[td.Name]) + len(t.staged[td.Name])), nil
}

func (t *memoryTx) Scan(ctx context.Context, table string) ([]ir.IRObject, error) {
	td, err := t.table(table)
	if err != nil {
		return nil, err
	}
	pk, _ := td.PrimaryKey()

	rows := t.rows(td.Name)
	out := make([]ir.IRObject, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	slices.SortStableFunc(out, func(a, b ir.IRObject) int {
		return compareValues(a[pk.Name], b[pk.Name])
	})
	return out, nil
}

func (t *memoryTx) Get(ctx context.Context, table string, pk uint64) (ir.IRObject, bool, error) {
	td, err := t.table(table)
	if err != nil {
		return nil, false, err
	}
	pkCol, _ := td.PrimaryKey()
	if pkCol.Type != ir.TypeU32 && pkCol.Type != ir.TypeU64 {
		return nil, false, errors.Wrapf(ErrTypeMismatch, "table %s has a %s primary key", td.Name, pkCol.Type)
	}

	for _, r := range t.rows(td.Name) {
		if n, ok := r[pkCol.Name].(ir.IRInt); ok && n >= 0 && uint64(n) == pk {
			return r.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (t *memoryTx) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	if t.done {
		return ErrTxDone
	}
	t.m.logMu.Lock()
	defer t.m.logMu.Unlock()

	if err := t.m.checkInvocation(comp); err != nil {
		return err
	}
	t.comps = append(t.comps, comp)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if len(t.comps) > 0 {
		t.m.logMu.Lock()
		for _, comp := range t.comps {
			t.m.recordCompletion(comp)
		}
		t.m.logMu.Unlock()
	}
	for name, rows := range t.staged {
		t.m.tables[name] = append(t.m.tables[name], rows...)
	}
	for name, next := range t.seqs {
		t.m.seqs[name] = next
	}
	<-t.m.sem
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	<-t.m.sem
	return nil
}
