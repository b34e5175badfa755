package host

import (
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
)

// Reducer is a remote-callable operation. Args have already been checked
// against the declared signature. Returning an error, or panicking, rolls
// back every write the call made.
type Reducer func(rc *ReducerContext, args ir.IRObject) error

// Registry is an explicit dispatch table from reducer name to handler.
type Registry struct {
	mu       sync.RWMutex
	reducers map[string]Reducer
}

func NewRegistry() *Registry {
	return &Registry{reducers: make(map[string]Reducer)}
}

// Register binds name to fn. Empty names, nil handlers and duplicates are
// rejected.
func (r *Registry) Register(name string, fn Reducer) error {
	if name == "" {
		return errors.New("register reducer: empty name")
	}
	if fn == nil {
		return errors.Newf("register reducer %q: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reducers[name]; ok {
		return errors.Newf("register reducer %q: already registered", name)
	}
	r.reducers[name] = fn
	return nil
}

func (r *Registry) Lookup(name string) (Reducer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.reducers[name]
	return fn, ok
}

// Names returns registered reducer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.reducers))
	for name := range r.reducers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Bind checks that every reducer def declares has a handler and that every
// handler is declared.
func (r *Registry) Bind(def *ir.ModuleDef) error {
	var missing, undeclared []string

	for _, sig := range def.Reducers {
		if _, ok := r.Lookup(sig.Name); !ok {
			missing = append(missing, sig.Name)
		}
	}
	for _, name := range r.Names() {
		if _, ok := def.Reducer(name); !ok {
			undeclared = append(undeclared, name)
		}
	}

	switch {
	case len(missing) > 0:
		return errors.Newf("module %s: no handler for declared reducers: %s",
			def.Name, strings.Join(missing, ", "))
	case len(undeclared) > 0:
		return errors.Newf("module %s: handlers registered for undeclared reducers: %s",
			def.Name, strings.Join(undeclared, ", "))
	}
	return nil
}
