// Package person is the PersonRegistry module: one public table of people
// and two reducers, add_person and say_hello.
//
// The module owns no state. Rows live in the host's store and are reached
// through the ReducerContext passed to each call.
package person

import (
	_ "embed"
	"sync"

	"github.com/roach88/personmod/internal/compiler"
	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

// ModuleName is the declared module name.
const ModuleName = "person_registry"

// TableName is the table holding Person rows.
const TableName = "person"

// Reducer names.
const (
	ReducerAddPerson = "add_person"
	ReducerSayHello  = "say_hello"
)

//go:embed person.cue
var declaration string

var compiled = sync.OnceValues(func() (*ir.ModuleDef, error) {
	return compiler.CompileModuleSource("person.cue", declaration)
})

// Definition returns the compiled module declaration. The result is shared;
// callers must not modify it.
func Definition() (*ir.ModuleDef, error) {
	return compiled()
}

// Declaration returns the CUE source of the module declaration.
func Declaration() string {
	return declaration
}

// Register binds the module's reducers in reg.
func Register(reg *host.Registry) error {
	if err := reg.Register(ReducerAddPerson, addPersonReducer); err != nil {
		return err
	}
	return reg.Register(ReducerSayHello, sayHelloReducer)
}

// NewRegistry returns a registry holding exactly this module's reducers.
func NewRegistry() (*host.Registry, error) {
	reg := host.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// NewHost returns a host serving the module from st.
func NewHost(st store.Store, opts ...host.Option) (*host.Host, error) {
	def, err := Definition()
	if err != nil {
		return nil, err
	}
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	return host.New(st, def, reg, opts...)
}
