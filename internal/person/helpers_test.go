package person

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

var caller = ir.Caller{Identity: "tester", ConnectionID: "conn-1"}

func newStore(t *testing.T, opts ...store.Option) *store.Memory {
	t.Helper()
	def, err := Definition()
	require.NoError(t, err)
	return store.NewMemory(def, opts...)
}

// runHost serves the module from st until the test ends.
func runHost(t *testing.T, st store.Store, opts ...host.Option) *host.Host {
	t.Helper()
	h, err := NewHost(st, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(func() {
		h.Stop()
		<-done
		cancel()
	})
	return h
}

func addPerson(t *testing.T, h *host.Host, name string, age uint32) *host.CallResult {
	t.Helper()
	res, err := h.Call(context.Background(), ReducerAddPerson, ir.IRObject{
		"name": ir.IRString(name),
		"age":  ir.IRInt(int64(age)),
	}, caller)
	require.NoError(t, err)
	return res
}

func sayHello(t *testing.T, h *host.Host) *host.CallResult {
	t.Helper()
	res, err := h.Call(context.Background(), ReducerSayHello, ir.IRObject{}, caller)
	require.NoError(t, err)
	return res
}

func people(t *testing.T, st store.Store) []Person {
	t.Helper()
	list, err := List(context.Background(), st)
	require.NoError(t, err)
	return list
}

func withModuleLog(l *zap.Logger) host.Option {
	return host.WithModuleLogger(l.Sugar())
}
