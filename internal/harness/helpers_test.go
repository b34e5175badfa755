package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/personmod/internal/person"
)

func newPersonHarness(t *testing.T) *Harness {
	t.Helper()
	def, err := person.Definition()
	require.NoError(t, err)
	reg, err := person.NewRegistry()
	require.NoError(t, err)
	h, err := New(def, reg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return h
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}
