package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocationIDStable(t *testing.T) {
	args := IRObject{"name": IRString("Ada"), "age": IRInt(30)}

	id1, err := InvocationID("req-1", "add_person", args, 1)
	require.NoError(t, err)
	id2, err := InvocationID("req-1", "add_person", IRObject{"age": IRInt(30), "name": IRString("Ada")}, 1)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64)
}

func TestInvocationIDDiffersBySeq(t *testing.T) {
	args := IRObject{"name": IRString("Ada"), "age": IRInt(30)}
	assert.NotEqual(t,
		MustInvocationID("req-1", "add_person", args, 1),
		MustInvocationID("req-1", "add_person", args, 2),
	)
}

func TestInvocationIDNilArgs(t *testing.T) {
	assert.Equal(t,
		MustInvocationID("req-1", "say_hello", nil, 3),
		MustInvocationID("req-1", "say_hello", IRObject{}, 3),
	)
}

func TestCompletionIDDiffersByOutcome(t *testing.T) {
	ok, err := CompletionID("inv", OutcomeCommitted, "", 2)
	require.NoError(t, err)
	failed, err := CompletionID("inv", OutcomeFailed, "boom", 2)
	require.NoError(t, err)
	assert.NotEqual(t, ok, failed)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("same")
	assert.NotEqual(t, hashWithDomain(DomainInvocation, data), hashWithDomain(DomainCompletion, data))
}

func TestStateHash(t *testing.T) {
	rows := []IRObject{
		{"id": IRInt(1), "name": IRString("Ada"), "age": IRInt(30)},
		{"id": IRInt(2), "name": IRString("Bob"), "age": IRInt(25)},
	}

	h1, err := StateHash(map[string][]IRObject{"person": rows})
	require.NoError(t, err)
	h2, err := StateHash(map[string][]IRObject{"person": {rows[0].Clone(), rows[1].Clone()}})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	reordered, err := StateHash(map[string][]IRObject{"person": {rows[1], rows[0]}})
	require.NoError(t, err)
	assert.NotEqual(t, h1, reordered)

	empty, err := StateHash(map[string][]IRObject{"person": nil})
	require.NoError(t, err)
	assert.NotEqual(t, h1, empty)
}

func TestModuleHashChangesWithSchema(t *testing.T) {
	def := &ModuleDef{
		Name: "m",
		Tables: []TableDef{{
			Name:    "t",
			Columns: []ColumnDef{{Name: "id", Type: TypeU64, PrimaryKey: true, AutoInc: true}},
		}},
	}
	h1, err := ModuleHash(def)
	require.NoError(t, err)

	def.Tables[0].Columns = append(def.Tables[0].Columns, ColumnDef{Name: "name", Type: TypeString})
	h2, err := ModuleHash(def)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
