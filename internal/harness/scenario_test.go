package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
caller: alice
max_rows: 3
flow:
  - call: add_person
    args:
      name: "Ada"
      age: 30
  - call: say_hello
    args: {}
    expect:
      outcome: committed
assertions:
  - type: trace_contains
    reducer: add_person
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", s.Name)
	assert.Equal(t, "alice", s.Caller)
	assert.Equal(t, int64(3), s.MaxRows)
	require.Len(t, s.Flow, 2)
	assert.Equal(t, "add_person", s.Flow[0].Call)
	assert.Equal(t, "Ada", s.Flow[0].Args["name"])
	assert.Equal(t, 30, s.Flow[0].Args["age"])
	assert.Nil(t, s.Flow[0].Expect)
	assert.Equal(t, OutcomeCommitted, s.Flow[1].Expect.Outcome)
	assert.Empty(t, s.Flow[1].Args)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"missing name",
			"description: d\nflow: [{call: x, args: {}}]\nassertions: [{type: row_count, table: t}]\n",
			"name is required",
		},
		{
			"missing description",
			"name: n\nflow: [{call: x, args: {}}]\nassertions: [{type: row_count, table: t}]\n",
			"description is required",
		},
		{
			"missing flow",
			"name: n\ndescription: d\nassertions: [{type: row_count, table: t}]\n",
			"flow list is required",
		},
		{
			"missing assertions",
			"name: n\ndescription: d\nflow: [{call: x, args: {}}]\n",
			"assertions list is required",
		},
		{
			"step without call",
			"name: n\ndescription: d\nflow: [{args: {}}]\nassertions: [{type: row_count, table: t}]\n",
			"flow[0]: call is required",
		},
		{
			"step without args",
			"name: n\ndescription: d\nflow: [{call: x}]\nassertions: [{type: row_count, table: t}]\n",
			"flow[0]: args is required",
		},
		{
			"bad outcome",
			"name: n\ndescription: d\nflow: [{call: x, args: {}, expect: {outcome: Success}}]\nassertions: [{type: row_count, table: t}]\n",
			"outcome must be",
		},
		{
			"negative max rows",
			"name: n\ndescription: d\nmax_rows: -1\nflow: [{call: x, args: {}}]\nassertions: [{type: row_count, table: t}]\n",
			"max_rows",
		},
		{
			"unknown field",
			"name: n\ndescription: d\nassertion: []\nflow: [{call: x, args: {}}]\nassertions: [{type: row_count, table: t}]\n",
			"field assertion not found",
		},
		{
			"malformed",
			"name: [unclosed\n",
			"parse scenario YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"trace_contains ok", Assertion{Type: AssertTraceContains, Reducer: "add_person"}, ""},
		{"trace_contains no reducer", Assertion{Type: AssertTraceContains}, "reducer is required"},
		{"trace_order ok", Assertion{Type: AssertTraceOrder, Reducers: []string{"a", "b"}}, ""},
		{"trace_order empty", Assertion{Type: AssertTraceOrder}, "reducers list is required"},
		{"trace_count zero", Assertion{Type: AssertTraceCount, Reducer: "a", Count: 0}, ""},
		{"trace_count negative", Assertion{Type: AssertTraceCount, Reducer: "a", Count: -1}, "non-negative"},
		{"final_state ok", Assertion{Type: AssertFinalState, Table: "person", Expect: map[string]any{"age": 1}}, ""},
		{"final_state no table", Assertion{Type: AssertFinalState, Expect: map[string]any{"age": 1}}, "table is required"},
		{"final_state no expect", Assertion{Type: AssertFinalState, Table: "person"}, "expect is required"},
		{"row_count ok", Assertion{Type: AssertRowCount, Table: "person"}, ""},
		{"row_count no table", Assertion{Type: AssertRowCount}, "table is required"},
		{"log_count ok", Assertion{Type: AssertLogCount, Message: "hi", Count: 2}, ""},
		{"log_count no message", Assertion{Type: AssertLogCount}, "message is required"},
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "state_equals"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", "")
	writeScenario(t, dir, "a.yml", "")
	writeScenario(t, dir, "notes.txt", "")
	single := writeScenario(t, t.TempDir(), "single.yaml", "")

	paths, err := FindScenarios(dir, single)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		single,
	}, paths)

	_, err = FindScenarios(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLoadBundledScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			assert.NoError(t, err)
		})
	}
}
