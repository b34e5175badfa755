package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const scenarioDir = "../harness/testdata/scenarios"

// run executes the command line and returns its exit code and output.
func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// tempDB returns a database path that is removed with the test.
func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "people.db")
}

// decode parses a JSON envelope and returns its data.
func decode[T any](t *testing.T, stdout string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func addPerson(t *testing.T, db, name string, age int) {
	t.Helper()
	args, err := json.Marshal(map[string]any{"name": name, "age": age})
	require.NoError(t, err)
	code, stdout, stderr := run(t, "--db", db, "call", "add_person", "--args", string(args))
	require.Equal(t, ExitSuccess, code, "stdout: %s\nstderr: %s", stdout, stderr)
}
