package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is what golden files record: the trace and final state of
// one scenario.
type TraceSnapshot struct {
	ScenarioName string                      `json:"scenario_name"`
	Trace        []TraceEvent                `json:"trace"`
	State        map[string][]map[string]any `json:"state"`
}

// MarshalSnapshot renders a result as indented JSON with sorted map keys.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		State:        result.State,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs s and compares its snapshot with
// testdata/golden/<name>.golden. Regenerate with -update.
func (h *Harness) RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := h.Run(context.Background(), s)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, s.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
