package harness

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of calls plus checks on the outcome.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Caller is the identity every call is made as. Defaults to "scenario".
	Caller string `yaml:"caller,omitempty"`

	// MaxRows caps each table, to exercise capacity failures. Zero means
	// unlimited.
	MaxRows int64 `yaml:"max_rows,omitempty"`

	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one reducer call.
type FlowStep struct {
	Call string         `yaml:"call"`
	Args map[string]any `yaml:"args"`

	// Expect defaults to outcome committed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause is the expected outcome of a step.
type ExpectClause struct {
	Outcome string `yaml:"outcome"`
	Code    string `yaml:"code,omitempty"`
}

// Step outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Assertion checks the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Reducer is used by trace_contains and trace_count.
	Reducer string `yaml:"reducer,omitempty"`

	// Args is a subset match for trace_contains.
	Args map[string]any `yaml:"args,omitempty"`

	// Reducers is the expected order for trace_order.
	Reducers []string `yaml:"reducers,omitempty"`

	// Table, Where and Expect are used by final_state and row_count.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Message is used by log_count.
	Message string `yaml:"message,omitempty"`

	// Count is used by trace_count, row_count and log_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
	AssertLogCount      = "log_count"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "parse scenario YAML")
	}
	if err := validateScenario(&s); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &s, nil
}

// FindScenarios expands each path into scenario files. Directories yield
// their *.yaml and *.yml files, sorted; files are returned as given.
func FindScenarios(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "scenario path %s", p)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, errors.Wrapf(err, "scan %s", p)
			}
			found = append(found, matches...)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if s.MaxRows < 0 {
		return errors.New("max_rows must be non-negative")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Call == "" {
			return errors.Newf("flow[%d]: call is required", i)
		}
		if step.Args == nil {
			return errors.Newf("flow[%d]: args is required (use {} if none)", i)
		}
		if step.Expect != nil {
			switch step.Expect.Outcome {
			case OutcomeCommitted, OutcomeFailed, OutcomeRejected:
			default:
				return errors.Newf("flow[%d].expect: outcome must be committed, failed or rejected, got %q", i, step.Expect.Outcome)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return errors.Newf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return errors.Newf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Reducer == "" {
			return errors.Newf("assertions[%d]: reducer is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Reducers) == 0 {
			return errors.Newf("assertions[%d]: reducers list is required for trace_order", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return errors.Newf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return errors.Newf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return errors.Newf("assertions[%d]: table is required for row_count", index)
		}
	case AssertLogCount:
		if a.Message == "" {
			return errors.Newf("assertions[%d]: message is required for log_count", index)
		}
	default:
		return errors.Newf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
