package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
	EventLog        = "log"
	EventRejected   = "rejected"
)

// TraceEvent is one entry of a scenario trace. Which fields are set depends
// on Type.
type TraceEvent struct {
	Type      string         `json:"type"`
	Reducer   string         `json:"reducer,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Outcome   string         `json:"outcome,omitempty"`
	Code      string         `json:"code,omitempty"`
	Level     string         `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	Seq       int64          `json:"seq,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists calls, their diagnostics and outcomes in execution order.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// State maps each table to its final rows.
	State map[string][]map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]map[string]any),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
