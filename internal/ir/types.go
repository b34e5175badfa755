package ir

// Column types understood by the host. Unsigned types are range-checked at
// the argument and insert boundaries.
const (
	TypeString = "string"
	TypeU32    = "u32"
	TypeU64    = "u64"
	TypeBool   = "bool"
)

// ValidTypes lists the allowed column and argument types.
var ValidTypes = map[string]bool{
	TypeString: true,
	TypeU32:    true,
	TypeU64:    true,
	TypeBool:   true,
}

// ModuleDef is a compiled module declaration: its tables and the reducers
// it exposes to callers.
type ModuleDef struct {
	Name     string       `json:"name"`
	Tables   []TableDef   `json:"tables"`
	Reducers []ReducerSig `json:"reducers"`
}

// Table returns the named table definition.
func (m *ModuleDef) Table(name string) (*TableDef, bool) {
	for i := range m.Tables {
		if m.Tables[i].Name == name {
			return &m.Tables[i], true
		}
	}
	return nil, false
}

// Reducer returns the named reducer signature.
func (m *ModuleDef) Reducer(name string) (*ReducerSig, bool) {
	for i := range m.Reducers {
		if m.Reducers[i].Name == name {
			return &m.Reducers[i], true
		}
	}
	return nil, false
}

// TableDef declares a persisted table.
type TableDef struct {
	Name    string      `json:"name"`
	Public  bool        `json:"public"`
	Columns []ColumnDef `json:"columns"`
}

// PrimaryKey returns the primary-key column.
func (t *TableDef) PrimaryKey() (*ColumnDef, bool) {
	for i := range t.Columns {
		if t.Columns[i].PrimaryKey {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// AutoInc returns the auto-incremented column, if any.
func (t *TableDef) AutoInc() (*ColumnDef, bool) {
	for i := range t.Columns {
		if t.Columns[i].AutoInc {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Column returns the named column.
func (t *TableDef) Column(name string) (*ColumnDef, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnDef declares one column of a table.
type ColumnDef struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	AutoInc    bool   `json:"auto_inc,omitempty"`
}

// ReducerSig is the declared signature of a remote-callable reducer.
type ReducerSig struct {
	Name string     `json:"name"`
	Args []NamedArg `json:"args"`
}

// NamedArg is a named, typed reducer argument.
type NamedArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Call outcomes recorded on a Completion.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
)

// Caller identifies who invoked a reducer. Recorded on every call-log entry
// for audit; reducers receive it but the host never interprets it.
type Caller struct {
	Identity     string `json:"identity"`
	ConnectionID string `json:"connection_id"`
}

// Invocation records a reducer call as it was received.
type Invocation struct {
	ID          string   `json:"id"` // content-addressed
	RequestID   string   `json:"request_id"`
	Reducer     string   `json:"reducer"`
	Args        IRObject `json:"args"`
	Seq         int64    `json:"seq"`
	Caller      Caller   `json:"caller"`
	ModuleHash  string   `json:"module_hash"`
	HostVersion string   `json:"host_version"`
	IRVersion   string   `json:"ir_version"`
}

// Completion records how a reducer call ended.
type Completion struct {
	ID           string `json:"id"` // content-addressed
	InvocationID string `json:"invocation_id"`
	Outcome      string `json:"outcome"`
	Error        string `json:"error,omitempty"`
	Seq          int64  `json:"seq"`
	Caller       Caller `json:"caller"`
}
