// File path: internal/source/types.go
package source

// Source describes one configured data source. Name is the unique key used
// by monitors and by the answer pipeline; Type selects the executor.
// Connection parameters vary per backend and are carried opaquely.
type Source struct {
	Name    string                 `yaml:"name" json:"name"`
	Type    string                 `yaml:"type" json:"type"`
	Options map[string]interface{} `yaml:",inline" json:"-"`
}

// Payload flattens the descriptor into the JSON object the sidecar expects.
func (s Source) Payload() map[string]interface{} {
	payload := make(map[string]interface{}, len(s.Options)+2)
	for key, value := range s.Options {
		payload[key] = value
	}
	payload["name"] = s.Name
	payload["type"] = s.Type
	return payload
}

// StringOption returns a string-valued connection option, or "" when absent.
func (s Source) StringOption(key string) string {
	if value, ok := s.Options[key].(string); ok {
		return value
	}
	return ""
}

// Introspection is the normalized schema snapshot of one source.
type Introspection struct {
	Schemas []Schema `json:"schemas"`
}

// Schema groups the tables of one database schema.
type Schema struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// Table describes one table: columns, counts, preview rows, and an optional
// error when the backend could not read it (row_count -1, no columns).
type Table struct {
	Name        string                   `json:"name"`
	Columns     []Column                 `json:"columns"`
	RowCount    int64                    `json:"row_count"`
	ColumnCount int                      `json:"column_count"`
	Preview     []map[string]interface{} `json:"preview"`
	Description string                   `json:"description,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// Column is one column of a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Result is an ordered query result set. Columns preserves select-list order
// so callers can apply the first-column fallback when shaping scalars; Rows
// map column names to scalar values (number, text, or null).
type Result struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}
