package ir

// Column describes one column of a table schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"` // SQL type used only for schema text
}

// Schema is the ordered column list of a table.
type Schema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// ColumnNames returns the column names in schema order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Qualified returns a copy of the schema whose column names are prefixed
// with the table name ("orders.id"). When qualified is false the schema is
// returned unchanged.
//
// Qualification is resolved once per stream, never per row.
func (s Schema) Qualified(qualified bool) Schema {
	if !qualified {
		return s
	}
	cols := make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = Column{Name: s.Name + "." + c.Name, Type: c.Type}
	}
	return Schema{Name: s.Name, Columns: cols}
}
