package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/dbgen/internal/ir"
)

// sqlArg converts a generated value to a database/sql argument.
// Timestamps are stored as text in the same layout the text encodings use.
func sqlArg(v ir.Value) any {
	switch val := v.(type) {
	case ir.Null:
		return nil
	case ir.Int:
		return int64(val)
	case ir.Real:
		return float64(val)
	case ir.Text:
		return string(val)
	case ir.Bytes:
		return []byte(val)
	default:
		return ir.Format(v)
	}
}

// unmarshalTables decodes the table list of a run record.
func unmarshalTables(s string) ([]string, error) {
	var tables []string
	if err := json.Unmarshal([]byte(s), &tables); err != nil {
		return nil, fmt.Errorf("unmarshal tables: %w", err)
	}
	return tables, nil
}
