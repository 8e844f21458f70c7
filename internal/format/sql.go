package format

import (
	"encoding/hex"
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/roach88/dbgen/internal/ir"
)

// SQL writes one multi-row INSERT statement per batch.
type SQL struct {
	// Columns lists the column names in every INSERT.
	Columns bool
}

func (*SQL) Extension() string { return "sql" }

func (*SQL) FileHeader(io.Writer, ir.Schema) error { return nil }

func (s *SQL) Header(w io.Writer, schema ir.Schema) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteIdent(schema.Name))
	if s.Columns {
		b.WriteString(" (")
		for i, name := range schema.ColumnNames() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(QuoteIdent(name))
		}
		b.WriteString(")")
	}
	b.WriteString(" VALUES\n(")
	return writeString(w, b.String())
}

func (*SQL) ValueHeader(io.Writer, string) error { return nil }
func (*SQL) ValueSeparator(w io.Writer) error    { return writeString(w, ", ") }
func (*SQL) RowSeparator(w io.Writer) error      { return writeString(w, "),\n(") }
func (*SQL) Trailer(w io.Writer) error           { return writeString(w, ");\n") }

func (*SQL) Value(w io.Writer, v ir.Value) error {
	return writeString(w, SQLLiteral(v))
}

// SQLLiteral renders v as a SQL literal.
func SQLLiteral(v ir.Value) string {
	switch val := v.(type) {
	case ir.Null:
		return "NULL"
	case ir.Real:
		f := float64(val)
		switch {
		case math.IsNaN(f):
			return "'NaN'"
		case math.IsInf(f, 1):
			return "'Infinity'"
		case math.IsInf(f, -1):
			return "'-Infinity'"
		}
		return ir.Format(v)
	case ir.Int:
		return ir.Format(v)
	case ir.Bytes:
		return "X'" + strings.ToUpper(hex.EncodeToString(val)) + "'"
	default:
		return quoteString(ir.Format(v))
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdent double-quotes an identifier unless it is a plain word.
// Qualified names ("orders.id") are quoted as a whole.
func QuoteIdent(name string) string {
	if plainIdent.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Schema renders a CREATE TABLE statement for schema. Columns without a
// declared type are emitted bare.
func Schema(schema ir.Schema) string {
	return CreateTable(schema, false)
}

// CreateTable is Schema with an optional IF NOT EXISTS clause.
func CreateTable(schema ir.Schema, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(QuoteIdent(schema.Name))
	b.WriteString(" (\n")
	for i, col := range schema.Columns {
		b.WriteString("    ")
		b.WriteString(QuoteIdent(col.Name))
		if col.Type != "" {
			b.WriteString(" ")
			b.WriteString(col.Type)
		}
		if i < len(schema.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");\n")
	return b.String()
}
