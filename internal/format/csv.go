package format

import (
	"io"
	"strings"

	"github.com/roach88/dbgen/internal/ir"
)

// CSV writes RFC 4180 records. Every row is one line; batches are not
// visible in the output.
type CSV struct {
	// Header writes the column names as the first line of the file.
	Header bool

	// NullString is written for Null values.
	NullString string
}

func (*CSV) Extension() string { return "csv" }

func (c *CSV) FileHeader(w io.Writer, schema ir.Schema) error {
	if !c.Header {
		return nil
	}
	names := schema.ColumnNames()
	for i, name := range names {
		names[i] = csvQuote(name)
	}
	return writeString(w, strings.Join(names, ",")+"\n")
}

func (*CSV) Header(io.Writer, ir.Schema) error      { return nil }
func (*CSV) ValueHeader(io.Writer, string) error    { return nil }
func (*CSV) ValueSeparator(w io.Writer) error       { return writeString(w, ",") }
func (*CSV) RowSeparator(w io.Writer) error         { return writeString(w, "\n") }
func (*CSV) Trailer(w io.Writer) error              { return writeString(w, "\n") }

func (c *CSV) Value(w io.Writer, v ir.Value) error {
	if _, ok := v.(ir.Null); ok {
		return writeString(w, csvQuote(c.NullString))
	}
	return writeString(w, csvQuote(ir.Format(v)))
}

// csvQuote quotes a field when it contains a delimiter, a quote, a line
// break or leading space.
func csvQuote(s string) string {
	if s == "" {
		return s
	}
	if !strings.ContainsAny(s, ",\"\r\n") && s[0] != ' ' && s[0] != '\t' {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
