// Package format provides concrete text encodings for generated rows.
//
// A Format renders the pieces the engine asks for (batch headers, values,
// separators, trailers). WriterSink adapts a Format to engine.Sink over an
// io.Writer.
package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/dbgen/internal/engine"
	"github.com/roach88/dbgen/internal/ir"
)

// Format encodes one output representation.
type Format interface {
	// Extension is the file name extension, without the dot.
	Extension() string

	FileHeader(w io.Writer, schema ir.Schema) error
	Header(w io.Writer, schema ir.Schema) error
	ValueHeader(w io.Writer, column string) error
	Value(w io.Writer, v ir.Value) error
	ValueSeparator(w io.Writer) error
	RowSeparator(w io.Writer) error
	Trailer(w io.Writer) error
}

// Names lists the formats accepted by ByName.
var Names = []string{"csv", "sql"}

// ByName returns a format with default options.
func ByName(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "csv":
		return &CSV{Header: true}, nil
	case "sql":
		return &SQL{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want one of %s)", name, strings.Join(Names, ", "))
	}
}

// WriterSink writes one table's rows to w using f.
type WriterSink struct {
	w io.Writer
	f Format
}

var (
	_ engine.Sink     = (*WriterSink)(nil)
	_ engine.Finisher = (*WriterSink)(nil)
)

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer, f Format) *WriterSink {
	return &WriterSink{w: w, f: f}
}

func (s *WriterSink) WriteFileHeader(schema ir.Schema) error { return s.f.FileHeader(s.w, schema) }
func (s *WriterSink) WriteHeader(schema ir.Schema) error     { return s.f.Header(s.w, schema) }
func (s *WriterSink) WriteValueHeader(column string) error   { return s.f.ValueHeader(s.w, column) }
func (s *WriterSink) WriteValue(v ir.Value) error            { return s.f.Value(s.w, v) }
func (s *WriterSink) WriteValueSeparator() error             { return s.f.ValueSeparator(s.w) }
func (s *WriterSink) WriteRowSeparator() error               { return s.f.RowSeparator(s.w) }
func (s *WriterSink) WriteTrailer() error                    { return s.f.Trailer(s.w) }

// Finish flushes w if it buffers.
func (s *WriterSink) Finish() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}
