package engine

import (
	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/ir"
)

// Sink receives the generated rows of one table.
//
// Call order for one stream:
//
//	WriteFileHeader                      once, at construction
//	WriteHeader                          once per non-empty batch, before its first row
//	  WriteValueHeader, WriteValue       per column
//	  WriteValueSeparator                between columns, never before the first
//	WriteRowSeparator                    between rows of the same batch
//	WriteTrailer                         once per non-empty batch
//
// The engine never violates this order.
type Sink interface {
	WriteFileHeader(schema ir.Schema) error
	WriteHeader(schema ir.Schema) error
	WriteValueHeader(column string) error
	WriteValue(v ir.Value) error
	WriteValueSeparator() error
	WriteRowSeparator() error
	WriteTrailer() error
}

// SinkFactory creates the sink for the table at index.
type SinkFactory func(index int, table *eval.Table) (Sink, error)

// Finisher is implemented by sinks that need a last call once their stream
// has completed without error. Buffered output is flushed there.
type Finisher interface {
	Finish() error
}

// DiscardSink accepts and drops everything.
type DiscardSink struct{}

func (DiscardSink) WriteFileHeader(ir.Schema) error { return nil }
func (DiscardSink) WriteHeader(ir.Schema) error     { return nil }
func (DiscardSink) WriteValueHeader(string) error   { return nil }
func (DiscardSink) WriteValue(ir.Value) error       { return nil }
func (DiscardSink) WriteValueSeparator() error      { return nil }
func (DiscardSink) WriteRowSeparator() error        { return nil }
func (DiscardSink) WriteTrailer() error             { return nil }
