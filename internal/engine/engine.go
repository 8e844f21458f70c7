package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/ir"
)

// Engine generates rows for a forest of tables and drives their sinks.
//
// Thread-safety model:
//   - An Engine and its State belong to one goroutine
//   - Separate engines share nothing mutable and may run in parallel
//
// INVARIANTS:
//   - a table reachable from a root is never also a root in the same row
//     event; derived tables are declared after their parents
//   - a sink sees exactly one header and one trailer per non-empty batch
//   - any error aborts the stream; no partial row is ever followed by more
//     output
type Engine struct {
	tables  []*eval.Table
	schemas []ir.Schema
	sinks   []Sink
	state   *eval.State

	// fresh[i]: table i has not been visited in the current row event
	fresh []bool

	// empty[i]: nothing written to table i since the last trailer
	empty []bool

	// descendants[i]: tables reachable from i over derived edges
	descendants [][]int

	qualified bool
	quota     occurrenceQuota
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithQualified prefixes column names with the table name in every schema
// handed to sinks.
func WithQualified(qualified bool) Option {
	return func(e *Engine) {
		e.qualified = qualified
	}
}

// WithMaxOccurrences bounds the occurrences one row event may produce.
//
// Default: 0 (unlimited)
func WithMaxOccurrences(n int64) Option {
	return func(e *Engine) {
		e.quota.limit = n
	}
}

// New validates the tables, creates one sink per table and writes each
// sink's file header.
//
// The tables slice is copied; templates themselves are immutable.
func New(tables []*eval.Table, state *eval.State, newSink SinkFactory, opts ...Option) (*Engine, error) {
	if err := eval.ValidateTables(tables); err != nil {
		return nil, err
	}

	e := &Engine{
		tables: append([]*eval.Table(nil), tables...),
		state:  state,
		fresh:  make([]bool, len(tables)),
		empty:  make([]bool, len(tables)),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.schemas = make([]ir.Schema, len(tables))
	e.sinks = make([]Sink, len(tables))
	e.descendants = make([][]int, len(tables))
	for i, t := range e.tables {
		// Qualification is resolved here, once per stream
		e.schemas[i] = t.Schema(e.qualified)
		e.descendants[i] = reachable(e.tables, i)
		e.empty[i] = true

		sink, err := newSink(i, t)
		if err != nil {
			return nil, fmt.Errorf("creating sink for table %q: %w", t.Name, err)
		}
		if err := sink.WriteFileHeader(e.schemas[i]); err != nil {
			return nil, newSinkError("file header", t.Name, state.RowNum, err)
		}
		e.sinks[i] = sink
	}

	slog.Debug("engine ready", "tables", len(tables), "qualified", e.qualified)
	return e, nil
}

// reachable lists the tables reachable from root over derived edges,
// excluding root. The graph is acyclic, so a plain walk terminates.
func reachable(tables []*eval.Table, root int) []int {
	seen := make([]bool, len(tables))
	var out []int
	stack := []int{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range tables[id].Derived {
			if !seen[d.Child] && d.Child != root {
				seen[d.Child] = true
				out = append(out, d.Child)
				stack = append(stack, d.Child)
			}
		}
	}
	return out
}

// State returns the generation state driven by the engine.
func (e *Engine) State() *eval.State {
	return e.state
}

// TableSink pairs a table with its sink.
type TableSink struct {
	Table *eval.Table
	Sink  Sink
}

// Tables returns every table with its sink, in template order, so callers
// can finalize sinks when the stream ends.
func (e *Engine) Tables() []TableSink {
	out := make([]TableSink, len(e.tables))
	for i, t := range e.tables {
		out[i] = TableSink{Table: t, Sink: e.sinks[i]}
	}
	return out
}

// WriteRowEvent generates one row event: one occurrence of every root table
// together with everything derived from it. RowNum advances by one.
func (e *Engine) WriteRowEvent() error {
	for i := range e.fresh {
		e.fresh[i] = true
	}
	e.quota.reset()

	for i := range e.tables {
		if !e.fresh[i] {
			continue
		}
		for _, d := range e.descendants[i] {
			e.fresh[d] = false
		}
		e.state.SubRowNum = 1
		if err := e.generateOccurrence(i); err != nil {
			return err
		}
	}

	e.state.IncreaseRowNum()
	return nil
}

// generateOccurrence writes one row of table i, then recurses into every
// derived edge in declaration order.
func (e *Engine) generateOccurrence(i int) error {
	t, sink := e.tables[i], e.sinks[i]
	rowNum := e.state.RowNum

	if err := e.quota.check(t.Name, rowNum); err != nil {
		return err
	}

	if e.empty[i] {
		if err := sink.WriteHeader(e.schemas[i]); err != nil {
			return newSinkError("header", t.Name, rowNum, err)
		}
		e.empty[i] = false
	} else if err := sink.WriteRowSeparator(); err != nil {
		return newSinkError("row separator", t.Name, rowNum, err)
	}

	values, err := t.EvalRow(e.state)
	if err != nil {
		return err
	}

	for col, v := range values {
		if col != 0 {
			if err := sink.WriteValueSeparator(); err != nil {
				return newSinkError("value separator", t.Name, rowNum, err)
			}
		}
		if err := sink.WriteValueHeader(e.schemas[i].Columns[col].Name); err != nil {
			return newSinkError("value header", t.Name, rowNum, err)
		}
		if err := sink.WriteValue(v); err != nil {
			return newSinkError("value", t.Name, rowNum, err)
		}
	}

	for _, d := range t.Derived {
		v, err := d.Count.Eval(e.state)
		if err != nil {
			return err
		}
		count, err := eval.ToCount(v, d.Count.Pos())
		if err != nil {
			return err
		}
		for r := int64(1); r <= count; r++ {
			e.state.SubRowNum = r
			if err := e.generateOccurrence(d.Child); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteBatchTrailer closes the current batch of every table that received
// rows since the last call. Tables with nothing written are skipped.
func (e *Engine) WriteBatchTrailer() error {
	for i, t := range e.tables {
		if e.empty[i] {
			continue
		}
		e.empty[i] = true
		if err := e.sinks[i].WriteTrailer(); err != nil {
			return newSinkError("trailer", t.Name, e.state.RowNum, err)
		}
	}
	return nil
}
