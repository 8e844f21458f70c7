package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/dbgen/internal/engine"
	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/format"
	"github.com/roach88/dbgen/internal/ir"
)

// maxVariables stays below SQLite's default host parameter limit.
const maxVariables = 32000

// Sink inserts one table's rows into the store.
//
// Values are buffered per batch and written when the engine closes the
// batch, so a batch lands atomically.
type Sink struct {
	ctx    context.Context
	store  *Store
	schema ir.Schema

	rows     [][]any
	current  []any
	inserted int64
}

var (
	_ engine.Sink     = (*Sink)(nil)
	_ engine.Finisher = (*Sink)(nil)
)

// SinkFactory returns an engine.SinkFactory creating one Sink per table.
// Created sinks are appended to *sinks when sinks is non-nil.
func (s *Store) SinkFactory(ctx context.Context, sinks *[]*Sink) engine.SinkFactory {
	return func(_ int, _ *eval.Table) (engine.Sink, error) {
		sink := &Sink{ctx: ctx, store: s}
		if sinks != nil {
			*sinks = append(*sinks, sink)
		}
		return sink, nil
	}
}

// Inserted returns the number of rows committed so far.
func (k *Sink) Inserted() int64 {
	return k.inserted
}

// Table returns the table name, known once the file header is written.
func (k *Sink) Table() string {
	return k.schema.Name
}

func (k *Sink) WriteFileHeader(schema ir.Schema) error {
	k.schema = schema
	if _, err := k.store.db.ExecContext(k.ctx, format.CreateTable(schema, true)); err != nil {
		return fmt.Errorf("create table %s: %w", schema.Name, err)
	}
	return nil
}

func (k *Sink) WriteHeader(ir.Schema) error {
	k.rows = k.rows[:0]
	k.current = nil
	return nil
}

func (k *Sink) WriteValueHeader(string) error { return nil }

func (k *Sink) WriteValue(v ir.Value) error {
	k.current = append(k.current, sqlArg(v))
	if len(k.current) == len(k.schema.Columns) {
		k.rows = append(k.rows, k.current)
		k.current = nil
	}
	return nil
}

func (k *Sink) WriteValueSeparator() error { return nil }
func (k *Sink) WriteRowSeparator() error   { return nil }

// WriteTrailer commits the buffered batch in one transaction.
func (k *Sink) WriteTrailer() error {
	if len(k.rows) == 0 {
		return nil
	}
	tx, err := k.store.db.BeginTx(k.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	cols := len(k.schema.Columns)
	perStmt := max(1, maxVariables/cols)
	for start := 0; start < len(k.rows); start += perStmt {
		chunk := k.rows[start:min(start+perStmt, len(k.rows))]
		args := make([]any, 0, len(chunk)*cols)
		for _, row := range chunk {
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(k.ctx, k.insertSQL(len(chunk)), args...); err != nil {
			return fmt.Errorf("insert into %s: %w", k.schema.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	k.inserted += int64(len(k.rows))
	k.rows = k.rows[:0]
	return nil
}

// Finish fails if rows were written after the last batch trailer.
func (k *Sink) Finish() error {
	if len(k.rows) > 0 || k.current != nil {
		return fmt.Errorf("table %s: rows written after the last batch trailer", k.schema.Name)
	}
	return nil
}

// insertSQL builds a parameterised INSERT for n rows.
func (k *Sink) insertSQL(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(format.QuoteIdent(k.schema.Name))
	b.WriteString(" (")
	for i, name := range k.schema.ColumnNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(format.QuoteIdent(name))
	}
	b.WriteString(") VALUES ")

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(k.schema.Columns)), ", ") + ")"
	for i := range n {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
	}
	return b.String()
}
