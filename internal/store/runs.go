package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/dbgen/internal/ir"
)

// Run describes one generation run loaded into the database.
type Run struct {
	TemplateDigest string
	Seed           string
	TotalRows      int64
	Tables         []string
	GeneratedAt    time.Time
}

// RecordRun inserts a run record and returns its id.
//
// The table list is stored as canonical JSON so identical runs produce
// identical records.
func (s *Store) RecordRun(ctx context.Context, run Run) (int64, error) {
	tablesJSON, err := ir.MarshalCanonical(run.Tables)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dbgen_runs (template_digest, seed, total_rows, tables, generated_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.TemplateDigest,
		run.Seed,
		run.TotalRows,
		string(tablesJSON),
		run.GeneratedAt.UTC().Format(ir.TimestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return res.LastInsertId()
}

// Runs returns every recorded run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT template_digest, seed, total_rows, tables, generated_at
		FROM dbgen_runs
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run         Run
			tablesJSON  string
			generatedAt string
		)
		if err := rows.Scan(&run.TemplateDigest, &run.Seed, &run.TotalRows, &tablesJSON, &generatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.Tables, err = unmarshalTables(tablesJSON); err != nil {
			return nil, err
		}
		if run.GeneratedAt, err = time.Parse(ir.TimestampLayout, generatedAt); err != nil {
			return nil, fmt.Errorf("parse generated_at: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
