package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/dbgen/internal/compiler"
	"github.com/roach88/dbgen/internal/engine"
	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/format"
	"github.com/roach88/dbgen/internal/gen"
	"github.com/roach88/dbgen/internal/ir"
	"github.com/roach88/dbgen/internal/store"
)

// Harness is the test execution engine.
// It holds everything one scenario run needs.
type Harness struct {
	store  *store.Store
	tmpl   *compiler.Template
	plan   *gen.Plan
	format format.Format
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the template
// 2. Generate every file of the plan into memory
// 3. Generate the plan again into a fresh in-memory database
// 4. Evaluate assertions
//
// A compile or generation failure is returned as an error unless the
// scenario asserts on it with an error assertion, in which case it is
// recorded in Result.Err.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg := scenario.Options.config()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	seed, err := cfg.SeedBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	now, err := cfg.NowTime(time.Time{})
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	f, err := format.ByName(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	plan, err := gen.NewPlan(gen.Options{
		Seed:           seed,
		Now:            now,
		TotalRows:      cfg.TotalRows,
		Files:          cfg.Files,
		RowsPerBatch:   cfg.RowsPerBatch,
		Qualified:      cfg.Qualified,
		MaxOccurrences: cfg.MaxOccurrences,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		plan:   plan,
		format: f,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result := NewResult()
	tolerate := expectsError(scenario.Assertions)

	h.tmpl, err = compile(scenario)
	if err != nil {
		if !tolerate {
			return nil, fmt.Errorf("failed to compile template: %w", err)
		}
		result.Err = err
	} else if err := h.generate(ctx, result); err != nil {
		if !tolerate {
			return nil, fmt.Errorf("failed to generate: %w", err)
		}
		result.Err = err
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Store:    st,
		Template: h.tmpl,
		Plan:     plan,
		Format:   f,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func compile(s *Scenario) (*compiler.Template, error) {
	if s.Template != "" {
		return compiler.LoadFile(s.Template)
	}
	return compiler.Compile(s.Name+".cue", []byte(s.Source))
}

func expectsError(assertions []Assertion) bool {
	for _, a := range assertions {
		if a.Type == AssertError {
			return true
		}
	}
	return false
}

// generate renders every file into result.Files and loads the same rows
// into the store.
func (h *Harness) generate(ctx context.Context, result *Result) error {
	tables := h.tmpl.Tables
	for _, ref := range h.plan.Files {
		bufs := make([]*bytes.Buffer, len(tables))
		err := gen.RunFile(ctx, tables, h.plan, ref, func(i int, _ *eval.Table) (engine.Sink, error) {
			bufs[i] = &bytes.Buffer{}
			return format.NewWriterSink(bufs[i], h.format), nil
		})
		if err != nil {
			return fmt.Errorf("file %d: %w", ref.Index, err)
		}
		for i, t := range tables {
			result.Files[h.plan.FileName(t.Name, ref, h.format.Extension())] = bufs[i].Bytes()
		}

		var sinks []*store.Sink
		if err := gen.RunFile(ctx, tables, h.plan, ref, h.store.SinkFactory(ctx, &sinks)); err != nil {
			return fmt.Errorf("file %d: load: %w", ref.Index, err)
		}
		for _, sink := range sinks {
			result.Rows[sink.Table()] += sink.Inserted()
		}

		h.logger.Info("file generated",
			"index", ref.Index,
			"row_start", ref.RowStart,
			"rows", ref.Rows,
		)
	}
	return nil
}

// errorCode extracts the code of a compile or generation error.
func errorCode(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var ie *ir.Error
	if errors.As(err, &ie) {
		return string(ie.Code)
	}
	return ""
}
