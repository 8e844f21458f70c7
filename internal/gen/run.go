package gen

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dbgen/internal/engine"
	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/format"
)

// RunFile generates ref's stream into the sinks built by newSink.
//
// Batches of RowsPerBatch row events are closed with a batch trailer.
// ctx is checked between batches only. Once the stream is complete every
// sink implementing engine.Finisher is finished in template order.
func RunFile(ctx context.Context, tables []*eval.Table, plan *Plan, ref FileRef, newSink engine.SinkFactory) error {
	e, err := engine.New(tables, eval.NewState(plan.Snapshot(ref)), newSink,
		engine.WithQualified(plan.Qualified),
		engine.WithMaxOccurrences(plan.MaxOccurrences),
	)
	if err != nil {
		return err
	}

	for done := int64(0); done < ref.Rows; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(plan.RowsPerBatch, ref.Rows-done)
		for range n {
			if err := e.WriteRowEvent(); err != nil {
				return err
			}
		}
		if err := e.WriteBatchTrailer(); err != nil {
			return err
		}
		done += n
	}
	return finishSinks(e, ref)
}

func finishSinks(e *engine.Engine, ref FileRef) error {
	for _, ts := range e.Tables() {
		f, ok := ts.Sink.(engine.Finisher)
		if !ok {
			continue
		}
		if err := f.Finish(); err != nil {
			return fmt.Errorf("finish table %q: %w", ts.Table.Name, err)
		}
	}
	slog.Debug("stream finished", "file", ref.Index, "next_row", e.State().RowNum)
	return nil
}

// Opener prepares the sinks of one file. finish is called after the
// stream completes, successfully or not, and must release resources.
type Opener func(ref FileRef) (newSink engine.SinkFactory, finish func() error, err error)

// WriteFiles generates every file of the plan, running at most jobs
// streams concurrently. done, if non-nil, is called after each file.
func WriteFiles(ctx context.Context, tables []*eval.Table, plan *Plan, jobs int, open Opener, done func(FileRef)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, jobs))

	for _, ref := range plan.Files {
		g.Go(func() error {
			newSink, finish, err := open(ref)
			if err != nil {
				return err
			}
			runErr := RunFile(ctx, tables, plan, ref, newSink)
			finishErr := finish()
			if runErr != nil {
				return fmt.Errorf("file %d: %w", ref.Index, runErr)
			}
			if finishErr != nil {
				return fmt.Errorf("file %d: %w", ref.Index, finishErr)
			}
			slog.Debug("file generated", "index", ref.Index, "rows", ref.Rows)
			if done != nil {
				done(ref)
			}
			return nil
		})
	}
	return g.Wait()
}

// DirOpener writes every table of a file to dir as
// <table>.<index>.<ext>.
func DirOpener(dir string, plan *Plan, f format.Format) Opener {
	return func(ref FileRef) (engine.SinkFactory, func() error, error) {
		var files []*os.File
		// Writers are flushed by their sinks when the stream completes
		closeAll := func() error {
			var first error
			for _, file := range files {
				if err := file.Close(); err != nil && first == nil {
					first = err
				}
			}
			return first
		}

		newSink := func(_ int, t *eval.Table) (engine.Sink, error) {
			path := filepath.Join(dir, plan.FileName(t.Name, ref, f.Extension()))
			file, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			files = append(files, file)
			return format.NewWriterSink(bufio.NewWriter(file), f), nil
		}
		return newSink, closeAll, nil
	}
}

// RenderTable regenerates ref's stream and returns the bytes of one
// table. Other tables are generated too, since they share the random
// stream, but their output is discarded.
func RenderTable(ctx context.Context, tables []*eval.Table, plan *Plan, ref FileRef, f format.Format, table int) ([]byte, error) {
	var buf bytes.Buffer
	err := RunFile(ctx, tables, plan, ref, func(i int, _ *eval.Table) (engine.Sink, error) {
		if i == table {
			return format.NewWriterSink(&buf, f), nil
		}
		return engine.DiscardSink{}, nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MeasureFile generates ref's stream and returns the byte size of every
// table's output without keeping it.
func MeasureFile(ctx context.Context, tables []*eval.Table, plan *Plan, ref FileRef, f format.Format) ([]int64, error) {
	counters := make([]*countingWriter, len(tables))
	err := RunFile(ctx, tables, plan, ref, func(i int, _ *eval.Table) (engine.Sink, error) {
		counters[i] = &countingWriter{}
		return format.NewWriterSink(counters[i], f), nil
	})
	if err != nil {
		return nil, err
	}
	sizes := make([]int64, len(tables))
	for i, c := range counters {
		sizes[i] = c.n
	}
	return sizes, nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
