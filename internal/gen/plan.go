// Package gen plans generation streams and drives the engine through them.
//
// A run is split into files. Every file is an independent stream with its
// own seed, derived from the run seed, and its own starting row number, so
// any file can be regenerated alone and produce the same bytes.
package gen

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/roach88/dbgen/internal/eval"
)

// FileRef identifies one generated file of a run.
type FileRef struct {
	Index    int   `json:"index"`
	RowStart int64 `json:"row_start"` // row number of the first row event
	Rows     int64 `json:"rows"`      // row events in the file
}

// Options configures a run.
type Options struct {
	Seed           [eval.SeedSize]byte
	Now            time.Time
	TotalRows      int64
	Files          int
	RowsPerBatch   int64
	Qualified      bool
	MaxOccurrences int64
}

// Plan is an immutable description of every stream in a run.
type Plan struct {
	Options
	Files []FileRef
	seeds [][eval.SeedSize]byte
}

// NewPlan splits TotalRows across Files. The first TotalRows%Files files
// receive one extra row.
func NewPlan(opts Options) (*Plan, error) {
	if opts.Files < 1 {
		return nil, fmt.Errorf("files must be at least 1, got %d", opts.Files)
	}
	if opts.TotalRows < 0 {
		return nil, fmt.Errorf("total rows must not be negative, got %d", opts.TotalRows)
	}
	if opts.RowsPerBatch < 1 {
		return nil, fmt.Errorf("rows per batch must be at least 1, got %d", opts.RowsPerBatch)
	}

	p := &Plan{
		Options: opts,
		Files:   make([]FileRef, opts.Files),
		seeds:   make([][eval.SeedSize]byte, opts.Files),
	}

	base := opts.TotalRows / int64(opts.Files)
	extra := opts.TotalRows % int64(opts.Files)
	master := rand.NewChaCha8(opts.Seed)
	rowStart := int64(1)
	for i := range p.Files {
		rows := base
		if int64(i) < extra {
			rows++
		}
		p.Files[i] = FileRef{Index: i, RowStart: rowStart, Rows: rows}
		rowStart += rows
		_, _ = master.Read(p.seeds[i][:])
	}
	return p, nil
}

// Snapshot returns the captured starting state of ref's stream.
func (p *Plan) Snapshot(ref FileRef) eval.Snapshot {
	return eval.Snapshot{
		Seed:   p.seeds[ref.Index],
		RowNum: ref.RowStart,
		Now:    p.Now,
	}
}

// FileName names the file of table for ref. Indexes are zero-padded to a
// common width so names sort in file order.
func (p *Plan) FileName(table string, ref FileRef, ext string) string {
	width := len(strconv.Itoa(len(p.Files) - 1))
	return fmt.Sprintf("%s.%0*d.%s", table, width, ref.Index, ext)
}
