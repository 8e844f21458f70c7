package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/roach88/dbgen/internal/gen"
)

// progress prints a single updating status line while files complete.
// It is silent unless w is a terminal.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	total   int
	files   int
	rows    int64
}

func newProgress(w io.Writer, total int) *progress {
	return &progress{w: w, enabled: isTerminal(w), total: total}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// fileDone records a finished file. Safe for concurrent use.
func (p *progress) fileDone(ref gen.FileRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files++
	p.rows += ref.Rows
	if p.enabled {
		fmt.Fprintf(p.w, "\r%d/%d files, %d row events", p.files, p.total, p.rows)
	}
}

// finish ends the status line.
func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled && p.files > 0 {
		fmt.Fprintln(p.w)
	}
}
