package gen

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbgen/internal/compiler"
	"github.com/roach88/dbgen/internal/engine"
	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/format"
)

const testTemplate = `tables: [{
	name: "orders"
	columns: [
		{name: "id", expr: {fn: "rownum"}},
		{name: "code", expr: {fn: "rand.string", args: [8]}},
	]
	derived: [{table: "items", count: {fn: "rand.range", args: [0, 3]}}]
}, {
	name: "items"
	columns: [{name: "line", expr: {fn: "subrownum"}}]
}]
`

func testTables(t *testing.T) []*eval.Table {
	t.Helper()
	tmpl, err := compiler.Compile("test.cue", []byte(testTemplate))
	require.NoError(t, err)
	return tmpl.Tables
}

func testPlan(t *testing.T, total int64, files int) *Plan {
	t.Helper()
	plan, err := NewPlan(Options{
		Seed:         [eval.SeedSize]byte{1},
		Now:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		TotalRows:    total,
		Files:        files,
		RowsPerBatch: 2,
	})
	require.NoError(t, err)
	return plan
}

func TestNewPlan_SplitsRows(t *testing.T) {
	plan := testPlan(t, 10, 3)
	assert.Equal(t, []FileRef{
		{Index: 0, RowStart: 1, Rows: 4},
		{Index: 1, RowStart: 5, Rows: 3},
		{Index: 2, RowStart: 8, Rows: 3},
	}, plan.Files)
}

func TestNewPlan_InvalidOptions(t *testing.T) {
	_, err := NewPlan(Options{Files: 0, RowsPerBatch: 1})
	assert.Error(t, err)
	_, err = NewPlan(Options{Files: 1, TotalRows: -1, RowsPerBatch: 1})
	assert.Error(t, err)
	_, err = NewPlan(Options{Files: 1, RowsPerBatch: 0})
	assert.Error(t, err)
}

func TestPlan_SnapshotsAreStable(t *testing.T) {
	a, b := testPlan(t, 10, 3), testPlan(t, 10, 3)
	for i := range a.Files {
		assert.Equal(t, a.Snapshot(a.Files[i]), b.Snapshot(b.Files[i]))
	}
	assert.NotEqual(t, a.Snapshot(a.Files[0]).Seed, a.Snapshot(a.Files[1]).Seed)
	assert.Equal(t, int64(5), a.Snapshot(a.Files[1]).RowNum)
}

func TestPlan_FileName(t *testing.T) {
	assert.Equal(t, "orders.0.csv", testPlan(t, 1, 1).FileName("orders", FileRef{Index: 0}, "csv"))
	assert.Equal(t, "orders.03.sql", testPlan(t, 12, 12).FileName("orders", FileRef{Index: 3}, "sql"))
}

func TestRenderTable_StartsAtFileRow(t *testing.T) {
	plan := testPlan(t, 10, 3)
	out, err := RenderTable(context.Background(), testTables(t), plan, plan.Files[1], &format.SQL{}, 0)
	require.NoError(t, err)

	// three rows in batches of two: two INSERT statements
	assert.Contains(t, string(out), "INSERT INTO orders VALUES\n(5, '")
	assert.Contains(t, string(out), "INSERT INTO orders VALUES\n(7, '")
	assert.NotContains(t, string(out), "(8, '")
}

func TestRenderTable_Deterministic(t *testing.T) {
	tables := testTables(t)
	plan := testPlan(t, 50, 2)
	ctx := context.Background()

	for _, ref := range plan.Files {
		for table := range tables {
			a, err := RenderTable(ctx, tables, plan, ref, &format.CSV{Header: true}, table)
			require.NoError(t, err)
			b, err := RenderTable(ctx, tables, testPlan(t, 50, 2), ref, &format.CSV{Header: true}, table)
			require.NoError(t, err)
			assert.Equal(t, a, b)
		}
	}
}

func TestMeasureFile_MatchesRender(t *testing.T) {
	tables := testTables(t)
	plan := testPlan(t, 20, 2)
	ctx := context.Background()
	f := &format.CSV{Header: true}

	sizes, err := MeasureFile(ctx, tables, plan, plan.Files[1], f)
	require.NoError(t, err)
	for table := range tables {
		out, err := RenderTable(ctx, tables, plan, plan.Files[1], f, table)
		require.NoError(t, err)
		assert.Equal(t, int64(len(out)), sizes[table])
	}
}

func TestWriteFiles_MatchesRegeneration(t *testing.T) {
	tables := testTables(t)
	plan := testPlan(t, 25, 4)
	dir := t.TempDir()
	f := &format.CSV{Header: true}
	ctx := context.Background()

	var (
		mu   sync.Mutex
		done []int
	)
	err := WriteFiles(ctx, tables, plan, 2, DirOpener(dir, plan, f), func(ref FileRef) {
		mu.Lock()
		defer mu.Unlock()
		done = append(done, ref.Index)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, done)

	for _, ref := range plan.Files {
		for i, table := range tables {
			onDisk, err := os.ReadFile(filepath.Join(dir, plan.FileName(table.Name, ref, "csv")))
			require.NoError(t, err)
			regenerated, err := RenderTable(ctx, tables, plan, ref, f, i)
			require.NoError(t, err)
			assert.Equal(t, regenerated, onDisk, "%s file %d", table.Name, ref.Index)
		}
	}
}

func TestWriteFiles_OpenError(t *testing.T) {
	plan := testPlan(t, 4, 2)
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	err := WriteFiles(context.Background(), testTables(t), plan, 1, DirOpener(missing, plan, &format.SQL{}), nil)
	assert.Error(t, err)
}

func TestRunFile_Cancelled(t *testing.T) {
	plan := testPlan(t, 10, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RenderTable(ctx, testTables(t), plan, plan.Files[0], &format.SQL{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFile_EmptyFile(t *testing.T) {
	plan := testPlan(t, 0, 1)
	out, err := RenderTable(context.Background(), testTables(t), plan, plan.Files[0], &format.SQL{}, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// finishingSink records when the stream finishes it.
type finishingSink struct {
	engine.DiscardSink
	name     string
	finished *[]string
	err      error
}

func (s *finishingSink) Finish() error {
	*s.finished = append(*s.finished, s.name)
	return s.err
}

func TestRunFile_FinishesSinks(t *testing.T) {
	tests := []struct {
		name     string
		failOn   string
		finished []string
		wantErr  string
	}{
		{name: "template order", finished: []string{"orders", "items"}},
		{name: "error stops finishing", failOn: "orders", finished: []string{"orders"}, wantErr: `finish table "orders": flush failed`},
		{name: "error on last table", failOn: "items", finished: []string{"orders", "items"}, wantErr: `finish table "items": flush failed`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := testPlan(t, 3, 1)
			var finished []string
			err := RunFile(context.Background(), testTables(t), plan, plan.Files[0], func(_ int, tbl *eval.Table) (engine.Sink, error) {
				sink := &finishingSink{name: tbl.Name, finished: &finished}
				if tbl.Name == tt.failOn {
					sink.err = errors.New("flush failed")
				}
				return sink, nil
			})
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.finished, finished)
		})
	}
}

func TestRunFile_FlushesBufferedSinks(t *testing.T) {
	plan := testPlan(t, 5, 1)
	tables := testTables(t)

	want, err := RenderTable(context.Background(), tables, plan, plan.Files[0], &format.SQL{}, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = RunFile(context.Background(), tables, plan, plan.Files[0], func(i int, _ *eval.Table) (engine.Sink, error) {
		if i == 0 {
			return format.NewWriterSink(bufio.NewWriterSize(&buf, 1<<16), &format.SQL{}), nil
		}
		return engine.DiscardSink{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, string(want), buf.String())
}
