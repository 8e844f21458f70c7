package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dbgen/internal/compiler"
	"github.com/roach88/dbgen/internal/config"
	"github.com/roach88/dbgen/internal/format"
	"github.com/roach88/dbgen/internal/gen"
	"github.com/roach88/dbgen/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	flags *config.Config

	// Now overrides the process start time used when no --now is given
	// (for testing).
	Now func() time.Time
}

// GenerateResult summarizes a generate run.
type GenerateResult struct {
	Template       string           `json:"template"`
	TemplateDigest string           `json:"template_digest"`
	Seed           string           `json:"seed"`
	Files          int              `json:"files"`
	RowEvents      int64            `json:"row_events"`
	Output         string           `json:"output,omitempty"`
	SQLite         string           `json:"sqlite,omitempty"`
	Inserted       map[string]int64 `json:"inserted,omitempty"`
	RunID          int64            `json:"run_id,omitempty"`
}

func (r GenerateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Generated %d row events from %s", r.RowEvents, r.Template)
	if r.Output != "" {
		fmt.Fprintf(&b, "\n  files:  %d in %s", r.Files, r.Output)
	}
	if r.SQLite != "" {
		fmt.Fprintf(&b, "\n  sqlite: %s (run %d)", r.SQLite, r.RunID)
		names := make([]string, 0, len(r.Inserted))
		for name := range r.Inserted {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(&b, "\n    %s: %d rows", name, r.Inserted[name])
		}
	}
	return b.String()
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts, flags: config.Default(), Now: time.Now}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate data files from a template",
		Long: `Generate data from a CUE template into a directory of files, a SQLite
database, or both.

Every file is an independent stream with its own seed derived from the run
seed, so the same settings always produce the same bytes.

Example:
  dbgen generate -i shop.cue -o ./out --files 4 --total-rows 100000
  dbgen generate -i shop.cue --sqlite shop.db --seed $(openssl rand -hex 32)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	addGenerationFlags(cmd, opts.flags)
	cmd.Flags().StringVarP(&opts.flags.Output, "output", "o", "", "output directory")
	cmd.Flags().IntVar(&opts.flags.Jobs, "jobs", 0, "files generated concurrently (0 = one per CPU)")
	cmd.Flags().StringVar(&opts.flags.SQLite, "sqlite", "", "also load the data into this SQLite database")

	return cmd
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	cfg, err := resolveConfig(cmd, opts.RootOptions, opts.flags)
	if err != nil {
		return err
	}
	if cfg.Output == "" && cfg.SQLite == "" {
		return NewExitError(ExitCommandError, "nothing to write: set --output and/or --sqlite")
	}

	tmpl, err := loadTemplate(cfg)
	if err != nil {
		return err
	}
	plan, f, err := planRun(cfg, opts.Now())
	if err != nil {
		return err
	}
	slog.Info("template compiled", "file", tmpl.File, "tables", len(tmpl.Tables), "roots", tmpl.Roots())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := GenerateResult{
		Template:       tmpl.File,
		TemplateDigest: tmpl.Digest,
		Seed:           hex.EncodeToString(plan.Seed[:]),
		Files:          len(plan.Files),
		RowEvents:      plan.TotalRows,
	}

	if cfg.Output != "" {
		if err := writeDir(ctx, cfg, tmpl, plan, f, cmd); err != nil {
			return err
		}
		result.Output = cfg.Output
	}
	if cfg.SQLite != "" {
		inserted, runID, err := loadSQLite(ctx, cfg.SQLite, tmpl, plan)
		if err != nil {
			return err
		}
		result.SQLite = cfg.SQLite
		result.Inserted = inserted
		result.RunID = runID
	}

	formatter := &OutputFormatter{Format: FormatText, Writer: cmd.OutOrStdout()}
	return formatter.Success(result)
}

// writeDir writes one schema file per table and every data file of plan
// into cfg.Output.
func writeDir(ctx context.Context, cfg *config.Config, tmpl *compiler.Template, plan *gen.Plan, f format.Format, cmd *cobra.Command) error {
	if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}
	for _, t := range tmpl.Tables {
		path := filepath.Join(cfg.Output, t.Name+"-schema.sql")
		if err := os.WriteFile(path, []byte(format.Schema(t.Schema(plan.Qualified))), 0o644); err != nil {
			return WrapExitError(ExitFailure, "failed to write schema", err)
		}
	}

	p := newProgress(cmd.ErrOrStderr(), len(plan.Files))
	jobs := jobCount(cfg.Jobs)
	slog.Info("generating files", "dir", cfg.Output, "files", len(plan.Files), "jobs", jobs, "format", f.Extension())
	err := gen.WriteFiles(ctx, tmpl.Tables, plan, jobs, gen.DirOpener(cfg.Output, plan, f), p.fileDone)
	p.finish()
	if err != nil {
		return WrapExitError(ExitFailure, "generation failed", err)
	}
	return nil
}

// loadSQLite generates plan into a SQLite database and records the run.
// Files are generated one after another because SQLite has one writer.
func loadSQLite(ctx context.Context, path string, tmpl *compiler.Template, plan *gen.Plan) (map[string]int64, int64, error) {
	slog.Info("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, 0, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var sinks []*store.Sink
	for _, ref := range plan.Files {
		if err := gen.RunFile(ctx, tmpl.Tables, plan, ref, st.SinkFactory(ctx, &sinks)); err != nil {
			return nil, 0, WrapExitError(ExitFailure, "loading database failed", fmt.Errorf("file %d: %w", ref.Index, err))
		}
	}

	inserted := make(map[string]int64)
	for _, s := range sinks {
		inserted[s.Table()] += s.Inserted()
	}

	names := make([]string, len(tmpl.Tables))
	for i, t := range tmpl.Tables {
		names[i] = t.Name
	}
	runID, err := st.RecordRun(ctx, store.Run{
		TemplateDigest: tmpl.Digest,
		Seed:           hex.EncodeToString(plan.Seed[:]),
		TotalRows:      plan.TotalRows,
		Tables:         names,
		GeneratedAt:    plan.Now,
	})
	if err != nil {
		return nil, 0, WrapExitError(ExitFailure, "failed to record run", err)
	}
	slog.Info("database loaded", "path", path, "run", runID)
	return inserted, runID, nil
}
