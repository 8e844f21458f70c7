package cli

import (
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dbgen/internal/compiler"
	"github.com/roach88/dbgen/internal/config"
	"github.com/roach88/dbgen/internal/format"
	"github.com/roach88/dbgen/internal/gen"
)

// override copies one flag-bound setting into the effective config.
type override func(dst, src *config.Config)

// overrides maps flag names onto the setting each one controls. A flag
// wins over the config file only when it is set explicitly.
var overrides = map[string]override{
	"template":        func(d, s *config.Config) { d.Template = s.Template },
	"output":          func(d, s *config.Config) { d.Output = s.Output },
	"format":          func(d, s *config.Config) { d.Format = s.Format },
	"files":           func(d, s *config.Config) { d.Files = s.Files },
	"total-rows":      func(d, s *config.Config) { d.TotalRows = s.TotalRows },
	"rows-per-batch":  func(d, s *config.Config) { d.RowsPerBatch = s.RowsPerBatch },
	"seed":            func(d, s *config.Config) { d.Seed = s.Seed },
	"now":             func(d, s *config.Config) { d.Now = s.Now },
	"qualified":       func(d, s *config.Config) { d.Qualified = s.Qualified },
	"jobs":            func(d, s *config.Config) { d.Jobs = s.Jobs },
	"max-occurrences": func(d, s *config.Config) { d.MaxOccurrences = s.MaxOccurrences },
	"sqlite":          func(d, s *config.Config) { d.SQLite = s.SQLite },
	"listen":          func(d, s *config.Config) { d.Serve.Listen = s.Serve.Listen },
	"metrics-listen":  func(d, s *config.Config) { d.Serve.MetricsListen = s.Serve.MetricsListen },
	"bucket":          func(d, s *config.Config) { d.Serve.Bucket = s.Serve.Bucket },
	"rate-limit":      func(d, s *config.Config) { d.Serve.RateLimit = s.Serve.RateLimit },
	"rate-burst":      func(d, s *config.Config) { d.Serve.RateBurst = s.Serve.RateBurst },
	"trace-exporter":  func(d, s *config.Config) { d.Telemetry.Exporter = s.Telemetry.Exporter },
	"otlp-endpoint":   func(d, s *config.Config) { d.Telemetry.OTLPEndpoint = s.Telemetry.OTLPEndpoint },
}

// addTemplateFlag registers -i/--template.
func addTemplateFlag(cmd *cobra.Command, flags *config.Config) {
	cmd.Flags().StringVarP(&flags.Template, "template", "i", flags.Template, "path to the CUE template")
}

// addGenerationFlags registers the flags shared by generate and serve.
func addGenerationFlags(cmd *cobra.Command, flags *config.Config) {
	addTemplateFlag(cmd, flags)
	f := cmd.Flags()
	f.StringVar(&flags.Format, "format", flags.Format, "output encoding (csv|sql)")
	f.IntVar(&flags.Files, "files", flags.Files, "number of independent files")
	f.Int64Var(&flags.TotalRows, "total-rows", flags.TotalRows, "row events across all files")
	f.Int64Var(&flags.RowsPerBatch, "rows-per-batch", flags.RowsPerBatch, "row events per batch")
	f.StringVar(&flags.Seed, "seed", flags.Seed, "64 hex character run seed (default all zeros)")
	f.StringVar(&flags.Now, "now", flags.Now, `value of now(), "YYYY-MM-DD hh:mm:ss" UTC (default current time)`)
	f.BoolVar(&flags.Qualified, "qualified", flags.Qualified, "qualify column names with the table name")
	f.Int64Var(&flags.MaxOccurrences, "max-occurrences", flags.MaxOccurrences, "fail a row event producing more occurrences (0 = unlimited)")
}

// resolveConfig layers the config file and explicitly set flags, then
// validates the result.
func resolveConfig(cmd *cobra.Command, root *RootOptions, flags *config.Config) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply(cfg, flags)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if cfg.Template == "" {
		return nil, NewExitError(ExitCommandError, "no template given (use -i or the template setting)")
	}
	return cfg, nil
}

// loadTemplate compiles the configured template. Template errors are
// command errors.
func loadTemplate(cfg *config.Config) (*compiler.Template, error) {
	tmpl, err := compiler.LoadFile(cfg.Template)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load template", err)
	}
	return tmpl, nil
}

// planRun builds the generation plan and output encoding for cfg.
// An unset Now is taken from start.
func planRun(cfg *config.Config, start time.Time) (*gen.Plan, format.Format, error) {
	seed, err := cfg.SeedBytes()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid seed", err)
	}
	now, err := cfg.NowTime(start)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid now", err)
	}
	f, err := format.ByName(cfg.Format)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid format", err)
	}
	plan, err := gen.NewPlan(gen.Options{
		Seed:           seed,
		Now:            now.Truncate(time.Second),
		TotalRows:      cfg.TotalRows,
		Files:          cfg.Files,
		RowsPerBatch:   cfg.RowsPerBatch,
		Qualified:      cfg.Qualified,
		MaxOccurrences: cfg.MaxOccurrences,
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid plan", err)
	}
	return plan, f, nil
}

// jobCount resolves the worker count; 0 means one per CPU.
func jobCount(jobs int) int {
	if jobs <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return jobs
}
