package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dbgen/internal/compiler"
	"github.com/roach88/dbgen/internal/config"
	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Template  string
	Format    string // "text" | "json"
	Functions bool   // list builtins instead of validating
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Template string            `json:"template"`
	Digest   string            `json:"digest,omitempty"`
	Tables   []TableSummary    `json:"tables,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// TableSummary describes one compiled table.
type TableSummary struct {
	Name    string   `json:"name"`
	Root    bool     `json:"root"`
	Columns []string `json:"columns"`
	Derived []string `json:"derived,omitempty"`
}

// ValidationError is a positioned template error.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Template valid: %s", r.Template)
	for _, t := range r.Tables {
		fmt.Fprintf(&b, "\n  %s", t.Name)
		if t.Root {
			b.WriteString(" (root)")
		}
		fmt.Fprintf(&b, ": %s", strings.Join(t.Columns, ", "))
		if len(t.Derived) > 0 {
			fmt.Fprintf(&b, " -> %s", strings.Join(t.Derived, ", "))
		}
	}
	return b.String()
}

// FunctionList is the output of validate --functions.
type FunctionList struct {
	Functions []string `json:"functions"`
}

func (l FunctionList) String() string {
	return strings.Join(l.Functions, "\n")
}

// ValidFormats defines the allowed validate output formats.
var ValidFormats = []string{FormatText, FormatJSON}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a template without generating data",
		Long: `Compile a CUE template and report its tables, or every error with its
file, line and column.

With --functions, list the builtins a column expression may call instead.

Exit code 1 means the template is invalid; 2 means it could not be read.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Template, "template", "i", "", "path to the CUE template")
	cmd.Flags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")
	cmd.Flags().BoolVar(&opts.Functions, "functions", false, "list the builtin functions and exit")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, opts.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Functions {
		return formatter.Success(FunctionList{Functions: eval.Functions()})
	}

	path := opts.Template
	if !cmd.Flags().Changed("template") {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load configuration", err)
		}
		path = cfg.Template
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no template given (use -i or the template setting)")
	}

	tmpl, err := compiler.LoadFile(path)
	if err != nil {
		var irErr *ir.Error
		if !errors.As(err, &irErr) {
			_ = formatter.Error("UNREADABLE", err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read template", err)
		}
		return outputValidationErrors(formatter, path, []ValidationError{toValidationError(irErr)})
	}

	return formatter.Success(summarize(tmpl))
}

func toValidationError(e *ir.Error) ValidationError {
	return ValidationError{
		Code:    string(e.Code),
		Message: e.Message,
		File:    e.Pos.File,
		Line:    e.Pos.Line,
		Column:  e.Pos.Column,
	}
}

// summarize describes the tables of a compiled template.
func summarize(tmpl *compiler.Template) ValidationResult {
	roots := tmpl.Roots()
	result := ValidationResult{Valid: true, Template: tmpl.File, Digest: tmpl.Digest}
	for _, t := range tmpl.Tables {
		s := TableSummary{Name: t.Name, Root: slices.Contains(roots, t.Name)}
		for _, col := range t.Columns {
			s.Columns = append(s.Columns, col.Name)
		}
		for _, d := range t.Derived {
			s.Derived = append(s.Derived, tmpl.Tables[d.Child].Name)
		}
		result.Tables = append(result.Tables, s)
	}
	return result
}

// outputValidationErrors outputs validation errors and returns the exit
// error for an invalid template.
func outputValidationErrors(formatter *OutputFormatter, path string, errs []ValidationError) error {
	if formatter.Format == FormatJSON {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Template: path, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", e.File, e.Line, e.Column)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
