package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dbgen/internal/config"
)

// Scenario defines a conformance test scenario.
// A scenario compiles one template, generates a run with fixed options and
// asserts on the produced files and the rows loaded into a scratch store.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Template is the path of the CUE template to compile.
	// Relative paths are resolved against the scenario file location.
	Template string `yaml:"template,omitempty"`

	// Source is an inline CUE template, used when Template is empty.
	Source string `yaml:"source,omitempty"`

	// Options configures the run. Unset fields take the dbgen defaults,
	// except Now which defaults to DefaultNow.
	Options Options `yaml:"options"`

	// Assertions validate the run.
	// Supported types: row_count, final_state, file_contains, deterministic, error
	Assertions []Assertion `yaml:"assertions"`
}

// Options are the generation settings of a scenario.
type Options struct {
	Seed           string `yaml:"seed,omitempty"`
	Now            string `yaml:"now,omitempty"`
	Files          int    `yaml:"files,omitempty"`
	TotalRows      int64  `yaml:"total_rows,omitempty"`
	RowsPerBatch   int64  `yaml:"rows_per_batch,omitempty"`
	Format         string `yaml:"format,omitempty"`
	Qualified      bool   `yaml:"qualified,omitempty"`
	MaxOccurrences int64  `yaml:"max_occurrences,omitempty"`
}

// DefaultNow is the value of now() when a scenario does not set one.
const DefaultNow = "2024-01-01 00:00:00"

// config layers the options over the dbgen defaults.
func (o Options) config() *config.Config {
	cfg := config.Default()
	cfg.Seed = o.Seed
	cfg.Now = DefaultNow
	if o.Now != "" {
		cfg.Now = o.Now
	}
	if o.Files != 0 {
		cfg.Files = o.Files
	}
	if o.TotalRows != 0 {
		cfg.TotalRows = o.TotalRows
	}
	if o.RowsPerBatch != 0 {
		cfg.RowsPerBatch = o.RowsPerBatch
	}
	if o.Format != "" {
		cfg.Format = o.Format
	}
	cfg.Qualified = o.Qualified
	cfg.MaxOccurrences = o.MaxOccurrences
	return cfg
}

// Assertion validates a scenario run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": Table holds exactly Count rows
	// - "final_state": Query table and verify expected values
	// - "file_contains": Generated file contains Text
	// - "deterministic": Regenerating every file reproduces its bytes
	// - "error": The run failed with error Code
	Type string `yaml:"type"`

	// Table is the generated table name (used by row_count, final_state).
	Table string `yaml:"table,omitempty"`

	// Count is the expected number of rows (used by row_count).
	Count int64 `yaml:"count,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// File is the generated file name (used by file_contains).
	File string `yaml:"file,omitempty"`

	// Text is the expected substring (used by file_contains).
	Text string `yaml:"text,omitempty"`

	// Code is the expected error code (used by error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount      = "row_count"
	AssertFinalState    = "final_state"
	AssertFileContains  = "file_contains"
	AssertDeterministic = "deterministic"
	AssertError         = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// A relative template path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Template != "" && !filepath.IsAbs(scenario.Template) {
		scenario.Template = filepath.Join(filepath.Dir(path), scenario.Template)
	}
	if scenario.Template != "" {
		if _, err := os.Stat(scenario.Template); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: template file not found: %s", scenario.Template)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Template == "" && s.Source == "":
		return fmt.Errorf("one of template or source is required")
	case s.Template != "" && s.Source != "":
		return fmt.Errorf("template and source are mutually exclusive")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if err := s.Options.config().Validate(); err != nil {
		return fmt.Errorf("options: %w", err)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertFileContains:
		if a.File == "" {
			return fmt.Errorf("assertions[%d]: file is required for file_contains", index)
		}
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for file_contains", index)
		}
	case AssertDeterministic:
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
