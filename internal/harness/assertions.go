package harness

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/dbgen/internal/compiler"
	"github.com/roach88/dbgen/internal/format"
	"github.com/roach88/dbgen/internal/gen"
	"github.com/roach88/dbgen/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Template *compiler.Template // nil when compilation failed
	Plan     *gen.Plan
	Format   format.Format
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access and the compiled run.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertError:
			err = assertError(result, assertion)
		case AssertFileContains:
			err = assertFileContains(result, assertion)
		case AssertRowCount, AssertFinalState, AssertDeterministic:
			switch {
			case actx == nil || actx.Store == nil:
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			case result.Err != nil:
				err = fmt.Errorf("assertion[%d]: %s requires a completed run, got %v", i, assertion.Type, result.Err)
			case assertion.Type == AssertRowCount:
				err = assertRowCount(actx.Ctx, actx.Store, assertion)
			case assertion.Type == AssertFinalState:
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			default:
				err = assertDeterministic(actx, result)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertError checks that the run failed with the expected code.
func assertError(result *Result, assertion Assertion) error {
	if result.Err == nil {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("error %s", assertion.Code),
			Actual:   "run succeeded",
		}
	}
	if code := errorCode(result.Err); code != assertion.Code {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("error %s", assertion.Code),
			Actual:   fmt.Sprintf("error %q: %v", code, result.Err),
		}
	}
	return nil
}

// assertFileContains checks that a generated file contains the text.
func assertFileContains(result *Result, assertion Assertion) error {
	content, ok := result.Files[assertion.File]
	if !ok {
		return &AssertionError{
			Type:     AssertFileContains,
			Expected: fmt.Sprintf("file %s", assertion.File),
			Actual:   fmt.Sprintf("not generated (files: %s)", strings.Join(result.FileNames(), ", ")),
		}
	}
	if !bytes.Contains(content, []byte(assertion.Text)) {
		return &AssertionError{
			Type:     AssertFileContains,
			Expected: fmt.Sprintf("%s to contain %q", assertion.File, assertion.Text),
			Actual:   fmt.Sprintf("%q", content),
		}
	}
	return nil
}

// assertRowCount checks the number of rows loaded into a table.
func assertRowCount(ctx context.Context, st *store.Store, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	rows, err := st.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", assertion.Table))
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return fmt.Errorf("scan count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("count rows: %w", err)
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", assertion.Count, assertion.Table),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// assertFinalState checks if a loaded table contains expected values.
// Queries the table with parameterized SQL and validates expected values
// using subset semantics.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Check for multiple matching rows (would indicate ambiguous assertion)
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{})
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Subset semantics - only check fields in Expect
	for key, expectedValue := range assertion.Expect {
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// assertDeterministic regenerates every table of every file on its own
// and compares the bytes and measured sizes with the first run.
func assertDeterministic(actx *AssertionContext, result *Result) error {
	if actx.Template == nil || actx.Plan == nil || actx.Format == nil {
		return fmt.Errorf("deterministic assertion requires a compiled run")
	}
	tables := actx.Template.Tables
	ext := actx.Format.Extension()

	for _, ref := range actx.Plan.Files {
		sizes, err := gen.MeasureFile(actx.Ctx, tables, actx.Plan, ref, actx.Format)
		if err != nil {
			return fmt.Errorf("measure file %d: %w", ref.Index, err)
		}
		for i, t := range tables {
			name := actx.Plan.FileName(t.Name, ref, ext)
			want := result.Files[name]

			got, err := gen.RenderTable(actx.Ctx, tables, actx.Plan, ref, actx.Format, i)
			if err != nil {
				return fmt.Errorf("regenerate %s: %w", name, err)
			}
			if !bytes.Equal(got, want) {
				return &AssertionError{
					Type:     AssertDeterministic,
					Expected: fmt.Sprintf("%s to regenerate identically (%d bytes)", name, len(want)),
					Actual:   fmt.Sprintf("%d differing bytes", len(got)),
				}
			}
			if sizes[i] != int64(len(want)) {
				return &AssertionError{
					Type:     AssertDeterministic,
					Expected: fmt.Sprintf("%s to measure %d bytes", name, len(want)),
					Actual:   fmt.Sprintf("%d bytes", sizes[i]),
				}
			}
		}
	}
	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
//
// Security: Column names are validated against a whitelist pattern to prevent
// SQL injection via identifier interpolation.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}

	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected values decoded from YAML with values
// scanned from SQLite, which may come back as different Go types.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case float64:
		switch act := actual.(type) {
		case float64:
			return exp == act
		case int64:
			return exp == float64(act)
		}
		return false
	case bool:
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}
