package eval

import (
	"github.com/roach88/dbgen/internal/ir"
)

// Derived is an edge from a parent table to a child table. Count is
// evaluated once per parent occurrence to decide how many child
// occurrences to generate.
type Derived struct {
	Child int // index into the template slice
	Count Expr
	At    ir.Pos
}

func (d Derived) pos(parent *Table) ir.Pos {
	if d.At.IsValid() {
		return d.At
	}
	return parent.Pos
}

// Table is an immutable table template.
//
// INVARIANTS (enforced by ValidateTables):
//   - len(Columns) == len(Row)
//   - every Derived.Child indexes the same template slice
//   - the derived graph is acyclic
//   - a derived table is declared after every table that derives it
type Table struct {
	Name    string
	Columns []ir.Column
	Row     []Expr
	Derived []Derived
	Pos     ir.Pos
}

// Schema returns the table schema, optionally qualified.
func (t *Table) Schema(qualified bool) ir.Schema {
	return ir.Schema{Name: t.Name, Columns: t.Columns}.Qualified(qualified)
}

// EvalRow evaluates the row expression, one value per column, in column
// order.
func (t *Table) EvalRow(s *State) ([]ir.Value, error) {
	values := make([]ir.Value, len(t.Row))
	for i, expr := range t.Row {
		v, err := expr.Eval(s)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// ValidateTables checks the structural invariants of a template set.
// Violations are construction-time errors; no generation may start on an
// invalid set.
func ValidateTables(tables []*Table) error {
	seen := make(map[string]int, len(tables))
	for i, t := range tables {
		if t.Name == "" {
			return ir.Errorf(ir.ErrCodeTemplate, t.Pos, "table %d has no name", i)
		}
		if prev, dup := seen[t.Name]; dup {
			return ir.Errorf(ir.ErrCodeTemplate, t.Pos, "table %q already declared as table %d", t.Name, prev)
		}
		seen[t.Name] = i

		if len(t.Columns) != len(t.Row) {
			return ir.Errorf(ir.ErrCodeArity, t.Pos,
				"table %q has %d columns but its row expression produces %d values",
				t.Name, len(t.Columns), len(t.Row))
		}
		for _, d := range t.Derived {
			if d.Child < 0 || d.Child >= len(tables) {
				return ir.Errorf(ir.ErrCodeUndefined, d.pos(t), "table %q derives unknown table index %d", t.Name, d.Child)
			}
			if d.Count == nil {
				return ir.Errorf(ir.ErrCodeTemplate, d.pos(t), "table %q derives %q without a count", t.Name, tables[d.Child].Name)
			}
		}
	}
	if err := checkAcyclic(tables); err != nil {
		return err
	}
	return checkDeclOrder(tables)
}

// checkDeclOrder rejects edges pointing at an earlier table. The engine
// visits roots in template order, so such a child would already have been
// generated as a root before its parent could claim it.
func checkDeclOrder(tables []*Table) error {
	for i, t := range tables {
		for _, d := range t.Derived {
			if d.Child <= i {
				return ir.Errorf(ir.ErrCodeTemplate, d.pos(t),
					"derived table %q must be declared after %q", tables[d.Child].Name, t.Name)
			}
		}
	}
	return nil
}
