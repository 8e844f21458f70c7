package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dbgen/internal/eval"
	"github.com/roach88/dbgen/internal/ir"
)

// Template is a compiled, validated template set.
type Template struct {
	// Tables in declaration order. Derived edges index this slice.
	Tables []*eval.Table

	// Digest fingerprints the source text.
	Digest string

	// File is the path the template was loaded from.
	File string
}

// Roots returns the names of tables that no other table derives.
func (t *Template) Roots() []string {
	derived := make([]bool, len(t.Tables))
	for _, tbl := range t.Tables {
		for _, d := range tbl.Derived {
			derived[d.Child] = true
		}
	}
	var roots []string
	for i, tbl := range t.Tables {
		if !derived[i] {
			roots = append(roots, tbl.Name)
		}
	}
	return roots
}

// LoadFile reads and compiles a template file.
func LoadFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return Compile(path, data)
}

// Compile parses CUE source into a validated Template.
//
// Every returned error is an *ir.Error carrying the source position of the
// offending node when one is known.
func Compile(filename string, src []byte) (*Template, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(templateSchema, cue.Filename("dbgen-schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal template schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Template")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	// Walk the source value rather than the unified one so positions point
	// into the template file.
	c := &compiler{b: eval.NewBuilder()}
	tables, err := c.compileTables(v.LookupPath(cue.ParsePath("tables")))
	if err != nil {
		return nil, err
	}
	if err := eval.ValidateTables(tables); err != nil {
		return nil, err
	}

	return &Template{
		Tables: tables,
		Digest: ir.TemplateDigest(src),
		File:   filename,
	}, nil
}

type compiler struct {
	b *eval.Builder
}

// pendingEdge is a derived edge whose child is still a name.
type pendingEdge struct {
	parent int
	table  string
	count  eval.Expr
	pos    ir.Pos
}

func (c *compiler) compileTables(v cue.Value) ([]*eval.Table, error) {
	if !v.Exists() {
		return nil, &ir.Error{Code: ir.ErrCodeTemplate, Message: "tables is required"}
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var (
		tables  []*eval.Table
		byName  = make(map[string]int)
		pending []pendingEdge
	)
	for iter.Next() {
		tv := iter.Value()
		tbl, edges, err := c.compileTable(tv, len(tables))
		if err != nil {
			return nil, err
		}
		if _, dup := byName[tbl.Name]; dup {
			return nil, ir.Errorf(ir.ErrCodeTemplate, tbl.Pos, "duplicate table %q", tbl.Name)
		}
		byName[tbl.Name] = len(tables)
		tables = append(tables, tbl)
		pending = append(pending, edges...)
	}
	if len(tables) == 0 {
		return nil, ir.Errorf(ir.ErrCodeTemplate, toPos(v.Pos()), "at least one table is required")
	}

	// Edges point forward, so resolve after every table is known
	for _, e := range pending {
		child, ok := byName[e.table]
		if !ok {
			return nil, ir.Errorf(ir.ErrCodeUndefined, e.pos, "derived table %q is not declared", e.table)
		}
		parent := tables[e.parent]
		parent.Derived = append(parent.Derived, eval.Derived{Child: child, Count: e.count, At: e.pos})
	}
	return tables, nil
}

func (c *compiler) compileTable(v cue.Value, index int) (*eval.Table, []pendingEdge, error) {
	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}
	tbl := &eval.Table{Name: name, Pos: toPos(v.Pos())}

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	cols, err := colsVal.List()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}
	seen := make(map[string]bool)
	for cols.Next() {
		cv := cols.Value()
		colName, err := cv.LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return nil, nil, formatCUEError(err)
		}
		if seen[colName] {
			return nil, nil, ir.Errorf(ir.ErrCodeTemplate, toPos(cv.Pos()), "table %q: duplicate column %q", name, colName)
		}
		seen[colName] = true

		col := ir.Column{Name: colName}
		if tv := cv.LookupPath(cue.ParsePath("type")); tv.Exists() {
			if col.Type, err = tv.String(); err != nil {
				return nil, nil, formatCUEError(err)
			}
		}

		expr, err := c.compileExpr(cv.LookupPath(cue.ParsePath("expr")))
		if err != nil {
			return nil, nil, err
		}
		tbl.Columns = append(tbl.Columns, col)
		tbl.Row = append(tbl.Row, expr)
	}
	if len(tbl.Columns) == 0 {
		return nil, nil, ir.Errorf(ir.ErrCodeTemplate, tbl.Pos, "table %q has no columns", name)
	}

	var edges []pendingEdge
	if dv := v.LookupPath(cue.ParsePath("derived")); dv.Exists() {
		iter, err := dv.List()
		if err != nil {
			return nil, nil, formatCUEError(err)
		}
		for iter.Next() {
			ev := iter.Value()
			child, err := ev.LookupPath(cue.ParsePath("table")).String()
			if err != nil {
				return nil, nil, formatCUEError(err)
			}
			count, err := c.compileExpr(ev.LookupPath(cue.ParsePath("count")))
			if err != nil {
				return nil, nil, err
			}
			edges = append(edges, pendingEdge{parent: index, table: child, count: count, pos: toPos(ev.Pos())})
		}
	}
	return tbl, edges, nil
}

// compileExpr converts a CUE value into an expression.
//
// Scalars become constants; {fn: name, args: [...]} becomes a call.
func (c *compiler) compileExpr(v cue.Value) (eval.Expr, error) {
	pos := toPos(v.Pos())
	switch v.Kind() {
	case cue.NullKind:
		return c.b.Const(ir.Null{}, pos), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return c.b.Const(ir.Bool(b), pos), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, ir.Errorf(ir.ErrCodeTemplate, pos, "integer literal out of range: %v", err)
		}
		return c.b.Const(ir.Int(n), pos), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return nil, ir.Errorf(ir.ErrCodeTemplate, pos, "float literal out of range: %v", err)
		}
		return c.b.Const(ir.Real(f), pos), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return c.b.Const(ir.Text(s), pos), nil
	case cue.BytesKind:
		b, err := v.Bytes()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return c.b.Const(ir.Bytes(b), pos), nil
	case cue.StructKind:
		return c.compileCall(v, pos)
	default:
		return nil, ir.Errorf(ir.ErrCodeTemplate, pos, "unsupported expression of kind %v", v.Kind())
	}
}

func (c *compiler) compileCall(v cue.Value, pos ir.Pos) (eval.Expr, error) {
	fields, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for fields.Next() {
		switch label := fields.Selector().String(); label {
		case "fn", "args":
		default:
			return nil, ir.Errorf(ir.ErrCodeTemplate, toPos(fields.Value().Pos()), "unexpected field %q in call", label)
		}
	}

	fnVal := v.LookupPath(cue.ParsePath("fn"))
	if !fnVal.Exists() {
		return nil, ir.Errorf(ir.ErrCodeTemplate, pos, "call is missing fn")
	}
	name, err := fnVal.String()
	if err != nil {
		return nil, ir.Errorf(ir.ErrCodeTemplate, toPos(fnVal.Pos()), "fn must be a string")
	}

	var args []eval.Expr
	if argsVal := v.LookupPath(cue.ParsePath("args")); argsVal.Exists() {
		iter, err := argsVal.List()
		if err != nil {
			return nil, ir.Errorf(ir.ErrCodeTemplate, toPos(argsVal.Pos()), "args must be a list")
		}
		for iter.Next() {
			arg, err := c.compileExpr(iter.Value())
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
	}
	return c.b.Call(name, args, pos)
}

// toPos converts a CUE position.
func toPos(p token.Pos) ir.Pos {
	if !p.IsValid() {
		return ir.Pos{}
	}
	return ir.Pos{File: p.Filename(), Line: p.Line(), Column: p.Column()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ir.Error{Code: ir.ErrCodeTemplate, Message: err.Error()}
	}

	// Report the first error, positioned in the template file when possible
	first := errs[0]
	format, args := first.Msg()
	e := &ir.Error{Code: ir.ErrCodeTemplate, Message: fmt.Sprintf(format, args...)}
	for _, p := range cueerrors.Positions(first) {
		if p.Filename() != "dbgen-schema.cue" {
			e.Pos = toPos(p)
			break
		}
	}
	return e
}
