package eval

import (
	"slices"

	"github.com/roach88/dbgen/internal/ir"
)

// Expr is a node that deterministically produces a Value from a State.
type Expr interface {
	// Eval evaluates the expression. Errors carry the position of the node
	// that failed.
	Eval(s *State) (ir.Value, error)

	// Pos returns the source position of the expression.
	Pos() ir.Pos
}

// Const is a literal value.
type Const struct {
	Value ir.Value
	At    ir.Pos
}

func (c *Const) Eval(*State) (ir.Value, error) { return c.Value, nil }
func (c *Const) Pos() ir.Pos                   { return c.At }

// Call invokes a builtin with eagerly evaluated arguments.
// Arguments are evaluated left to right. Calls are resolved by
// Builder.Call; an unresolved Call fails with ErrCodeUndefined.
type Call struct {
	Name string
	Args []Expr
	At   ir.Pos
	fn   builtinFunc
}

func (c *Call) Pos() ir.Pos { return c.At }

func (c *Call) Eval(s *State) (ir.Value, error) {
	if c.fn == nil {
		return nil, ir.Errorf(ir.ErrCodeUndefined, c.At, "unknown function %q", c.Name)
	}
	args := make([]ir.Value, len(c.Args))
	for i, arg := range c.Args {
		v, err := arg.Eval(s)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return c.fn(s, args, c.At)
}

// Cond evaluates Then or Else depending on the truth of Test.
// Only the selected branch is evaluated, so random draws in the other
// branch do not advance the State.
type Cond struct {
	Test, Then, Else Expr
	At               ir.Pos
}

func (c *Cond) Pos() ir.Pos { return c.At }

func (c *Cond) Eval(s *State) (ir.Value, error) {
	v, err := c.Test.Eval(s)
	if err != nil {
		return nil, err
	}
	ok, err := truthy(v, c.Test.Pos())
	if err != nil {
		return nil, err
	}
	if ok {
		return c.Then.Eval(s)
	}
	return c.Else.Eval(s)
}

// Counter is a lexicographic counter. Every Counter node owns one slot in
// the State, so two lexctr() calls in a template count independently.
type Counter struct {
	Slot int
	At   ir.Pos
}

func (c *Counter) Pos() ir.Pos { return c.At }

func (c *Counter) Eval(s *State) (ir.Value, error) {
	return ir.Text(FormatLex(s.nextCounter(c.Slot))), nil
}

// Builder constructs expression trees, resolving builtin names and
// assigning counter slots. One Builder is used per template set.
type Builder struct {
	slots int
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Const creates a literal expression.
func (b *Builder) Const(v ir.Value, pos ir.Pos) Expr {
	return &Const{Value: v, At: pos}
}

// Call creates a call to the named builtin.
//
// Returns an UNDEFINED_REFERENCE error for unknown names and an
// INVALID_TEMPLATE error when the argument count is wrong.
func (b *Builder) Call(name string, args []Expr, pos ir.Pos) (Expr, error) {
	switch name {
	case "if":
		if len(args) != 3 {
			return nil, ir.Errorf(ir.ErrCodeTemplate, pos, "if expects 3 arguments, got %d", len(args))
		}
		return &Cond{Test: args[0], Then: args[1], Else: args[2], At: pos}, nil
	case "lexctr":
		if len(args) != 0 {
			return nil, ir.Errorf(ir.ErrCodeTemplate, pos, "lexctr expects no arguments, got %d", len(args))
		}
		c := &Counter{Slot: b.slots, At: pos}
		b.slots++
		return c, nil
	}

	bi, ok := builtins[name]
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeUndefined, pos, "unknown function %q", name)
	}
	if len(args) < bi.minArgs || (bi.maxArgs >= 0 && len(args) > bi.maxArgs) {
		return nil, ir.Errorf(ir.ErrCodeTemplate, pos, "%s expects %s, got %d", name, bi.arity(), len(args))
	}
	return &Call{Name: name, Args: args, At: pos, fn: bi.fn}, nil
}

// Slots returns the number of counter slots assigned so far.
func (b *Builder) Slots() int {
	return b.slots
}

// Functions returns the sorted names of all builtins, including the
// special forms if and lexctr.
func Functions() []string {
	names := make([]string, 0, len(builtins)+2)
	for name := range builtins {
		names = append(names, name)
	}
	names = append(names, "if", "lexctr")
	slices.Sort(names)
	return names
}
