package eval

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbgen/internal/ir"
)

var testPos = ir.Pos{File: "t.cue", Line: 3, Column: 5}

func lit(v ir.Value) Expr {
	return &Const{Value: v, At: testPos}
}

func mustCall(t *testing.T, b *Builder, name string, args ...Expr) Expr {
	t.Helper()
	e, err := b.Call(name, args, testPos)
	require.NoError(t, err)
	return e
}

func evalCall(t *testing.T, name string, args ...ir.Value) (ir.Value, error) {
	t.Helper()
	exprs := make([]Expr, len(args))
	for i, a := range args {
		exprs[i] = lit(a)
	}
	e := mustCall(t, NewBuilder(), name, exprs...)
	return e.Eval(NewState(Snapshot{}))
}

func TestFormatLex(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "a0"},
		{9, "a9"},
		{10, "b10"},
		{99, "b99"},
		{100, "c100"},
		{18446744073709551615, "t18446744073709551615"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatLex(tt.n), "FormatLex(%d)", tt.n)
	}
}

func TestFormatLex_OrderMatchesNumeric(t *testing.T) {
	nums := []uint64{0, 1, 9, 10, 11, 99, 100, 101, 999, 1000, 123456}
	formatted := make([]string, len(nums))
	for i, n := range nums {
		formatted[i] = FormatLex(n)
	}
	assert.True(t, slices.IsSorted(formatted), "lexicographic order must match numeric order: %v", formatted)
}

func TestNewState_Defaults(t *testing.T) {
	s := NewState(Snapshot{Now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))})
	assert.Equal(t, int64(1), s.RowNum)
	assert.Equal(t, int64(1), s.SubRowNum)
	assert.Equal(t, time.UTC, s.Now().Location())

	s = NewState(Snapshot{RowNum: 41})
	assert.Equal(t, int64(41), s.RowNum)
	s.IncreaseRowNum()
	assert.Equal(t, int64(42), s.RowNum)
}

func TestState_SameSnapshotSameStream(t *testing.T) {
	snap := Snapshot{Seed: [SeedSize]byte{1, 2, 3}}
	a, b := NewState(snap), NewState(snap)
	for range 16 {
		assert.Equal(t, a.Rand().Uint64(), b.Rand().Uint64())
	}

	other := NewState(Snapshot{Seed: [SeedSize]byte{9}})
	assert.NotEqual(t, NewState(snap).Rand().Uint64(), other.Rand().Uint64())
}

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed("")
	require.NoError(t, err)
	assert.Equal(t, [SeedSize]byte{}, seed)

	seed, err = ParseSeed(strings.Repeat("ab", SeedSize))
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), seed[0])
	assert.Equal(t, byte(0xab), seed[SeedSize-1])

	_, err = ParseSeed("abcd")
	assert.Error(t, err)

	_, err = ParseSeed("zz")
	assert.Error(t, err)
}

func TestBuilder_UnknownFunction(t *testing.T) {
	_, err := NewBuilder().Call("nope", nil, testPos)
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeUndefined))

	var e *ir.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, testPos, e.Pos)
}

func TestCall_Unresolved(t *testing.T) {
	tests := []struct {
		name string
		call *Call
	}{
		{name: "known name", call: &Call{Name: "rownum", At: testPos}},
		{name: "unknown name", call: &Call{Name: "nope", At: testPos}},
		{name: "with arguments", call: &Call{Name: "add", Args: []Expr{lit(ir.Int(1)), lit(ir.Int(2))}, At: testPos}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v ir.Value
			var err error
			require.NotPanics(t, func() { v, err = tt.call.Eval(NewState(Snapshot{})) })
			assert.Nil(t, v)
			assert.True(t, ir.IsCode(err, ir.ErrCodeUndefined), "got %v", err)

			var e *ir.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, testPos, e.Pos)
		})
	}
}

func TestBuilder_WrongArgumentCount(t *testing.T) {
	b := NewBuilder()
	_, err := b.Call("sub", []Expr{lit(ir.Int(1))}, testPos)
	assert.True(t, ir.IsCode(err, ir.ErrCodeTemplate))

	_, err = b.Call("if", []Expr{lit(ir.Int(1))}, testPos)
	assert.True(t, ir.IsCode(err, ir.ErrCodeTemplate))

	_, err = b.Call("lexctr", []Expr{lit(ir.Int(1))}, testPos)
	assert.True(t, ir.IsCode(err, ir.ErrCodeTemplate))
}

func TestFunctions_SortedAndComplete(t *testing.T) {
	names := Functions()
	assert.True(t, slices.IsSorted(names))
	assert.Contains(t, names, "if")
	assert.Contains(t, names, "lexctr")
	assert.Contains(t, names, "rand.uuid")
}

func TestCounter_IndependentSlots(t *testing.T) {
	b := NewBuilder()
	c1 := mustCall(t, b, "lexctr")
	c2 := mustCall(t, b, "lexctr")
	assert.Equal(t, 2, b.Slots())

	s := NewState(Snapshot{})
	for _, want := range []string{"a0", "a1", "a2"} {
		v, err := c1.Eval(s)
		require.NoError(t, err)
		assert.Equal(t, ir.Text(want), v)
	}
	v, err := c2.Eval(s)
	require.NoError(t, err)
	assert.Equal(t, ir.Text("a0"), v)
}

func TestCond_OnlySelectedBranchDraws(t *testing.T) {
	b := NewBuilder()
	draw := mustCall(t, b, "rand.range", lit(ir.Int(0)), lit(ir.Int(1000)))
	cond := mustCall(t, b, "if", lit(ir.Int(1)), lit(ir.Text("yes")), draw)

	snap := Snapshot{Seed: [SeedSize]byte{7}}
	s := NewState(snap)
	v, err := cond.Eval(s)
	require.NoError(t, err)
	assert.Equal(t, ir.Text("yes"), v)

	// The untaken branch must not have advanced the stream
	assert.Equal(t, NewState(snap).Rand().Uint64(), s.Rand().Uint64())
}

func TestBuiltins_Values(t *testing.T) {
	ts := ir.NewTimestamp(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	tests := []struct {
		name string
		fn   string
		args []ir.Value
		want ir.Value
	}{
		{"add ints", "add", []ir.Value{ir.Int(1), ir.Int(2), ir.Int(3)}, ir.Int(6)},
		{"add mixed", "add", []ir.Value{ir.Int(1), ir.Real(0.5)}, ir.Real(1.5)},
		{"add null", "add", []ir.Value{ir.Int(1), ir.Null{}}, ir.Null{}},
		{"sub", "sub", []ir.Value{ir.Int(5), ir.Int(7)}, ir.Int(-2)},
		{"mul", "mul", []ir.Value{ir.Int(4), ir.Int(5)}, ir.Int(20)},
		{"div is real", "div", []ir.Value{ir.Int(5), ir.Int(2)}, ir.Real(2.5)},
		{"mod", "mod", []ir.Value{ir.Int(7), ir.Int(3)}, ir.Int(1)},
		{"neg", "neg", []ir.Value{ir.Real(1.5)}, ir.Real(-1.5)},
		{"eq", "eq", []ir.Value{ir.Int(2), ir.Real(2)}, ir.Int(1)},
		{"lt text", "lt", []ir.Value{ir.Text("a"), ir.Text("b")}, ir.Int(1)},
		{"concat", "concat", []ir.Value{ir.Text("id-"), ir.Int(7)}, ir.Text("id-7")},
		{"upper", "upper", []ir.Value{ir.Text("abc")}, ir.Text("ABC")},
		{"lower", "lower", []ir.Value{ir.Text("ABC")}, ir.Text("abc")},
		{"substring", "substring", []ir.Value{ir.Text("hello"), ir.Int(2), ir.Int(3)}, ir.Text("ell")},
		{"substring tail", "substring", []ir.Value{ir.Text("hello"), ir.Int(4)}, ir.Text("lo")},
		{"length", "length", []ir.Value{ir.Text("héllo")}, ir.Int(5)},
		{"to_text", "to_text", []ir.Value{ir.Int(12)}, ir.Text("12")},
		{"to_int", "to_int", []ir.Value{ir.Text(" 42 ")}, ir.Int(42)},
		{"to_real", "to_real", []ir.Value{ir.Int(3)}, ir.Real(3)},
		{"timestamp", "timestamp", []ir.Value{ir.Text("2024-05-06 07:08:09")}, ts},
		{"add_seconds", "add_seconds", []ir.Value{ts, ir.Int(60)},
			ir.NewTimestamp(time.Date(2024, 5, 6, 7, 9, 9, 0, time.UTC))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evalCall(t, tt.fn, tt.args...)
			require.NoError(t, err)
			assert.True(t, ir.Equal(tt.want, got), "want %#v, got %#v", tt.want, got)
		})
	}
}

func TestBuiltins_Errors(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []ir.Value
		code ir.ErrorCode
	}{
		{"div by zero", "div", []ir.Value{ir.Int(1), ir.Int(0)}, ir.ErrCodeDomain},
		{"mod by zero", "mod", []ir.Value{ir.Int(1), ir.Int(0)}, ir.ErrCodeDomain},
		{"add text", "add", []ir.Value{ir.Int(1), ir.Text("x")}, ir.ErrCodeType},
		{"upper int", "upper", []ir.Value{ir.Int(1)}, ir.ErrCodeType},
		{"substring zero", "substring", []ir.Value{ir.Text("abc"), ir.Int(0)}, ir.ErrCodeDomain},
		{"bad timestamp", "timestamp", []ir.Value{ir.Text("yesterday")}, ir.ErrCodeDomain},
		{"empty range", "rand.range", []ir.Value{ir.Int(5), ir.Int(5)}, ir.ErrCodeDomain},
		{"bad probability", "rand.bool", []ir.Value{ir.Real(1.5)}, ir.ErrCodeDomain},
		{"negative length", "rand.string", []ir.Value{ir.Int(-1)}, ir.ErrCodeDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evalCall(t, tt.fn, tt.args...)
			require.Error(t, err)
			assert.True(t, ir.IsCode(err, tt.code), "got %v", err)

			var e *ir.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, testPos, e.Pos)
		})
	}
}

func TestBuiltins_RandomWithinBounds(t *testing.T) {
	b := NewBuilder()
	rng := mustCall(t, b, "rand.range", lit(ir.Int(10)), lit(ir.Int(20)))
	incl := mustCall(t, b, "rand.range_inclusive", lit(ir.Int(-1)), lit(ir.Int(1)))
	uni := mustCall(t, b, "rand.uniform", lit(ir.Real(0)), lit(ir.Real(1)))
	choice := mustCall(t, b, "rand.choice", lit(ir.Text("x")), lit(ir.Text("y")))

	s := NewState(Snapshot{Seed: [SeedSize]byte{42}})
	for range 200 {
		v, err := rng.Eval(s)
		require.NoError(t, err)
		n := int64(v.(ir.Int))
		assert.True(t, n >= 10 && n < 20, "rand.range out of bounds: %d", n)

		v, err = incl.Eval(s)
		require.NoError(t, err)
		n = int64(v.(ir.Int))
		assert.True(t, n >= -1 && n <= 1, "rand.range_inclusive out of bounds: %d", n)

		v, err = uni.Eval(s)
		require.NoError(t, err)
		f := float64(v.(ir.Real))
		assert.True(t, f >= 0 && f < 1, "rand.uniform out of bounds: %v", f)

		v, err = choice.Eval(s)
		require.NoError(t, err)
		assert.Contains(t, []ir.Value{ir.Text("x"), ir.Text("y")}, v)
	}
}

func TestBuiltins_RandDeterministic(t *testing.T) {
	b := NewBuilder()
	id := mustCall(t, b, "rand.uuid")
	str := mustCall(t, b, "rand.string", lit(ir.Int(12)))
	raw := mustCall(t, b, "rand.bytes", lit(ir.Int(8)))

	run := func() []ir.Value {
		s := NewState(Snapshot{Seed: [SeedSize]byte{5}})
		var out []ir.Value
		for _, e := range []Expr{id, str, raw} {
			v, err := e.Eval(s)
			require.NoError(t, err)
			out = append(out, v)
		}
		return out
	}

	first, second := run(), run()
	for i := range first {
		assert.True(t, ir.Equal(first[i], second[i]))
	}

	uuidText := string(first[0].(ir.Text))
	assert.Len(t, uuidText, 36)
	assert.Equal(t, byte('4'), uuidText[14], "expected a version 4 UUID")
	assert.Len(t, string(first[1].(ir.Text)), 12)
	assert.Len(t, []byte(first[2].(ir.Bytes)), 8)
}

func TestState_RowNumBuiltins(t *testing.T) {
	b := NewBuilder()
	row := mustCall(t, b, "rownum")
	sub := mustCall(t, b, "subrownum")
	now := mustCall(t, b, "now")

	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewState(Snapshot{RowNum: 7, Now: at})
	s.SubRowNum = 3

	v, err := row.Eval(s)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(7), v)

	v, err = sub.Eval(s)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(3), v)

	v, err = now.Eval(s)
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.NewTimestamp(at), v))
}

func TestToCount(t *testing.T) {
	n, err := ToCount(ir.Int(3), testPos)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = ToCount(ir.Real(2), testPos)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, v := range []ir.Value{ir.Int(-1), ir.Real(2.5), ir.Real(-3), ir.Text("3"), ir.Null{}} {
		_, err := ToCount(v, testPos)
		require.Error(t, err, "ToCount(%#v)", v)
		assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidCount))
		assert.Contains(t, err.Error(), "t.cue:3:5")
	}
}
