package eval

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/dbgen/internal/ir"
)

// maxGeneratedLength bounds rand.string and rand.bytes.
const maxGeneratedLength = 1 << 20

const alphanumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// builtinFunc receives already-evaluated arguments.
type builtinFunc func(s *State, args []ir.Value, pos ir.Pos) (ir.Value, error)

type builtin struct {
	minArgs int
	maxArgs int // -1 means variadic
	fn      builtinFunc
}

func (b builtin) arity() string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("at least %d arguments", b.minArgs)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("%d arguments", b.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", b.minArgs, b.maxArgs)
	}
}

// builtins is the function table resolved by Builder.Call.
var builtins = map[string]builtin{
	// State
	"rownum":    {0, 0, fnRowNum},
	"subrownum": {0, 0, fnSubRowNum},
	"now":       {0, 0, fnNow},

	// Arithmetic
	"add": {2, -1, fnAdd},
	"sub": {2, 2, fnSub},
	"mul": {2, -1, fnMul},
	"div": {2, 2, fnDiv},
	"mod": {2, 2, fnMod},
	"neg": {1, 1, fnNeg},

	// Comparison
	"eq": {2, 2, fnEq},
	"lt": {2, 2, fnLt},

	// Strings and casts
	"concat":    {1, -1, fnConcat},
	"upper":     {1, 1, fnUpper},
	"lower":     {1, 1, fnLower},
	"substring": {2, 3, fnSubstring},
	"length":    {1, 1, fnLength},
	"to_text":   {1, 1, fnToText},
	"to_int":    {1, 1, func(_ *State, a []ir.Value, p ir.Pos) (ir.Value, error) { return castInt(a[0], p) }},
	"to_real":   {1, 1, func(_ *State, a []ir.Value, p ir.Pos) (ir.Value, error) { return castReal(a[0], p) }},

	// Time
	"timestamp":   {1, 1, fnTimestamp},
	"add_seconds": {2, 2, fnAddSeconds},

	// Random
	"rand.range":           {2, 2, fnRandRange},
	"rand.range_inclusive": {2, 2, fnRandRangeInclusive},
	"rand.uniform":         {2, 2, fnRandUniform},
	"rand.bool":            {1, 1, fnRandBool},
	"rand.choice":          {1, -1, fnRandChoice},
	"rand.uuid":            {0, 0, fnRandUUID},
	"rand.string":          {1, 1, fnRandString},
	"rand.bytes":           {1, 1, fnRandBytes},
}

func fnRowNum(s *State, _ []ir.Value, _ ir.Pos) (ir.Value, error) {
	return ir.Int(s.RowNum), nil
}

func fnSubRowNum(s *State, _ []ir.Value, _ ir.Pos) (ir.Value, error) {
	return ir.Int(s.SubRowNum), nil
}

func fnNow(s *State, _ []ir.Value, _ ir.Pos) (ir.Value, error) {
	return ir.NewTimestamp(s.Now()), nil
}

// hasNull reports whether any argument is Null. Arithmetic propagates Null.
func hasNull(args []ir.Value) bool {
	for _, a := range args {
		if _, ok := a.(ir.Null); ok {
			return true
		}
	}
	return false
}

// allInts reports whether every argument is an Int.
func allInts(args []ir.Value) bool {
	for _, a := range args {
		if _, ok := a.(ir.Int); !ok {
			return false
		}
	}
	return true
}

func fnAdd(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	if allInts(args) {
		var sum int64
		for _, a := range args {
			sum += int64(a.(ir.Int))
		}
		return ir.Int(sum), nil
	}
	var sum float64
	for _, a := range args {
		f, err := argReal("add", a, pos)
		if err != nil {
			return nil, err
		}
		sum += f
	}
	return ir.Real(sum), nil
}

func fnSub(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	if ts, ok := args[0].(ir.Timestamp); ok {
		other, ok := args[1].(ir.Timestamp)
		if !ok {
			return nil, ir.Errorf(ir.ErrCodeType, pos, "sub: cannot subtract %s from timestamp", kindOf(args[1]))
		}
		return ir.Int(int64(ts.Time.Sub(other.Time) / time.Second)), nil
	}
	if allInts(args) {
		return args[0].(ir.Int) - args[1].(ir.Int), nil
	}
	a, err := argReal("sub", args[0], pos)
	if err != nil {
		return nil, err
	}
	b, err := argReal("sub", args[1], pos)
	if err != nil {
		return nil, err
	}
	return ir.Real(a - b), nil
}

func fnMul(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	if allInts(args) {
		product := int64(1)
		for _, a := range args {
			product *= int64(a.(ir.Int))
		}
		return ir.Int(product), nil
	}
	product := 1.0
	for _, a := range args {
		f, err := argReal("mul", a, pos)
		if err != nil {
			return nil, err
		}
		product *= f
	}
	return ir.Real(product), nil
}

// fnDiv always produces a Real.
func fnDiv(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	a, err := argReal("div", args[0], pos)
	if err != nil {
		return nil, err
	}
	b, err := argReal("div", args[1], pos)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "div: division by zero")
	}
	return ir.Real(a / b), nil
}

func fnMod(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	a, err := argInt("mod", args[0], pos)
	if err != nil {
		return nil, err
	}
	b, err := argInt("mod", args[1], pos)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "mod: division by zero")
	}
	return ir.Int(a % b), nil
}

func fnNeg(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	switch v := args[0].(type) {
	case ir.Null:
		return v, nil
	case ir.Int:
		return -v, nil
	case ir.Real:
		return -v, nil
	default:
		return nil, ir.Errorf(ir.ErrCodeType, pos, "neg: expected number, got %s", kindOf(v))
	}
}

// compare orders two values of compatible kinds.
func compare(name string, a, b ir.Value, pos ir.Pos) (int, error) {
	switch av := a.(type) {
	case ir.Int, ir.Real:
		x, err := argReal(name, a, pos)
		if err != nil {
			return 0, err
		}
		y, err := argReal(name, b, pos)
		if err != nil {
			return 0, err
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case ir.Text:
		bv, err := argText(name, b, pos)
		if err != nil {
			return 0, err
		}
		switch {
		case string(av) < bv:
			return -1, nil
		case string(av) > bv:
			return 1, nil
		}
		return 0, nil
	case ir.Timestamp:
		bv, ok := b.(ir.Timestamp)
		if !ok {
			return 0, ir.Errorf(ir.ErrCodeType, pos, "%s: cannot compare timestamp with %s", name, kindOf(b))
		}
		return av.Time.Compare(bv.Time), nil
	default:
		return 0, ir.Errorf(ir.ErrCodeType, pos, "%s: cannot compare %s", name, kindOf(a))
	}
}

func fnEq(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	if _, ok := args[0].(ir.Bytes); ok {
		return ir.Bool(ir.Equal(args[0], args[1])), nil
	}
	c, err := compare("eq", args[0], args[1], pos)
	if err != nil {
		return nil, err
	}
	return ir.Bool(c == 0), nil
}

func fnLt(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	c, err := compare("lt", args[0], args[1], pos)
	if err != nil {
		return nil, err
	}
	return ir.Bool(c < 0), nil
}

func fnConcat(_ *State, args []ir.Value, _ ir.Pos) (ir.Value, error) {
	var out []byte
	for _, a := range args {
		out = append(out, ir.Format(a)...)
	}
	return ir.Text(out), nil
}

// Casers are stateful, so one is created per call.
func fnUpper(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	s, err := argText("upper", args[0], pos)
	if err != nil {
		return nil, err
	}
	return ir.Text(cases.Upper(language.Und).String(s)), nil
}

func fnLower(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	s, err := argText("lower", args[0], pos)
	if err != nil {
		return nil, err
	}
	return ir.Text(cases.Lower(language.Und).String(s)), nil
}

// fnSubstring takes a 1-based rune offset and an optional rune length.
func fnSubstring(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	s, err := argText("substring", args[0], pos)
	if err != nil {
		return nil, err
	}
	start, err := argInt("substring", args[1], pos)
	if err != nil {
		return nil, err
	}
	if start < 1 {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "substring: start %d must be at least 1", start)
	}
	runes := []rune(s)
	from := min(int(start-1), len(runes))
	to := len(runes)
	if len(args) == 3 {
		n, err := argInt("substring", args[2], pos)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, ir.Errorf(ir.ErrCodeDomain, pos, "substring: length %d is negative", n)
		}
		to = min(from+int(n), len(runes))
	}
	return ir.Text(string(runes[from:to])), nil
}

func fnLength(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	switch v := args[0].(type) {
	case ir.Null:
		return v, nil
	case ir.Text:
		return ir.Int(utf8.RuneCountInString(string(v))), nil
	case ir.Bytes:
		return ir.Int(len(v)), nil
	default:
		return nil, ir.Errorf(ir.ErrCodeType, pos, "length: expected text or bytes, got %s", kindOf(v))
	}
}

func fnToText(_ *State, args []ir.Value, _ ir.Pos) (ir.Value, error) {
	if _, ok := args[0].(ir.Null); ok {
		return args[0], nil
	}
	return ir.Text(ir.Format(args[0])), nil
}

func fnTimestamp(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	s, err := argText("timestamp", args[0], pos)
	if err != nil {
		return nil, err
	}
	t, err := time.ParseInLocation(ir.TimestampLayout, s, time.UTC)
	if err != nil {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "timestamp: cannot parse %q", s)
	}
	return ir.NewTimestamp(t), nil
}

func fnAddSeconds(_ *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	if hasNull(args) {
		return ir.Null{}, nil
	}
	ts, ok := args[0].(ir.Timestamp)
	if !ok {
		return nil, ir.Errorf(ir.ErrCodeType, pos, "add_seconds: expected timestamp, got %s", kindOf(args[0]))
	}
	secs, err := argReal("add_seconds", args[1], pos)
	if err != nil {
		return nil, err
	}
	return ir.NewTimestamp(ts.Time.Add(time.Duration(secs * float64(time.Second)))), nil
}

// fnRandRange draws uniformly from [lo, hi).
func fnRandRange(s *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	lo, err := argInt("rand.range", args[0], pos)
	if err != nil {
		return nil, err
	}
	hi, err := argInt("rand.range", args[1], pos)
	if err != nil {
		return nil, err
	}
	if hi <= lo {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "rand.range: empty range [%d, %d)", lo, hi)
	}
	span := uint64(hi - lo)
	return ir.Int(lo + int64(s.Rand().Uint64N(span))), nil
}

// fnRandRangeInclusive draws uniformly from [lo, hi].
func fnRandRangeInclusive(s *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	lo, err := argInt("rand.range_inclusive", args[0], pos)
	if err != nil {
		return nil, err
	}
	hi, err := argInt("rand.range_inclusive", args[1], pos)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "rand.range_inclusive: empty range [%d, %d]", lo, hi)
	}
	span := uint64(hi-lo) + 1
	if span == 0 {
		// full int64 range
		return ir.Int(int64(s.Rand().Uint64())), nil
	}
	return ir.Int(lo + int64(s.Rand().Uint64N(span))), nil
}

func fnRandUniform(s *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	lo, err := argReal("rand.uniform", args[0], pos)
	if err != nil {
		return nil, err
	}
	hi, err := argReal("rand.uniform", args[1], pos)
	if err != nil {
		return nil, err
	}
	if hi < lo || math.IsInf(hi-lo, 0) || math.IsNaN(hi-lo) {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "rand.uniform: invalid range [%v, %v)", lo, hi)
	}
	return ir.Real(lo + s.Rand().Float64()*(hi-lo)), nil
}

func fnRandBool(s *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	p, err := argReal("rand.bool", args[0], pos)
	if err != nil {
		return nil, err
	}
	if p < 0 || p > 1 || math.IsNaN(p) {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "rand.bool: probability %v not in [0, 1]", p)
	}
	return ir.Bool(s.Rand().Float64() < p), nil
}

func fnRandChoice(s *State, args []ir.Value, _ ir.Pos) (ir.Value, error) {
	return args[s.Rand().IntN(len(args))], nil
}

// fnRandUUID produces a version 4 UUID from the seeded source, so the
// value is reproducible.
func fnRandUUID(s *State, _ []ir.Value, pos ir.Pos) (ir.Value, error) {
	id, err := uuid.NewRandomFromReader(s)
	if err != nil {
		return nil, ir.Errorf(ir.ErrCodeDomain, pos, "rand.uuid: %v", err)
	}
	return ir.Text(id.String()), nil
}

func generatedLength(name string, v ir.Value, pos ir.Pos) (int, error) {
	n, err := argInt(name, v, pos)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > maxGeneratedLength {
		return 0, ir.Errorf(ir.ErrCodeDomain, pos, "%s: length %d not in [0, %d]", name, n, maxGeneratedLength)
	}
	return int(n), nil
}

func fnRandString(s *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	n, err := generatedLength("rand.string", args[0], pos)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphanumeric[s.Rand().IntN(len(alphanumeric))]
	}
	return ir.Text(buf), nil
}

func fnRandBytes(s *State, args []ir.Value, pos ir.Pos) (ir.Value, error) {
	n, err := generatedLength("rand.bytes", args[0], pos)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	_, _ = s.Read(buf)
	return ir.Bytes(buf), nil
}
