package ir

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the textual layout used for Timestamp values in
// generated output and in timestamp literals.
const TimestampLayout = "2006-01-02 15:04:05"

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindReal
	KindText
	KindBytes
	KindTimestamp
)

// String returns the lowercase kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a sealed interface representing a generated scalar.
// Only Null, Int, Real, Text, Bytes and Timestamp implement it.
//
// Values are immutable once produced. Bytes must not be modified after
// construction; expressions that derive new byte strings copy.
type Value interface {
	Kind() Kind
	value() // Sealed
}

// Null represents an absent value.
type Null struct{}

func (Null) value()     {}
func (Null) Kind() Kind { return KindNull }

// Int represents a 64-bit signed integer.
type Int int64

func (Int) value()     {}
func (Int) Kind() Kind { return KindInt }

// Real represents a 64-bit floating point number.
type Real float64

func (Real) value()     {}
func (Real) Kind() Kind { return KindReal }

// Text represents a UTF-8 string.
type Text string

func (Text) value()     {}
func (Text) Kind() Kind { return KindText }

// Bytes represents an arbitrary byte sequence.
type Bytes []byte

func (Bytes) value()     {}
func (Bytes) Kind() Kind { return KindBytes }

// Timestamp represents an instant, always normalised to UTC.
type Timestamp struct {
	Time time.Time
}

func (Timestamp) value()     {}
func (Timestamp) Kind() Kind { return KindTimestamp }

// NewTimestamp creates a Timestamp normalised to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// Bool converts a boolean into the Int representation used for truth values.
func Bool(b bool) Int {
	if b {
		return 1
	}
	return 0
}

// Format renders v in its plain textual form. Encodings apply their own
// quoting on top of this.
//
// Reals use the shortest representation that round-trips, so output is
// stable across runs.
func Format(v Value) string {
	switch val := v.(type) {
	case Null:
		return ""
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Real:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Text:
		return string(val)
	case Bytes:
		return hex.EncodeToString(val)
	case Timestamp:
		return val.Time.Format(TimestampLayout)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal reports whether a and b hold the same kind and the same content.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Bytes:
		return string(av) == string(b.(Bytes))
	case Timestamp:
		return av.Time.Equal(b.(Timestamp).Time)
	default:
		return a == b
	}
}
