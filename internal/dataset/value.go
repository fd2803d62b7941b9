package dataset

import (
	"math"
	"strconv"
	"time"
)

// Kind is the runtime type of a single cell.
type Kind int

const (
	// KindNull marks a missing cell.
	KindNull Kind = iota
	// KindNumber marks a float64 cell.
	KindNumber
	// KindText marks a string cell.
	KindText
	// KindBool marks a boolean cell.
	KindBool
	// KindTime marks a timestamp cell.
	KindTime
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a typed scalar. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
	t    time.Time
}

// Null returns a null value.
func Null() Value { return Value{} }

// Number returns a numeric value. NaN is stored as null.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time returns a timestamp value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Kind returns the runtime kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is missing.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the numeric payload.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the string payload.
func (v Value) Str() (string, bool) { return v.text, v.kind == KindText }

// BoolValue returns the boolean payload.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// TimeValue returns the timestamp payload.
func (v Value) TimeValue() (time.Time, bool) { return v.t, v.kind == KindTime }

// Interface returns the payload as nil, float64, string, bool or time.Time.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return nil
	}
}

// String formats the value for display. Null renders as an empty string.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and payload.
// Two nulls are equal.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.key() == o.key()
}

// key is a kind-tagged canonical form used for hashing rows and cells.
func (v Value) key() string {
	switch v.kind {
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return "s:" + v.text
	case KindBool:
		return "b:" + strconv.FormatBool(v.b)
	case KindTime:
		return "t:" + v.t.UTC().Format(time.RFC3339Nano)
	default:
		return "null"
	}
}
