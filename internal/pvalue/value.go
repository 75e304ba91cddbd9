// Package pvalue implements the tagged-union parameter value type shared by
// the schema compiler, the durable store and the parameter engine.
package pvalue

import (
	"fmt"
)

// Kind discriminates the variant carried by a Value.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindString
	KindBlob
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "Bool"
	case KindI32:
		return "I32"
	case KindU32:
		return "U32"
	case KindI64:
		return "I64"
	case KindU64:
		return "U64"
	case KindF32:
		return "F32"
	case KindF64:
		return "F64"
	case KindString:
		return "String"
	case KindBlob:
		return "Blob"
	case KindEnum:
		return "Enum"
	default:
		return "Unknown"
	}
}

// Value is a closed sum type matching spec's ParameterValue. Exactly one of
// the typed fields is meaningful, selected by Kind. EnumName carries the
// declared enum type name for KindEnum values (the numeric value itself
// lives in I32).
type Value struct {
	Kind     Kind
	Bool     bool
	I32      int32
	U32      uint32
	I64      int64
	U64      uint64
	F32      float32
	F64      float64
	Str      string
	Blob     []byte
	EnumName string
}

// None is the zero Value of kind None.
var None = Value{Kind: KindNone}

func Bool(v bool) Value     { return Value{Kind: KindBool, Bool: v} }
func I32(v int32) Value     { return Value{Kind: KindI32, I32: v} }
func U32(v uint32) Value    { return Value{Kind: KindU32, U32: v} }
func I64(v int64) Value     { return Value{Kind: KindI64, I64: v} }
func U64(v uint64) Value    { return Value{Kind: KindU64, U64: v} }
func F32(v float32) Value   { return Value{Kind: KindF32, F32: v} }
func F64(v float64) Value   { return Value{Kind: KindF64, F64: v} }
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func Blob(v []byte) Value   { return Value{Kind: KindBlob, Blob: append([]byte(nil), v...)} }
func Enum(name string, v int32) Value {
	return Value{Kind: KindEnum, EnumName: name, I32: v}
}

// Equal reports whether two values carry the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNone:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindI32:
		return v.I32 == other.I32
	case KindU32:
		return v.U32 == other.U32
	case KindI64:
		return v.I64 == other.I64
	case KindU64:
		return v.U64 == other.U64
	case KindF32:
		return v.F32 == other.F32
	case KindF64:
		return v.F64 == other.F64
	case KindString:
		return v.Str == other.Str
	case KindBlob:
		return string(v.Blob) == string(other.Blob)
	case KindEnum:
		return v.EnumName == other.EnumName && v.I32 == other.I32
	default:
		return false
	}
}

// String renders a human-readable display form, used in logs and in the
// JSON-RPC front-end's text fallbacks.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "<none>"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindI32:
		return fmt.Sprintf("%d", v.I32)
	case KindU32:
		return fmt.Sprintf("%d", v.U32)
	case KindI64:
		return fmt.Sprintf("%d", v.I64)
	case KindU64:
		return fmt.Sprintf("%d", v.U64)
	case KindF32:
		return fmt.Sprintf("%g", v.F32)
	case KindF64:
		return fmt.Sprintf("%g", v.F64)
	case KindString:
		return v.Str
	case KindBlob:
		return fmt.Sprintf("<%d bytes>", len(v.Blob))
	case KindEnum:
		return fmt.Sprintf("%s(%d)", v.EnumName, v.I32)
	default:
		return "<invalid>"
	}
}

// Less orders two values of the same numeric kind, used for Range
// validation. Returns an error for non-numeric kinds.
func Less(a, b Value) (bool, error) {
	if a.Kind != b.Kind {
		return false, fmt.Errorf("pvalue: cannot compare %s with %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindI32, KindEnum:
		return a.I32 < b.I32, nil
	case KindU32:
		return a.U32 < b.U32, nil
	case KindI64:
		return a.I64 < b.I64, nil
	case KindU64:
		return a.U64 < b.U64, nil
	case KindF32:
		return a.F32 < b.F32, nil
	case KindF64:
		return a.F64 < b.F64, nil
	default:
		return false, fmt.Errorf("pvalue: kind %s is not orderable", a.Kind)
	}
}

// ToFloat64 converts a numeric value to float64, reporting false for a
// non-numeric value.
func ToFloat64(v Value) (float64, bool) {
	switch v.Kind {
	case KindI32, KindEnum:
		return float64(v.I32), true
	case KindU32:
		return float64(v.U32), true
	case KindI64:
		return float64(v.I64), true
	case KindU64:
		return float64(v.U64), true
	case KindF32:
		return float64(v.F32), true
	case KindF64:
		return v.F64, true
	default:
		return 0, false
	}
}

