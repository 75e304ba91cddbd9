package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paramstore/paramstore/internal/pvalue"
)

// encodeScalar turns a pvalue.Value into the BLOB column representation.
// The first byte is a type tag (independent of the declared descriptor
// type, so a type mismatch after a schema change is detectable on decode)
// followed by the type-specific payload.
func encodeScalar(v pvalue.Value) ([]byte, error) {
	buf := make([]byte, 1, 9)
	buf[0] = byte(v.Kind)
	switch v.Kind {
	case pvalue.KindNone:
		return buf, nil
	case pvalue.KindBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case pvalue.KindI32, pvalue.KindEnum:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v.I32))
	case pvalue.KindU32:
		buf = binary.LittleEndian.AppendUint32(buf, v.U32)
	case pvalue.KindI64:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.I64))
	case pvalue.KindU64:
		buf = binary.LittleEndian.AppendUint64(buf, v.U64)
	case pvalue.KindF32:
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.F32))
	case pvalue.KindF64:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F64))
	case pvalue.KindString:
		buf = append(buf, []byte(v.Str)...)
	case pvalue.KindBlob:
		buf = append(buf, v.Blob...)
	default:
		return nil, fmt.Errorf("scalar: unsupported kind %s", v.Kind)
	}
	if v.Kind == pvalue.KindEnum {
		buf = append(buf, []byte(v.EnumName)...)
		buf = append(buf, 0)
	}
	return buf, nil
}

// decodeScalar reverses encodeScalar, checking the stored tag against
// wantKind. A tag mismatch is reported as an error so the caller (Store)
// falls back to the descriptor's default, per.
func decodeScalar(wantKind pvalue.Kind, enumName string, raw []byte) (pvalue.Value, error) {
	if len(raw) < 1 {
		return pvalue.None, fmt.Errorf("scalar: empty payload")
	}
	gotKind := pvalue.Kind(raw[0])
	if gotKind != wantKind {
		return pvalue.None, fmt.Errorf("scalar: stored kind %s does not match declared kind %s", gotKind, wantKind)
	}
	payload := raw[1:]

	switch wantKind {
	case pvalue.KindNone:
		return pvalue.None, nil
	case pvalue.KindBool:
		if len(payload) < 1 {
			return pvalue.None, fmt.Errorf("scalar: short bool payload")
		}
		return pvalue.Bool(payload[0] != 0), nil
	case pvalue.KindI32:
		if len(payload) < 4 {
			return pvalue.None, fmt.Errorf("scalar: short i32 payload")
		}
		return pvalue.I32(int32(binary.LittleEndian.Uint32(payload))), nil
	case pvalue.KindU32:
		if len(payload) < 4 {
			return pvalue.None, fmt.Errorf("scalar: short u32 payload")
		}
		return pvalue.U32(binary.LittleEndian.Uint32(payload)), nil
	case pvalue.KindI64:
		if len(payload) < 8 {
			return pvalue.None, fmt.Errorf("scalar: short i64 payload")
		}
		return pvalue.I64(int64(binary.LittleEndian.Uint64(payload))), nil
	case pvalue.KindU64:
		if len(payload) < 8 {
			return pvalue.None, fmt.Errorf("scalar: short u64 payload")
		}
		return pvalue.U64(binary.LittleEndian.Uint64(payload)), nil
	case pvalue.KindF32:
		if len(payload) < 4 {
			return pvalue.None, fmt.Errorf("scalar: short f32 payload")
		}
		return pvalue.F32(math.Float32frombits(binary.LittleEndian.Uint32(payload))), nil
	case pvalue.KindF64:
		if len(payload) < 8 {
			return pvalue.None, fmt.Errorf("scalar: short f64 payload")
		}
		return pvalue.F64(math.Float64frombits(binary.LittleEndian.Uint64(payload))), nil
	case pvalue.KindString:
		return pvalue.String(string(payload)), nil
	case pvalue.KindBlob:
		return pvalue.Blob(payload), nil
	case pvalue.KindEnum:
		if len(payload) < 4 {
			return pvalue.None, fmt.Errorf("scalar: short enum payload")
		}
		n := int32(binary.LittleEndian.Uint32(payload))
		return pvalue.Enum(enumName, n), nil
	default:
		return pvalue.None, fmt.Errorf("scalar: unsupported kind %s", wantKind)
	}
}
