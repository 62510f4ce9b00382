package codec

import (
	"math"

	"github.com/matrixant/message-pack/value"
)

// encoder walks a Value tree and emits MessagePack bytes into a growable
// scratch buffer. Recursion is bounded by DepthMax; an unsupported variant
// is written as Nil and recorded as a deferred error so the byte count
// stays consistent with what a caller inspecting partial output would
// expect.
type encoder struct {
	buf []byte
	err *Error
}

// Encode serializes v to MessagePack bytes. If v (or any descendant)
// contains a variant this codec cannot represent, Encode still returns the
// bytes written so far with Nil in place of the unsupported value, plus a
// non-nil error describing the first such occurrence.
func Encode(v value.Value) ([]byte, error) {
	e := &encoder{buf: make([]byte, 0, 64)}
	e.writeValue(v, 0)

	if e.err != nil {
		return nil, e.err
	}

	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out, nil
}

func (e *encoder) fail(kind ErrorKind, msg string) {
	if e.err == nil {
		e.err = newErr(kind, msg)
	}
}

func (e *encoder) writeValue(v value.Value, depth int) {
	if depth >= DepthMax {
		e.fail(TooBig, "encode recursion exceeded max depth")
		e.writeByte(tagNil)
		return
	}

	switch v.Kind() {
	case value.KindNil:
		e.writeByte(tagNil)
	case value.KindBool:
		b, _ := v.AsBool()
		if b {
			e.writeByte(tagTrue)
		} else {
			e.writeByte(tagFalse)
		}
	case value.KindInt:
		i, _ := v.AsInt()
		e.writeInt(i)
	case value.KindUInt:
		u, _ := v.AsUInt()
		e.writeUint(u)
	case value.KindFloat32:
		f, _ := v.AsFloat32()
		e.writeFloat32(f)
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		e.writeFloat64Rule(f)
	case value.KindStr:
		s, _ := v.AsStr()
		e.writeStr(s)
	case value.KindBin:
		b, _ := v.AsBin()
		e.writeBin(b)
	case value.KindArray:
		elems, _ := v.AsArray()
		e.writeArrayHeader(len(elems))
		switch v.Bulk() {
		case value.BulkInts:
			for _, el := range elems {
				n, _ := el.AsInt()
				e.writeInt(n)
			}
		case value.BulkFloat32s:
			for _, el := range elems {
				f, _ := el.AsFloat32()
				e.writeFloat32(f)
			}
		case value.BulkFloat64s:
			for _, el := range elems {
				f, _ := el.AsFloat64()
				e.writeFloat64(f)
			}
		default:
			for _, el := range elems {
				e.writeValue(el, depth+1)
			}
		}
	case value.KindMap:
		pairs := v.Pairs()
		e.writeMapHeader(len(pairs))
		for _, kv := range pairs {
			e.writeValue(kv.Key, depth+1)
			e.writeValue(kv.Val, depth+1)
		}
	case value.KindExt:
		ext, _ := v.AsExt()
		e.writeExt(ext.TypeID, ext.Data)
	default:
		e.fail(Unsupported, "unsupported value kind during encode")
		e.writeByte(tagNil)
	}
}

func (e *encoder) writeByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) writeBytes(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) writeU8(v uint8)   { e.writeByte(v) }
func (e *encoder) writeU16(v uint16) { e.writeByte(byte(v >> 8)); e.writeByte(byte(v)) }
func (e *encoder) writeU32(v uint32) {
	e.writeByte(byte(v >> 24))
	e.writeByte(byte(v >> 16))
	e.writeByte(byte(v >> 8))
	e.writeByte(byte(v))
}
func (e *encoder) writeU64(v uint64) {
	e.writeU32(uint32(v >> 32))
	e.writeU32(uint32(v))
}

// writeInt picks the narrowest MessagePack integer form that preserves the
// value. Non-negative values beyond fixint range prefer the unsigned tags
// (uint8/16/32/64) — this matches the reference encoding of e.g. 128 as
// `cc 80`, not a signed int16 — while negative values use the signed tags
// (int8/16/32/64).
func (e *encoder) writeInt(i int64) {
	switch {
	case i >= 0 && i <= tagPosFixIntMax:
		e.writeByte(byte(i))
	case i < 0 && i >= -32:
		e.writeByte(byte(int8(i)))
	case i >= 0:
		switch {
		case i <= math.MaxUint8:
			e.writeByte(tagUint8)
			e.writeByte(byte(i))
		case i <= math.MaxUint16:
			e.writeByte(tagUint16)
			e.writeU16(uint16(i))
		case i <= math.MaxUint32:
			e.writeByte(tagUint32)
			e.writeU32(uint32(i))
		default:
			e.writeByte(tagUint64)
			e.writeU64(uint64(i))
		}
	default:
		switch {
		case i >= math.MinInt8:
			e.writeByte(tagInt8)
			e.writeByte(byte(int8(i)))
		case i >= math.MinInt16:
			e.writeByte(tagInt16)
			e.writeU16(uint16(int16(i)))
		case i >= math.MinInt32:
			e.writeByte(tagInt32)
			e.writeU32(uint32(int32(i)))
		default:
			e.writeByte(tagInt64)
			e.writeU64(uint64(i))
		}
	}
}

func (e *encoder) writeUint(u uint64) {
	switch {
	case u <= tagPosFixIntMax:
		e.writeByte(byte(u))
	case u <= math.MaxUint8:
		e.writeByte(tagUint8)
		e.writeByte(byte(u))
	case u <= math.MaxUint16:
		e.writeByte(tagUint16)
		e.writeU16(uint16(u))
	case u <= math.MaxUint32:
		e.writeByte(tagUint32)
		e.writeU32(uint32(u))
	default:
		e.writeByte(tagUint64)
		e.writeU64(u)
	}
}

func (e *encoder) writeFloat32(f float32) {
	e.writeByte(tagFloat32)
	e.writeU32(math.Float32bits(f))
}

func (e *encoder) writeFloat64(f float64) {
	e.writeByte(tagFloat64)
	e.writeU64(math.Float64bits(f))
}

// writeFloat64Rule applies the round-trip rule: encode as single precision
// iff the value survives an f64->f32->f64 round trip unchanged.
func (e *encoder) writeFloat64Rule(f float64) {
	if float64(float32(f)) == f {
		e.writeFloat32(float32(f))
	} else {
		e.writeFloat64(f)
	}
}

func (e *encoder) writeStr(s string) {
	if len(s) > StrMax {
		e.fail(TooBig, "string exceeds STR_MAX")
		e.writeByte(tagNil)
		return
	}
	n := len(s)
	switch {
	case n <= 31:
		e.writeByte(byte(tagFixStr | n))
	case n <= math.MaxUint8:
		e.writeByte(tagStr8)
		e.writeU8(uint8(n))
	case n <= math.MaxUint16:
		e.writeByte(tagStr16)
		e.writeU16(uint16(n))
	default:
		e.writeByte(tagStr32)
		e.writeU32(uint32(n))
	}
	e.writeBytes([]byte(s))
}

func (e *encoder) writeBin(b []byte) {
	if len(b) > BinMax {
		e.fail(TooBig, "bin exceeds BIN_MAX")
		e.writeByte(tagNil)
		return
	}
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		e.writeByte(tagBin8)
		e.writeU8(uint8(n))
	case n <= math.MaxUint16:
		e.writeByte(tagBin16)
		e.writeU16(uint16(n))
	default:
		e.writeByte(tagBin32)
		e.writeU32(uint32(n))
	}
	e.writeBytes(b)
}

func (e *encoder) writeArrayHeader(n int) {
	switch {
	case n <= 15:
		e.writeByte(byte(tagFixArray | n))
	case n <= math.MaxUint16:
		e.writeByte(tagArray16)
		e.writeU16(uint16(n))
	default:
		e.writeByte(tagArray32)
		e.writeU32(uint32(n))
	}
}

func (e *encoder) writeMapHeader(n int) {
	switch {
	case n <= 15:
		e.writeByte(byte(tagFixMap | n))
	case n <= math.MaxUint16:
		e.writeByte(tagMap16)
		e.writeU16(uint16(n))
	default:
		e.writeByte(tagMap32)
		e.writeU32(uint32(n))
	}
}

func (e *encoder) writeExt(typeID int8, data []byte) {
	n := len(data)
	switch n {
	case 1:
		e.writeByte(tagFixExt1)
	case 2:
		e.writeByte(tagFixExt2)
	case 4:
		e.writeByte(tagFixExt4)
	case 8:
		e.writeByte(tagFixExt8)
	case 16:
		e.writeByte(tagFixExt16)
	default:
		switch {
		case n <= math.MaxUint8:
			e.writeByte(tagExt8)
			e.writeU8(uint8(n))
		case n <= math.MaxUint16:
			e.writeByte(tagExt16)
			e.writeU16(uint16(n))
		default:
			e.writeByte(tagExt32)
			e.writeU32(uint32(n))
		}
	}
	e.writeByte(byte(typeID))
	e.writeBytes(data)
}
