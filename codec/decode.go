package codec

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/matrixant/message-pack/value"
)

// errNeedMore is an internal sentinel meaning the reader ran off the end of
// the buffer while trying to read a tag or its payload. Decode (whole
// buffer) reports this as Eof; the stream parser (stream.go) reports this
// as WouldBlock and retries once more bytes have been fed in — re-parsing
// the same bytes from the start is a pure function, so restarting at any
// tag boundary is always safe.
var errNeedMore = errors.New("codec: need more data")

// ExtDecoderFunc decodes an extension payload identified by typeID.
type ExtDecoderFunc func(typeID int8, data []byte) (value.Value, error)

// ExtRegistry holds user-registered extension-type decoders, consulted by
// both the buffer codec and the stream parser.
type ExtRegistry struct {
	decoders map[int8]ExtDecoderFunc
}

// NewExtRegistry returns an empty extension registry.
func NewExtRegistry() *ExtRegistry {
	return &ExtRegistry{decoders: make(map[int8]ExtDecoderFunc)}
}

// Register installs decoder for typeID, overwriting any previous decoder
// for the same id.
func (r *ExtRegistry) Register(typeID int8, decoder ExtDecoderFunc) {
	r.decoders[typeID] = decoder
}

func (r *ExtRegistry) lookup(typeID int8) (ExtDecoderFunc, bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.decoders[typeID]
	return fn, ok
}

// reader performs tag-driven recursive descent over a byte slice, shared by
// the whole-buffer Decode and the stream parser's TryParse.
type reader struct {
	buf      []byte
	pos      int
	registry *ExtRegistry
}

// Decode parses exactly one MessagePack value from data. On success it
// returns the decoded Value; err is nil. On failure err is a *Error naming
// the ErrorKind and, for malformed input, the offset of the first unread
// byte.
func Decode(data []byte) (value.Value, error) {
	return DecodeWithExts(data, nil)
}

// DecodeWithExts is Decode with a caller-supplied extension-type registry.
func DecodeWithExts(data []byte, registry *ExtRegistry) (value.Value, error) {
	r := &reader{buf: data, registry: registry}
	v, err := r.decodeValue(0)
	if err != nil {
		if errors.Is(err, errNeedMore) {
			return value.Value{}, newErrAt(Eof, "truncated message", r.pos)
		}
		if cerr, ok := err.(*Error); ok {
			cerr.Offset = r.pos
			return value.Value{}, cerr
		}
		return value.Value{}, newErrAt(Invalid, err.Error(), r.pos)
	}
	return v, nil
}

func (r *reader) need(n int) bool { return r.pos+n <= len(r.buf) }

func (r *reader) readByte() (byte, error) {
	if !r.need(1) {
		return 0, errNeedMore
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || !r.need(n) {
		return nil, errNeedMore
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readU16() (uint16, error) {
	b, err := r.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *reader) decodeValue(depth int) (value.Value, error) {
	if depth >= DepthMax {
		return value.Value{}, newErr(TooBig, "decode recursion exceeded max depth")
	}

	tag, err := r.readByte()
	if err != nil {
		return value.Value{}, err
	}

	switch {
	case tag <= tagPosFixIntMax:
		return value.Int(int64(tag)), nil
	case tag >= tagNegFixIntMin:
		return value.Int(int64(int8(tag))), nil
	case tag >= tagFixMap && tag <= tagFixMapMax:
		return r.decodeMap(int(tag&0x0f), depth)
	case tag >= tagFixArray && tag <= tagFixArrayMax:
		return r.decodeArray(int(tag&0x0f), depth)
	case tag >= tagFixStr && tag <= tagFixStrMax:
		return r.decodeStr(int(tag & 0x1f))
	}

	switch tag {
	case tagNil:
		return value.Nil(), nil
	case tagUnused:
		return value.Value{}, newErr(Invalid, "0xc1 is not a valid MessagePack tag")
	case tagFalse:
		return value.Bool(false), nil
	case tagTrue:
		return value.Bool(true), nil
	case tagBin8:
		n, err := r.readByte()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeBin(int(n))
	case tagBin16:
		n, err := r.readU16()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeBin(int(n))
	case tagBin32:
		n, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeBin(int(n))
	case tagExt8:
		n, err := r.readByte()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeExt(int(n))
	case tagExt16:
		n, err := r.readU16()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeExt(int(n))
	case tagExt32:
		n, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeExt(int(n))
	case tagFloat32:
		b, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return value.Float32(float32FromBits(b)), nil
	case tagFloat64:
		b, err := r.readU64()
		if err != nil {
			return value.Value{}, err
		}
		return value.Float64(float64FromBits(b)), nil
	case tagUint8:
		b, err := r.readByte()
		if err != nil {
			return value.Value{}, err
		}
		return value.UInt(uint64(b)), nil
	case tagUint16:
		b, err := r.readU16()
		if err != nil {
			return value.Value{}, err
		}
		return value.UInt(uint64(b)), nil
	case tagUint32:
		b, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return value.UInt(uint64(b)), nil
	case tagUint64:
		b, err := r.readU64()
		if err != nil {
			return value.Value{}, err
		}
		return value.UInt(b), nil
	case tagInt8:
		b, err := r.readByte()
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(int8(b))), nil
	case tagInt16:
		b, err := r.readU16()
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(int16(b))), nil
	case tagInt32:
		b, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(int32(b))), nil
	case tagInt64:
		b, err := r.readU64()
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(b)), nil
	case tagFixExt1:
		return r.decodeExt(1)
	case tagFixExt2:
		return r.decodeExt(2)
	case tagFixExt4:
		return r.decodeExt(4)
	case tagFixExt8:
		return r.decodeExt(8)
	case tagFixExt16:
		return r.decodeExt(16)
	case tagStr8:
		n, err := r.readByte()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeStr(int(n))
	case tagStr16:
		n, err := r.readU16()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeStr(int(n))
	case tagStr32:
		n, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeStr(int(n))
	case tagArray16:
		n, err := r.readU16()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeArray(int(n), depth)
	case tagArray32:
		n, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeArray(int(n), depth)
	case tagMap16:
		n, err := r.readU16()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeMap(int(n), depth)
	case tagMap32:
		n, err := r.readU32()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeMap(int(n), depth)
	}

	return value.Value{}, newErr(Invalid, "unrecognized MessagePack tag")
}

func (r *reader) decodeStr(n int) (value.Value, error) {
	if n > StrMax {
		return value.Value{}, newErr(TooBig, "string exceeds STR_MAX")
	}
	b, err := r.readBytes(n)
	if err != nil {
		return value.Value{}, err
	}
	if utf8.Valid(b) {
		return value.Str(string(b)), nil
	}
	// Malformed UTF-8 never aborts the parse: lossy-replace instead.
	return value.Str(toValidUTF8(b)), nil
}

func toValidUTF8(b []byte) string {
	// strings.ToValidUTF8 has identical semantics but avoids an extra
	// import here; replicate it directly for clarity at the call site.
	valid := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			valid = append(valid, string(utf8.RuneError)...)
			i++
			continue
		}
		valid = append(valid, b[i:i+size]...)
		i += size
	}
	return string(valid)
}

func (r *reader) decodeBin(n int) (value.Value, error) {
	if n > BinMax {
		return value.Value{}, newErr(TooBig, "bin exceeds BIN_MAX")
	}
	b, err := r.readBytes(n)
	if err != nil {
		return value.Value{}, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return value.Bin(out), nil
}

func (r *reader) decodeArray(n int, depth int) (value.Value, error) {
	elems := make([]value.Value, 0, clampPreSize(n))
	for i := 0; i < n; i++ {
		v, err := r.decodeValue(depth + 1)
		if err != nil {
			return value.Value{}, err
		}
		elems = append(elems, v)
	}
	return value.Array(elems), nil
}

func (r *reader) decodeMap(n int, depth int) (value.Value, error) {
	m := value.NewMap()
	for i := 0; i < n; i++ {
		key, err := r.decodeValue(depth + 1)
		if err != nil {
			return value.Value{}, err
		}
		val, err := r.decodeValue(depth + 1)
		if err != nil {
			return value.Value{}, err
		}
		// Read key, then value, then set — never reassign the accumulator
		// to the key partway through.
		m.Set(key, val)
	}
	return m, nil
}

func (r *reader) decodeExt(n int) (value.Value, error) {
	typeID, err := r.readByte()
	if err != nil {
		return value.Value{}, err
	}
	data, err := r.readBytes(n)
	if err != nil {
		return value.Value{}, err
	}
	tid := int8(typeID)

	if tid == ExtTimestamp {
		return decodeTimestamp(data)
	}
	if fn, ok := r.registry.lookup(tid); ok {
		out := make([]byte, len(data))
		copy(out, data)
		v, err := fn(tid, out)
		if err != nil {
			return value.Value{}, newErr(Unsupported, err.Error())
		}
		return v, nil
	}
	return value.Value{}, newErr(Unsupported, "no decoder registered for ext type")
}

// clampPreSize avoids pre-allocating pathologically large slices from a
// hostile length header; the DepthMax/StrMax/BinMax checks bound the rest.
func clampPreSize(n int) int {
	const cap = 4096
	if n > cap {
		return cap
	}
	if n < 0 {
		return 0
	}
	return n
}
