// Package value implements the dynamically-typed value tree that the
// MessagePack codec encodes and decodes: a tagged union of nil, bool,
// signed/unsigned integers, single/double precision floats, UTF-8 strings,
// raw binary blobs, ordered arrays, order-preserving maps, and extension
// payloads.
package value

import "fmt"

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUInt
	KindFloat32
	KindFloat64
	KindStr
	KindBin
	KindArray
	KindMap
	KindExt
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUInt:
		return "uint"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindStr:
		return "str"
	case KindBin:
		return "bin"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindExt:
		return "ext"
	default:
		return "unknown"
	}
}

// Ext is an application-defined extension payload: an i8 type id (-1 is the
// reserved Timestamp type) plus its raw bytes.
type Ext struct {
	TypeID int8
	Data   []byte
}

// KV is one key/value pair of a Map, kept in insertion order.
type KV struct {
	Key Value
	Val Value
}

// BulkKind marks an Array value as a caller-provided typed numeric bulk
// array, an encoding-time optimization that writes an array header
// followed by element-wise primitive writes, skipping the per-element
// generic type dispatch. The wire format is identical to an ordinary array
// of the same numeric Values.
type BulkKind int

const (
	BulkNone BulkKind = iota
	BulkInts
	BulkFloat32s
	BulkFloat64s
)

// Value is a tagged union over the MessagePack value space. The zero Value
// is Nil.
type Value struct {
	kind Kind

	b     bool
	i     int64
	u     uint64
	f32   float32
	f64   float64
	str   string
	bin   []byte
	arr   []Value
	bulk  BulkKind
	m     []KV
	ext   Ext
}

// Bulk reports the typed-bulk-array hint attached to an Array value, or
// BulkNone if it was built with the plain Array constructor.
func (v Value) Bulk() BulkKind { return v.bulk }

// BulkIntArray builds an Array value hinting that every element is an Int,
// written via the packed-int fast path at encode time.
func BulkIntArray(nums []int64) Value {
	arr := make([]Value, len(nums))
	for i, n := range nums {
		arr[i] = Int(n)
	}
	return Value{kind: KindArray, arr: arr, bulk: BulkInts}
}

// BulkFloat32Array builds an Array value hinting that every element is a
// single-precision Float32.
func BulkFloat32Array(nums []float32) Value {
	arr := make([]Value, len(nums))
	for i, n := range nums {
		arr[i] = Float32(n)
	}
	return Value{kind: KindArray, arr: arr, bulk: BulkFloat32s}
}

// BulkFloat64Array builds an Array value hinting that every element is a
// double-precision Float64.
func BulkFloat64Array(nums []float64) Value {
	arr := make([]Value, len(nums))
	for i, n := range nums {
		arr[i] = Float64(n)
	}
	return Value{kind: KindArray, arr: arr, bulk: BulkFloat64s}
}

// Nil returns the Nil value.
func Nil() Value { return Value{kind: KindNil} }

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int constructs a signed-integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// UInt constructs an unsigned-integer value.
func UInt(u uint64) Value { return Value{kind: KindUInt, u: u} }

// Float32 constructs a single-precision float value.
func Float32(f float32) Value { return Value{kind: KindFloat32, f32: f} }

// Float64 constructs a double-precision float value.
func Float64(f float64) Value { return Value{kind: KindFloat64, f64: f} }

// Str constructs a string value. The caller is responsible for ensuring the
// string is valid UTF-8 before encoding; the codec rejects malformed
// content on encode and lossy-replaces it on decode.
func Str(s string) Value { return Value{kind: KindStr, str: s} }

// Bin constructs a binary-blob value. The slice is not copied.
func Bin(b []byte) Value { return Value{kind: KindBin, bin: b} }

// Array constructs an ordered-array value. The slice is not copied.
func Array(elems []Value) Value { return Value{kind: KindArray, arr: elems} }

// NewMap constructs an empty ordered map.
func NewMap() Value { return Value{kind: KindMap} }

// MapOf constructs an ordered map from the given pairs, applying the
// duplicate-key-overwrites-in-place rule during construction.
func MapOf(pairs ...KV) Value {
	v := NewMap()
	for _, p := range pairs {
		v.Set(p.Key, p.Val)
	}
	return v
}

// ExtValue constructs an extension value.
func ExtValue(typeID int8, data []byte) Value {
	return Value{kind: KindExt, ext: Ext{TypeID: typeID, Data: data}}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v holds Nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsBool returns the bool payload; ok is false if v is not a Bool.
func (v Value) AsBool() (b bool, ok bool) { return v.b, v.kind == KindBool }

// AsInt returns the signed-integer payload; ok is false if v is not an Int.
func (v Value) AsInt() (i int64, ok bool) { return v.i, v.kind == KindInt }

// AsUInt returns the unsigned-integer payload; ok is false if v is not a UInt.
func (v Value) AsUInt() (u uint64, ok bool) { return v.u, v.kind == KindUInt }

// AsFloat32 returns the single-precision payload; ok is false otherwise.
func (v Value) AsFloat32() (f float32, ok bool) { return v.f32, v.kind == KindFloat32 }

// AsFloat64 returns the double-precision payload; ok is false otherwise.
func (v Value) AsFloat64() (f float64, ok bool) { return v.f64, v.kind == KindFloat64 }

// AsStr returns the string payload; ok is false if v is not a Str.
func (v Value) AsStr() (s string, ok bool) { return v.str, v.kind == KindStr }

// AsBin returns the binary payload; ok is false if v is not a Bin.
func (v Value) AsBin() (b []byte, ok bool) { return v.bin, v.kind == KindBin }

// AsArray returns the element slice; ok is false if v is not an Array.
func (v Value) AsArray() (elems []Value, ok bool) { return v.arr, v.kind == KindArray }

// AsExt returns the extension payload; ok is false if v is not an Ext.
func (v Value) AsExt() (e Ext, ok bool) { return v.ext, v.kind == KindExt }

// Len reports the number of pairs in a Map value, or -1 if v is not a Map.
func (v Value) Len() int {
	if v.kind != KindMap {
		return -1
	}
	return len(v.m)
}

// Pairs returns the map's key/value pairs in insertion order. The returned
// slice must not be mutated.
func (v Value) Pairs() []KV {
	if v.kind != KindMap {
		return nil
	}
	return v.m
}

// Get looks up key by structural equality, returning the associated value
// and whether it was found. O(n) in the number of pairs — maps here are
// small RPC-parameter dictionaries, not general-purpose hash tables.
func (v *Value) Get(key Value) (Value, bool) {
	for _, kv := range v.m {
		if Equal(kv.Key, key) {
			return kv.Val, true
		}
	}
	return Value{}, false
}

// Set inserts or overwrites key's value, preserving the position of the
// first insertion (duplicate keys overwrite in place rather than being
// appended again).
func (v *Value) Set(key, val Value) {
	for i := range v.m {
		if Equal(v.m[i].Key, key) {
			v.m[i].Val = val
			return
		}
	}
	v.m = append(v.m, KV{Key: key, Val: val})
}

// Equal reports structural equality between two Values, used both for map
// key lookups and for round-trip test assertions. Map equality is defined
// up to pair-order permutation.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// Int/UInt are numerically comparable across the wire-form split.
		if (a.kind == KindInt || a.kind == KindUInt) && (b.kind == KindInt || b.kind == KindUInt) {
			return numericEqual(a, b)
		}
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindUInt:
		return a.u == b.u
	case KindFloat32:
		return a.f32 == b.f32
	case KindFloat64:
		return a.f64 == b.f64
	case KindStr:
		return a.str == b.str
	case KindBin:
		return bytesEqual(a.bin, b.bin)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for _, kv := range a.m {
			bv, ok := b.Get(kv.Key)
			if !ok || !Equal(kv.Val, bv) {
				return false
			}
		}
		return true
	case KindExt:
		return a.ext.TypeID == b.ext.TypeID && bytesEqual(a.ext.Data, b.ext.Data)
	default:
		return false
	}
}

func numericEqual(a, b Value) bool {
	av := numericValue(a)
	bv := numericValue(b)
	return av == bv
}

func numericValue(v Value) uint64 {
	if v.kind == KindInt {
		return uint64(v.i)
	}
	return v.u
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders a compact debug form, useful in test failure messages.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindUInt:
		return fmt.Sprintf("%d", v.u)
	case KindFloat32:
		return fmt.Sprintf("%g", v.f32)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f64)
	case KindStr:
		return fmt.Sprintf("%q", v.str)
	case KindBin:
		return fmt.Sprintf("bin(%d)", len(v.bin))
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	case KindExt:
		return fmt.Sprintf("ext(%d,%d)", v.ext.TypeID, len(v.ext.Data))
	default:
		return "?"
	}
}
