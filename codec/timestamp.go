package codec

import (
	"encoding/binary"
	"math"

	"github.com/matrixant/message-pack/value"
)

func float32FromBits(b uint32) float32 { return math.Float32frombits(b) }
func float64FromBits(b uint64) float64 { return math.Float64frombits(b) }

// decodeTimestamp decodes the standard Timestamp extension (type id -1)
// into a Map{"seconds": Int, "nanoseconds": UInt}, per
// https://github.com/msgpack/msgpack/blob/master/spec.md#timestamp-extension-type
func decodeTimestamp(data []byte) (value.Value, error) {
	var seconds int64
	var nanoseconds uint32

	switch len(data) {
	case 4:
		seconds = int64(binary.BigEndian.Uint32(data))
	case 8:
		v := binary.BigEndian.Uint64(data)
		nanoseconds = uint32(v >> 34)
		seconds = int64(v & 0x3ffffffff)
	case 12:
		nanoseconds = binary.BigEndian.Uint32(data[0:4])
		seconds = int64(binary.BigEndian.Uint64(data[4:12]))
	default:
		return value.Value{}, newErr(Invalid, "invalid timestamp extension payload length")
	}

	return value.MapOf(
		value.KV{Key: value.Str("seconds"), Val: value.Int(seconds)},
		value.KV{Key: value.Str("nanoseconds"), Val: value.UInt(uint64(nanoseconds))},
	), nil
}
