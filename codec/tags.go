package codec

// MessagePack tag bytes, per https://github.com/msgpack/msgpack/blob/master/spec.md
const (
	tagPosFixIntMax = 0x7f
	tagFixMap       = 0x80
	tagFixMapMax    = 0x8f
	tagFixArray     = 0x90
	tagFixArrayMax  = 0x9f
	tagFixStr       = 0xa0
	tagFixStrMax    = 0xbf

	tagNil     = 0xc0
	tagUnused  = 0xc1
	tagFalse   = 0xc2
	tagTrue    = 0xc3
	tagBin8    = 0xc4
	tagBin16   = 0xc5
	tagBin32   = 0xc6
	tagExt8    = 0xc7
	tagExt16   = 0xc8
	tagExt32   = 0xc9
	tagFloat32 = 0xca
	tagFloat64 = 0xcb
	tagUint8   = 0xcc
	tagUint16  = 0xcd
	tagUint32  = 0xce
	tagUint64  = 0xcf
	tagInt8    = 0xd0
	tagInt16   = 0xd1
	tagInt32   = 0xd2
	tagInt64   = 0xd3

	tagFixExt1  = 0xd4
	tagFixExt2  = 0xd5
	tagFixExt4  = 0xd6
	tagFixExt8  = 0xd7
	tagFixExt16 = 0xd8

	tagStr8  = 0xd9
	tagStr16 = 0xda
	tagStr32 = 0xdb

	tagArray16 = 0xdc
	tagArray32 = 0xdd

	tagMap16 = 0xde
	tagMap32 = 0xdf

	tagNegFixIntMin = 0xe0

	// ExtTimestamp is the reserved standard extension type id for Timestamp.
	ExtTimestamp int8 = -1
)
