package codec

// Resource bounds enforced by both the buffer codec and the stream codec.
// Exceeding any of these aborts the current encode/decode with a TooBig
// error rather than allocating unbounded memory for an adversarial input.
const (
	StrMax   = 1 << 20 // 1 MiB
	BinMax   = 1 << 20 // 1 MiB
	DepthMax = 32
)

// MaxHeaderSize is the largest possible tag-plus-fixed-header span (a str32/
// bin32/array32/map32/ext32 tag is 1 + 4 bytes for the length, plus up to 4
// more for an ext type id and length combination) the stream parser must be
// able to buffer before committing to a branch.
const MaxHeaderSize = 9
