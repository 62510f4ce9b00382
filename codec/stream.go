package codec

import (
	"errors"

	"github.com/matrixant/message-pack/value"
)

// ParserState is the stream parser's lifecycle.
type ParserState int

const (
	Idle ParserState = iota
	Reading
	Failed
)

func (s ParserState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the outcome of one TryParse call.
type Status int

const (
	StatusWouldBlock Status = iota
	StatusReady
	StatusErr
)

// Result is what TryParse returns: exactly one of a completed Value, a
// would-block signal, or a terminal error.
type Result struct {
	Status Status
	Value  value.Value
	Err    error
}

// StreamParser incrementally accepts byte chunks and emits one complete
// top-level Value per call to TryParse. It reuses the exact tag/limit/depth
// rules of the buffer codec (decode.go) by simply re-attempting a full
// decode of its accumulated buffer on every call — since decoding is a pure
// function of the bytes seen so far, this is trivially re-entrant and
// side-effect free on WouldBlock, and it tolerates a tag or payload
// boundary falling anywhere in the byte stream without any special-cased
// buffering logic. The caller pushes bytes via Feed and polls via TryParse,
// which is the natural shape for a transport pump that already owns an
// inbound byte ring.
type StreamParser struct {
	buf      []byte
	state    ParserState
	failErr  error
	registry *ExtRegistry
}

// NewStreamParser returns a parser in the Idle state.
func NewStreamParser() *StreamParser {
	return &StreamParser{state: Idle}
}

// RegisterExt installs a decoder for an application-defined extension type,
// consulted the same way as DecodeWithExts.
func (p *StreamParser) RegisterExt(typeID int8, decoder ExtDecoderFunc) {
	if p.registry == nil {
		p.registry = NewExtRegistry()
	}
	p.registry.Register(typeID, decoder)
}

// Feed appends newly received bytes to the parser's pending buffer. It is a
// no-op once the parser has entered Failed; call Reset first.
func (p *StreamParser) Feed(chunk []byte) {
	if p.state == Failed || len(chunk) == 0 {
		return
	}
	p.buf = append(p.buf, chunk...)
}

// State reports the parser's current lifecycle state.
func (p *StreamParser) State() ParserState { return p.state }

// Reset clears a Failed parser back to Idle, discarding any buffered bytes.
// There is no way to resynchronize mid-stream after a malformed message:
// MessagePack has no frame delimiters to scan forward to.
func (p *StreamParser) Reset() {
	p.buf = nil
	p.state = Idle
	p.failErr = nil
}

// TryParse attempts to parse one top-level value from the bytes fed so
// far. It never blocks and never mutates state on a WouldBlock outcome —
// repeated calls with no new bytes are side-effect free.
func (p *StreamParser) TryParse() Result {
	if p.state == Failed {
		return Result{Status: StatusErr, Err: p.failErr}
	}

	r := &reader{buf: p.buf, registry: p.registry}
	v, err := r.decodeValue(0)

	if err == nil {
		p.buf = p.buf[r.pos:]
		if len(p.buf) == 0 {
			p.state = Idle
		} else {
			p.state = Reading
		}
		return Result{Status: StatusReady, Value: v}
	}

	if errors.Is(err, errNeedMore) {
		if len(p.buf) > 0 {
			p.state = Reading
		}
		return Result{Status: StatusWouldBlock}
	}

	// A genuine malformed-tag or too-big error is terminal until Reset;
	// callers driving a connection off this parser should close it rather
	// than attempt to resynchronize.
	p.state = Failed
	if cerr, ok := err.(*Error); ok {
		p.failErr = cerr
	} else {
		p.failErr = newErr(Invalid, err.Error())
	}
	return Result{Status: StatusErr, Err: p.failErr}
}
