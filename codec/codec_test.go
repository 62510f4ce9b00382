package codec

import (
	"bytes"
	"testing"

	"github.com/matrixant/message-pack/value"
)

func TestConcreteMapEncoding(t *testing.T) {
	m := value.MapOf(
		value.KV{Key: value.Str("hello"), Val: value.Str("world")},
		value.KV{Key: value.Str("n"), Val: value.Int(42)},
	)

	got, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{
		0x82, 0xa5, 0x68, 0x65, 0x6c, 0x6c, 0x6f, 0xa5, 0x77, 0x6f, 0x72, 0x6c, 0x64, 0xa1, 0x6e, 0x2a,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestConcreteArrayNarrowestForm(t *testing.T) {
	arr := value.Array([]value.Value{value.Int(127), value.Int(128), value.Int(256), value.Int(65536)})
	got, err := Encode(arr)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{0x94, 0x7f, 0xcc, 0x80, 0xcd, 0x01, 0x00, 0xce, 0x00, 0x01, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestDecodeNil(t *testing.T) {
	v, err := Decode([]byte{0xc0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsNil() {
		t.Fatalf("expected Nil, got %v", v)
	}
}

func TestDecodeInvalidTag(t *testing.T) {
	_, err := Decode([]byte{0xc1})
	if err == nil {
		t.Fatal("expected error decoding 0xc1")
	}
	cerr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if cerr.Kind != Invalid {
		t.Errorf("expected Invalid, got %v", cerr.Kind)
	}
	if cerr.Offset != 1 {
		t.Errorf("expected offset 1, got %d", cerr.Offset)
	}
}

func TestRoundTripBasicValues(t *testing.T) {
	cases := []value.Value{
		value.Nil(),
		value.Bool(true),
		value.Bool(false),
		value.Int(0),
		value.Int(-1),
		value.Int(-33),
		value.Int(127),
		value.Int(-128),
		value.Int(1 << 40),
		value.UInt(255),
		value.UInt(1 << 40),
		value.Str("hello, 世界"),
		value.Bin([]byte{1, 2, 3, 4}),
		value.Array([]value.Value{value.Int(1), value.Str("x"), value.Bool(true)}),
		value.MapOf(value.KV{Key: value.Int(1), Val: value.Str("one")}),
	}

	for _, v := range cases {
		enc, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", v, err)
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode after Encode(%v) failed: %v", v, err)
		}
		if !value.Equal(v, dec) {
			t.Errorf("round trip mismatch: original %v, decoded %v", v, dec)
		}
	}
}

func TestDeterminism(t *testing.T) {
	v := value.MapOf(
		value.KV{Key: value.Str("a"), Val: value.Int(1)},
		value.KV{Key: value.Str("b"), Val: value.Array([]value.Value{value.Int(1), value.Int(2), value.Int(3)})},
	)
	a, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encode is not deterministic: % x vs % x", a, b)
	}
}

func TestNarrowestFormBoundaries(t *testing.T) {
	cases := []struct {
		n        int64
		wantTag  byte
		wantSize int
	}{
		{0, 0x00, 1},
		{127, 0x7f, 1},
		{-1, 0xff, 1},
		{-32, 0xe0, 1},
		{-33, tagInt8, 2},
		{128, tagUint8, 2},
		{256, tagUint16, 3},
		{65536, tagUint32, 5},
	}
	for _, tc := range cases {
		var v value.Value
		if tc.n >= 0 {
			v = value.Int(tc.n)
		} else {
			v = value.Int(tc.n)
		}
		enc, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%d): %v", tc.n, err)
		}
		if enc[0] != tc.wantTag {
			t.Errorf("Encode(%d): first byte = %#x, want %#x", tc.n, enc[0], tc.wantTag)
		}
		if len(enc) != tc.wantSize {
			t.Errorf("Encode(%d): len = %d, want %d", tc.n, len(enc), tc.wantSize)
		}
	}
}

func TestFloatRule(t *testing.T) {
	f32Representable := 1.5
	enc, err := Encode(value.Float64(f32Representable))
	if err != nil {
		t.Fatal(err)
	}
	if len(enc) != 5 {
		t.Errorf("expected 5-byte single precision encoding, got %d bytes", len(enc))
	}

	notRepresentable := 0.1
	enc2, err := Encode(value.Float64(notRepresentable))
	if err != nil {
		t.Fatal(err)
	}
	if len(enc2) != 9 {
		t.Errorf("expected 9-byte double precision encoding, got %d bytes", len(enc2))
	}
}

func TestDepthBoundEncode(t *testing.T) {
	v := deeplyNested(33)
	_, err := Encode(v)
	if err == nil {
		t.Fatal("expected TooBig error for 33-level nesting")
	}
	cerr := err.(*Error)
	if cerr.Kind != TooBig {
		t.Errorf("expected TooBig, got %v", cerr.Kind)
	}
}

func TestDepthBoundDecode(t *testing.T) {
	// Hand-build 33 nested fixarrays of length 1, terminated by a fixint.
	buf := make([]byte, 0, 40)
	for i := 0; i < 33; i++ {
		buf = append(buf, 0x91) // fixarray, len 1
	}
	buf = append(buf, 0x00) // innermost value
	_, err := Decode(buf)
	if err == nil {
		t.Fatal("expected TooBig error for 33-level nesting")
	}
	cerr := err.(*Error)
	if cerr.Kind != TooBig {
		t.Errorf("expected TooBig, got %v", cerr.Kind)
	}
}

func deeplyNested(depth int) value.Value {
	v := value.Int(0)
	for i := 0; i < depth; i++ {
		v = value.Array([]value.Value{v})
	}
	return v
}

func TestStrMaxTooBig(t *testing.T) {
	huge := make([]byte, StrMax+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := Encode(value.Str(string(huge)))
	if err == nil {
		t.Fatal("expected TooBig for oversized string")
	}
}

func TestLossyUTF8OnDecode(t *testing.T) {
	// fixstr of length 3 with an invalid UTF-8 byte in the middle.
	buf := []byte{0xa3, 'a', 0xff, 'b'}
	v, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode should not abort on malformed utf8: %v", err)
	}
	s, ok := v.AsStr()
	if !ok {
		t.Fatal("expected Str")
	}
	if s == "" {
		t.Fatal("expected non-empty lossy-replaced string")
	}
}

func TestExtTimestampFourByte(t *testing.T) {
	// fixext4, type -1, seconds = 1
	buf := []byte{tagFixExt4, 0xff, 0x00, 0x00, 0x00, 0x01}
	v, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	sec, ok := v.Get(value.Str("seconds"))
	if !ok {
		t.Fatal("expected seconds key")
	}
	if i, _ := sec.AsInt(); i != 1 {
		t.Errorf("expected seconds=1, got %d", i)
	}
}

func TestExtUnregisteredIsUnsupported(t *testing.T) {
	buf := []byte{tagFixExt1, 5, 0x00}
	_, err := Decode(buf)
	if err == nil {
		t.Fatal("expected Unsupported for unregistered ext type")
	}
	cerr := err.(*Error)
	if cerr.Kind != Unsupported {
		t.Errorf("expected Unsupported, got %v", cerr.Kind)
	}
}

func TestExtRegisteredDecoder(t *testing.T) {
	reg := NewExtRegistry()
	reg.Register(5, func(typeID int8, data []byte) (value.Value, error) {
		return value.Bin(data), nil
	})
	buf := []byte{tagFixExt1, 5, 0x2a}
	v, err := DecodeWithExts(buf, reg)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	b, ok := v.AsBin()
	if !ok || len(b) != 1 || b[0] != 0x2a {
		t.Errorf("unexpected decoded ext value: %v", v)
	}
}

func TestMakeRequestRoundTripsToArray(t *testing.T) {
	// The full request-message factory lives in the message package; this
	// only exercises the underlying array-shape decode.
	req := value.Array([]value.Value{
		value.Int(0),
		value.UInt(7),
		value.Str("ping"),
		value.Array(nil),
	})
	enc, err := Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	elems, ok := dec.AsArray()
	if !ok || len(elems) != 4 {
		t.Fatalf("expected 4-element array, got %v", dec)
	}
}

func TestStreamParserRestartsAcrossSplitBuffers(t *testing.T) {
	msg := value.Array([]value.Value{
		value.Str("first"),
		value.MapOf(value.KV{Key: value.Str("k"), Val: value.Int(42)}),
		value.Array([]value.Value{value.Int(1), value.Int(2), value.Int(3)}),
	})
	enc, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}

	split := len(enc) / 2
	p := NewStreamParser()

	p.Feed(enc[:split])
	if res := p.TryParse(); res.Status != StatusWouldBlock {
		t.Fatalf("expected WouldBlock on partial buffer, got %v (err=%v)", res.Status, res.Err)
	}
	if p.State() != Reading {
		t.Fatalf("expected Reading state after partial feed, got %s", p.State())
	}

	p.Feed(enc[split:])
	res := p.TryParse()
	if res.Status != StatusReady {
		t.Fatalf("expected Ready once the buffer completes, got %v (err=%v)", res.Status, res.Err)
	}
	if !value.Equal(res.Value, msg) {
		t.Fatalf("decoded value mismatch: got %v, want %v", res.Value, msg)
	}
	if p.State() != Idle {
		t.Fatalf("expected Idle once fully drained, got %s", p.State())
	}
}

func TestStreamParserResumesAfterMultipleMessagesTagBoundary(t *testing.T) {
	first, err := Encode(value.Int(7))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Encode(value.Str("second"))
	if err != nil {
		t.Fatal(err)
	}
	both := append(append([]byte{}, first...), second...)

	// Split exactly at the tag byte boundary between the two messages so
	// the second message's leading tag byte itself arrives in isolation.
	p := NewStreamParser()
	p.Feed(both[:len(first)])
	res := p.TryParse()
	if res.Status != StatusReady {
		t.Fatalf("expected first message ready, got %v", res.Status)
	}
	if i, ok := res.Value.AsInt(); !ok || i != 7 {
		t.Fatalf("expected first value 7, got %v", res.Value)
	}

	if res := p.TryParse(); res.Status != StatusWouldBlock {
		t.Fatalf("expected WouldBlock before second message arrives, got %v", res.Status)
	}

	p.Feed(both[len(first):])
	res = p.TryParse()
	if res.Status != StatusReady {
		t.Fatalf("expected second message ready, got %v", res.Status)
	}
	if s, ok := res.Value.AsStr(); !ok || s != "second" {
		t.Fatalf("expected second value 'second', got %v", res.Value)
	}
}

func TestBulkIntArrayEncodesSameAsPlain(t *testing.T) {
	plain := value.Array([]value.Value{value.Int(1), value.Int(2), value.Int(3)})
	bulk := value.BulkIntArray([]int64{1, 2, 3})

	plainEnc, err := Encode(plain)
	if err != nil {
		t.Fatal(err)
	}
	bulkEnc, err := Encode(bulk)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plainEnc, bulkEnc) {
		t.Errorf("bulk hint changed wire format: % x vs % x", bulkEnc, plainEnc)
	}
}
