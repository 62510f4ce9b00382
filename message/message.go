// Package message defines the MessagePack-RPC message envelope — the
// Request/Response/Notification tagged union — and the factory functions
// that build and serialize each shape.
package message

import (
	"fmt"

	"github.com/matrixant/message-pack/codec"
	"github.com/matrixant/message-pack/value"
)

// Type is the leading integer tag distinguishing the three message shapes
// on the wire, per https://github.com/msgpack-rpc/msgpack-rpc/blob/master/spec.md
type Type int

const (
	TypeRequest      Type = 0
	TypeResponse     Type = 1
	TypeNotification Type = 2
)

// Message is the tagged union of the three MessagePack-RPC message shapes.
// Exactly one of {Request, Response, Notification} fields is meaningful,
// selected by Type.
type Message struct {
	Type Type

	// Request / Response
	MsgID uint32

	// Request / Notification
	Method string
	Params []value.Value

	// Response only — exactly one of Error/Result is non-nil.
	Error  value.Value
	Result value.Value
}

// MakeRequest builds and encodes a Request message: [0, msgid, method, params].
func MakeRequest(msgid uint32, method string, params []value.Value) ([]byte, error) {
	if params == nil {
		params = []value.Value{}
	}
	arr := value.Array([]value.Value{
		value.Int(int64(TypeRequest)),
		value.UInt(uint64(msgid)),
		value.Str(method),
		value.Array(params),
	})
	return codec.Encode(arr)
}

// MakeResponse builds and encodes a Response message: [1, msgid, error, result].
// error and result are mutually exclusive; whichever is not supplied should
// be passed as value.Nil().
func MakeResponse(msgid uint32, result, errVal value.Value) ([]byte, error) {
	arr := value.Array([]value.Value{
		value.Int(int64(TypeResponse)),
		value.UInt(uint64(msgid)),
		errVal,
		result,
	})
	return codec.Encode(arr)
}

// MakeNotification builds and encodes a Notification message: [2, method, params].
func MakeNotification(method string, params []value.Value) ([]byte, error) {
	if params == nil {
		params = []value.Value{}
	}
	arr := value.Array([]value.Value{
		value.Int(int64(TypeNotification)),
		value.Str(method),
		value.Array(params),
	})
	return codec.Encode(arr)
}

// ErrShape is returned by Parse when a decoded Value doesn't have the
// array shape required of an RPC message.
type ErrShape struct {
	Reason string
}

func (e *ErrShape) Error() string { return fmt.Sprintf("message: %s", e.Reason) }

// Parse classifies a Value already decoded from the wire into a Message,
// checking its type tag and array length/shape. A non-nil error here
// always means malformed framing (report as a protocol error at the call
// site), never an I/O or codec failure.
func Parse(v value.Value) (Message, error) {
	elems, ok := v.AsArray()
	if !ok {
		return Message{}, &ErrShape{Reason: "top-level value is not an array"}
	}
	if len(elems) == 0 {
		return Message{}, &ErrShape{Reason: "empty message array"}
	}

	tag, ok := asUint(elems[0])
	if !ok {
		return Message{}, &ErrShape{Reason: "type tag is not an integer"}
	}

	switch Type(tag) {
	case TypeRequest:
		if len(elems) != 4 {
			return Message{}, &ErrShape{Reason: "request array must have length 4"}
		}
		msgid, ok := asUint(elems[1])
		if !ok {
			return Message{}, &ErrShape{Reason: "request msgid is not an integer"}
		}
		method, ok := elems[2].AsStr()
		if !ok {
			return Message{}, &ErrShape{Reason: "request method is not a string"}
		}
		params, ok := elems[3].AsArray()
		if !ok {
			return Message{}, &ErrShape{Reason: "request params is not an array"}
		}
		return Message{Type: TypeRequest, MsgID: uint32(msgid), Method: method, Params: params}, nil

	case TypeResponse:
		if len(elems) != 4 {
			return Message{}, &ErrShape{Reason: "response array must have length 4"}
		}
		msgid, ok := asUint(elems[1])
		if !ok {
			return Message{}, &ErrShape{Reason: "response msgid is not an integer"}
		}
		return Message{Type: TypeResponse, MsgID: uint32(msgid), Error: elems[2], Result: elems[3]}, nil

	case TypeNotification:
		if len(elems) != 3 {
			return Message{}, &ErrShape{Reason: "notification array must have length 3"}
		}
		method, ok := elems[1].AsStr()
		if !ok {
			return Message{}, &ErrShape{Reason: "notification method is not a string"}
		}
		params, ok := elems[2].AsArray()
		if !ok {
			return Message{}, &ErrShape{Reason: "notification params is not an array"}
		}
		return Message{Type: TypeNotification, Method: method, Params: params}, nil

	default:
		return Message{}, &ErrShape{Reason: fmt.Sprintf("unknown message type tag %d", tag)}
	}
}

func asUint(v value.Value) (uint64, bool) {
	if i, ok := v.AsInt(); ok {
		if i < 0 {
			return 0, false
		}
		return uint64(i), true
	}
	if u, ok := v.AsUInt(); ok {
		return u, true
	}
	return 0, false
}
