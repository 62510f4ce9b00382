package session

import "errors"

// Errors returned by the caller-facing API. These name outcomes a caller
// is expected to branch on, distinct from the codec's ErrorKind taxonomy
// which describes wire-level failures.
var (
	ErrCantConnect      = errors.New("session: cannot connect")
	ErrDisconnected     = errors.New("session: not connected")
	ErrQueueFull        = errors.New("session: outbound queue full")
	ErrBusy             = errors.New("session: sync call already in flight")
	ErrTimeout          = errors.New("session: sync call timed out")
	ErrAlreadyExists    = errors.New("session: handler already registered")
	ErrNotFound         = errors.New("session: no handler registered")
	ErrInvalidParameter = errors.New("session: invalid parameter")
)
