package feed

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("stream closed")
	ErrUnexpectedEvent = errors.New("unexpected event type")
	ErrMissingField    = errors.New("missing field")
)

// Kind classifies a feed failure; each kind has its own retry policy.
type Kind int

const (
	KindOther Kind = iota
	KindTransport
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	}
	return "other"
}

// Error is the typed failure reported by a Connection.
type Error struct {
	Kind   Kind
	Symbol string
	Op     string // "dial", "read", "decode"
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Symbol, e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindOther when it is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}
