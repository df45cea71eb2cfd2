package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies every error a call can end with
type Kind int

const (
	KindInternal Kind = iota
	KindProtocol
	KindValidation
	KindTargetNotFound
	KindDomainNotEnabled
	KindBridgeDisposed
	KindInterception
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindValidation:
		return "ValidationError"
	case KindTargetNotFound:
		return "TargetNotFoundError"
	case KindDomainNotEnabled:
		return "DomainNotEnabledError"
	case KindBridgeDisposed:
		return "BridgeDisposedError"
	case KindInterception:
		return "InterceptionError"
	default:
		return "InternalError"
	}
}

// Error is a classified call failure. Data carries a stack or other
// context string for the error reply.
type Error struct {
	Kind    Kind
	Message string
	Data    string
	cause   error
}

// Errorf builds a classified error
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it reachable through errors.Is
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithData attaches context for the reply's data field
func (e *Error) WithData(data string) *Error {
	e.Data = data
	return e
}

// KindOf extracts the kind of a classified error, or KindInternal
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindInternal
}
