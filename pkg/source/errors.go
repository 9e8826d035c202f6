package source

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a read failed.
type ErrorKind string

const (
	// KindTransport is a network or connection failure, including timeouts.
	KindTransport ErrorKind = "transport"

	// KindStatus is a non-success status reported by the item source.
	KindStatus ErrorKind = "status"

	// KindDecode is a payload that is not in the expected shape.
	KindDecode ErrorKind = "decode"
)

// ReadError describes a failed read from an item source.
type ReadError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	var msg string
	switch e.Kind {
	case KindStatus:
		msg = fmt.Sprintf("item source returned status %d", e.StatusCode)
		if e.Message != "" {
			msg += ": " + e.Message
		}
	default:
		msg = fmt.Sprintf("%s error", e.Kind)
		if e.Message != "" {
			msg += ": " + e.Message
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ReadError) Unwrap() error {
	return e.Err
}

// TransportError wraps a connection level failure.
func TransportError(err error) *ReadError {
	return &ReadError{Kind: KindTransport, Message: "read failed", Err: err}
}

// StatusError reports a non-success response code.
func StatusError(code int, message string) *ReadError {
	return &ReadError{Kind: KindStatus, StatusCode: code, Message: message}
}

// DecodeError wraps a payload decoding failure.
func DecodeError(message string, err error) *ReadError {
	return &ReadError{Kind: KindDecode, Message: message, Err: err}
}

// KindOf returns the kind of the first ReadError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsStatus reports whether err is a non-success status from the source.
func IsStatus(err error) bool { return KindOf(err) == KindStatus }

// IsDecode reports whether err is a malformed payload.
func IsDecode(err error) bool { return KindOf(err) == KindDecode }
