package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownVariant means the envelope held no variant this schema revision knows.
	ErrUnknownVariant = errors.New("unknown message variant")
	// ErrEmptyMessage means the buffer was empty.
	ErrEmptyMessage = errors.New("empty message")
	// ErrTruncated means the buffer ended in the middle of a field.
	ErrTruncated = errors.New("truncated message")
	// ErrMalformed means the buffer is not valid wire data for the schema.
	ErrMalformed = errors.New("malformed message")
	// ErrNilMessage is returned when encoding a nil message.
	ErrNilMessage = errors.New("nil message")
)

// DecodeError describes a failure to decode a message.
type DecodeError struct {
	// Kind is the variant being decoded, or zero if the envelope itself was bad.
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Kind == 0 {
		return fmt.Sprintf("protocol: decode: %v", e.Err)
	}
	return fmt.Sprintf("protocol: decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError describes a failure to encode a message.
type EncodeError struct {
	Kind Kind
	Err  error
}

func (e *EncodeError) Error() string {
	if e.Kind == 0 {
		return fmt.Sprintf("protocol: encode: %v", e.Err)
	}
	return fmt.Sprintf("protocol: encode %s: %v", e.Kind, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
