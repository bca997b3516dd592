package thaiid

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoReaders is returned by Open when PC/SC lists no reader.
	ErrNoReaders = errors.New("no smart card reader found")
	// ErrProtocolMismatch is returned when the card negotiated neither T=0 nor T=1.
	ErrProtocolMismatch = errors.New("unsupported card protocol")
	// ErrInvalidATR is returned when the card answers with fewer than two ATR bytes.
	ErrInvalidATR = errors.New("invalid ATR")
	// ErrCardNotSupported is returned when the card refuses the Ministry of Interior applet.
	ErrCardNotSupported = errors.New("card not supported")
	// ErrSessionClosed is returned by any operation on a closed Session.
	ErrSessionClosed = errors.New("session closed")
)

// DecodeError reports a field whose decoded text does not have the expected shape.
type DecodeError struct {
	Field string
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
