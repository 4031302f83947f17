package gateway

import (
	"errors"
	"fmt"
)

// TransportError means the gateway could not be reached or answered with
// something that is not a usable payload.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError means the gateway was reached and answered with a non-success status.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: gateway rejected request with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: gateway rejected request with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejected reports whether err is, or wraps, a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// errMissingField is wrapped in a TransportError when a payload omits a required key.
var errMissingField = errors.New("payload is missing a required field")

// errNegativeCounter is wrapped in a TransportError when a metrics payload
// carries a counter below zero.
var errNegativeCounter = errors.New("metrics counter is negative")
