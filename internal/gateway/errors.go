package gateway

import (
	"errors"
	"fmt"
)

// TransportError means the endpoint was never reached: the request could not
// be built or sent, or the connection failed before a response arrived.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError means the endpoint answered with a non-success status
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with status %d", e.Endpoint, e.StatusCode)
}

// ShapeError means a success response did not have the expected structure
type ShapeError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *ShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected response shape from %s: %s: %v", e.Endpoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("unexpected response shape from %s: %s", e.Endpoint, e.Reason)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// Failure kinds reported by Classify
const (
	KindTransport = "transport"
	KindStatus    = "status"
	KindShape     = "shape"
	KindUnknown   = "unknown"
)

// Classify names the failure kind of err for logging and metrics
func Classify(err error) string {
	var transportErr *TransportError
	var statusErr *StatusError
	var shapeErr *ShapeError

	switch {
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &statusErr):
		return KindStatus
	case errors.As(err, &shapeErr):
		return KindShape
	default:
		return KindUnknown
	}
}

// IsTransport reports whether err is a transport failure
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
