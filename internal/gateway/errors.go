package gateway

import (
	"errors"
	"fmt"
)

// NetworkError reports a transport-level failure: DNS, connect, TLS or
// timeout problems where no application response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError reports a reachable backend that answered with a non-2xx
// status or an unusable payload. Message carries the server-provided text
// when present, otherwise a generic description.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %s (status %d): %v", e.Op, e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway: %s: %s (status %d)", e.Op, e.Message, e.StatusCode)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is a transport-level gateway failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// AsServer extracts a ServerError from err when present.
func AsServer(err error) (*ServerError, bool) {
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return srvErr, true
	}
	return nil, false
}
