package stream

import "errors"

// TransportError marks failures of the streaming connection itself:
// dialing, a non-success HTTP status, or a broken body read. The
// supervisor retries these on a shorter interval than unexpected errors.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "stream: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is connection-level.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
