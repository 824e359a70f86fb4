package ami

import "errors"

var (
	// ErrAuthenticationFailed is returned when the manager rejects the login
	ErrAuthenticationFailed = errors.New("ami: authentication failed")

	// ErrNotConnected is returned when a command is issued before a successful login
	ErrNotConnected = errors.New("ami: not connected")

	// ErrAlreadyConnected is returned when Connect is called on a live session
	ErrAlreadyConnected = errors.New("ami: already connected")
)
