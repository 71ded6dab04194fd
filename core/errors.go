package core

import "errors"

var (
	// ErrAlreadySeeded is returned when Seed is called on a chain that
	// already holds entries.
	ErrAlreadySeeded = errors.New("handler chain already seeded")

	// ErrLocked is returned when a handler is registered while a session
	// operation is in flight.
	ErrLocked = errors.New("handler chain locked by in-flight call")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("nil handler")
)
