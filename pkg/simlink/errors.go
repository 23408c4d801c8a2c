package simlink

import "errors"

var (
	// ErrNotConnected is returned by operations that need a live
	// simulator connection when there is none.
	ErrNotConnected = errors.New("not connected to simulator")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("engine not started")

	// ErrNoCommand is returned when a command path is empty or one
	// of the no-op sentinel names.
	ErrNoCommand = errors.New("not a command")
)
