package engine

import "errors"

var (
	// ErrRejectedOperation is returned when an operator action is refused in the current state.
	ErrRejectedOperation = errors.New("engine: operation rejected")

	// ErrUnknownFault is returned for a fault kind outside the catalog.
	ErrUnknownFault = errors.New("engine: unknown fault kind")

	// ErrTickerStopped is returned by Exec once the frame driver has stopped.
	ErrTickerStopped = errors.New("engine: ticker stopped")
)
