package service

import "errors"

// Sentinel kinds returned by the service in addition to the engine's.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrApplicationNotFound = errors.New("application not found")
	ErrEventClosed         = errors.New("event is completed")
	ErrNotStarted          = errors.New("service not started")
)
