package repository

import "errors"

// Sentinel kinds for record store errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrEventCompleted  = errors.New("event already completed")
	ErrInvalidArgument = errors.New("invalid argument")
)
