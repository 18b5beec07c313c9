package loadtest

import "errors"

// Error kinds reported by a run.
var (
	ErrConfig       = errors.New("invalid load test config")
	ErrUnexpected   = errors.New("unexpected response")
	ErrVerification = errors.New("verification failed")
)
