// Package loadtest drives a running service over HTTP: it builds users,
// events and reviewed applications, fires concurrent completion requests
// at every event and verifies that each accepted volunteer was credited
// exactly once.
package loadtest

import (
	"fmt"
	"time"
)

// Default configuration constants.
const (
	DefaultVolunteers           = 200
	DefaultEvents               = 50
	DefaultApplicationsPerEvent = 8
	DefaultAcceptRatio          = 0.7
	DefaultCompletionsPerEvent  = 4
	DefaultTopN                 = 20
	DefaultTimeout              = 30 * time.Second
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL              string        // Base URL of the service
	Volunteers           int           // Number of volunteer users to create
	Events               int           // Number of events to create
	ApplicationsPerEvent int           // Distinct applicants per event
	AcceptRatio          float64       // Share of applications accepted at review
	CompletionsPerEvent  int           // Concurrent complete requests per event
	Workers              int           // Number of concurrent HTTP workers
	TopN                 int           // Rankings page size to verify
	Timeout              time.Duration // HTTP request timeout
	Seed                 uint64        // Seed for the fixture plan
}

// Validate checks that the run can be planned.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrConfig)
	case c.Volunteers < 1 || c.Events < 1:
		return fmt.Errorf("%w: volunteers and events must be positive", ErrConfig)
	case c.ApplicationsPerEvent < 0 || c.ApplicationsPerEvent > c.Volunteers:
		return fmt.Errorf("%w: applications per event must be within [0,%d]", ErrConfig, c.Volunteers)
	case c.AcceptRatio < 0 || c.AcceptRatio > 1:
		return fmt.Errorf("%w: accept ratio must be within [0,1]", ErrConfig)
	case c.CompletionsPerEvent < 1:
		return fmt.Errorf("%w: completions per event must be positive", ErrConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrConfig)
	case c.TopN < 1:
		return fmt.Errorf("%w: top must be positive", ErrConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	UsersCreated          int
	EventsCreated         int
	ApplicationsSubmitted int
	ApplicationsAccepted  int
	CompletionsSent       int
	CompletionsWon        int
	CompletionsRepeated   int
	CompletionsFailed     int
	UsersVerified         int
	StartTime             time.Time
	EndTime               time.Time
	Duration              time.Duration
}
