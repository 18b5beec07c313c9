package reputation

import (
	"context"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// Points awarded per accepted application on completion.
const creditPoints = 1

// Ledger owns the user counters touched by completions. Every change is a
// single atomic increment in the store.
type Ledger struct {
	users repository.UserStore
}

// NewLedger creates a ledger over users.
func NewLedger(users repository.UserStore) *Ledger {
	return &Ledger{users: users}
}

// Credit adds one point to the volunteer's score and returns the new score.
func (l *Ledger) Credit(ctx context.Context, userID string) (int64, error) {
	return l.users.IncrementCounter(ctx, userID, model.CounterScore, creditPoints)
}

// CountCompletion bumps the organizer's completed_events by one.
func (l *Ledger) CountCompletion(ctx context.Context, organizerID string) (int64, error) {
	return l.users.IncrementCounter(ctx, organizerID, model.CounterCompletedEvents, 1)
}
