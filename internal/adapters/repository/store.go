// Package repository defines the record store contract, its errors, and
// an in-memory implementation.
//
// The store has no cross-document transactions. Every method touches a
// single record (plus that record's own reference lists) and is atomic
// with respect to other calls on the same record.
package repository

import (
	"context"

	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// EventStore persists events.
type EventStore interface {
	// GetEvent returns ErrNotFound if the event is unknown.
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	CreateEvent(ctx context.Context, e model.Event) error
	DeleteEvent(ctx context.Context, eventID string) error

	// MarkEventCompleted sets completed=true only if it is currently false.
	// Returns true for the single caller that performed the transition.
	MarkEventCompleted(ctx context.Context, eventID string) (bool, error)

	// AppendEventApplication adds appID to the event's applications while
	// the event is open. Returns ErrEventCompleted once it is not.
	AppendEventApplication(ctx context.Context, eventID, appID string) error
}

// UserStore persists users.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) error

	// IncrementCounter atomically adds delta to a counter and returns the
	// new value. An absent counter counts as zero.
	IncrementCounter(ctx context.Context, userID string, c model.Counter, delta int64) (int64, error)

	// AddUserRef appends id to a reference list unless already present.
	AddUserRef(ctx context.Context, userID string, list model.RefList, id string) error
	// RemoveUserRef removes every occurrence of id from a reference list.
	RemoveUserRef(ctx context.Context, userID string, list model.RefList, id string) error

	// AddBadges unions badges into the user's set by name and returns the
	// resulting set in earn order.
	AddBadges(ctx context.Context, userID string, badges []model.Badge) ([]model.Badge, error)

	// ListUnscoredUsers returns ids of users whose score is absent or zero.
	ListUnscoredUsers(ctx context.Context) ([]string, error)
	// ResetScoreIfUnscored writes score=0 if the score is still absent or
	// zero. Returns whether a write was applied.
	ResetScoreIfUnscored(ctx context.Context, userID string) (bool, error)

	// TopByScore returns up to n users ordered by score desc, user id asc.
	TopByScore(ctx context.Context, n int) ([]model.User, error)
}

// ApplicationStore persists applications.
type ApplicationStore interface {
	GetApplication(ctx context.Context, appID string) (model.Application, error)
	CreateApplication(ctx context.Context, a model.Application) error
	SetApplicationStatus(ctx context.Context, appID string, s model.Status) error
	DeleteApplication(ctx context.Context, appID string) error
}

// Store is the full record store.
type Store interface {
	EventStore
	UserStore
	ApplicationStore

	// Close releases backend resources.
	Close() error
}
