package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// MemoryStore is an in-process Store. Records are copied on the way in and
// out so callers never alias stored slices.
type MemoryStore struct {
	mu           sync.RWMutex
	events       map[string]model.Event
	users        map[string]model.User
	applications map[string]model.Application
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       make(map[string]model.Event),
		users:        make(map[string]model.User),
		applications: make(map[string]model.Application),
	}
}

// GetEvent returns a copy of the event.
func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return model.Event{}, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return e.Clone(), nil
}

// CreateEvent stores e, replacing any event with the same id.
func (s *MemoryStore) CreateEvent(ctx context.Context, e model.Event) error {
	if e.EventID == "" {
		return fmt.Errorf("event id: %w", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.EventID] = e.Clone()
	return nil
}

// DeleteEvent removes the event.
func (s *MemoryStore) DeleteEvent(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	delete(s.events, eventID)
	return nil
}

// MarkEventCompleted flips completed under the write lock.
func (s *MemoryStore) MarkEventCompleted(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return false, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if e.Completed {
		return false, nil
	}
	e.Completed = true
	s.events[eventID] = e
	return true, nil
}

// AppendEventApplication adds appID to an open event.
func (s *MemoryStore) AppendEventApplication(ctx context.Context, eventID, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if e.Completed {
		return fmt.Errorf("event %s: %w", eventID, ErrEventCompleted)
	}
	e.Applications = appendUnique(e.Applications, appID)
	s.events[eventID] = e
	return nil
}

// GetUser returns a copy of the user.
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return u.Clone(), nil
}

// CreateUser stores u, replacing any user with the same id.
func (s *MemoryStore) CreateUser(ctx context.Context, u model.User) error {
	if u.UserID == "" {
		return fmt.Errorf("user id: %w", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u.Clone()
	return nil
}

// IncrementCounter adds delta to the named counter.
func (s *MemoryStore) IncrementCounter(ctx context.Context, userID string, c model.Counter, delta int64) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("counter %q: %w", c, ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	var next int64
	switch c {
	case model.CounterScore:
		next = u.ScoreValue() + delta
		u.Score = model.Int64(next)
	case model.CounterCompletedEvents:
		next = u.CompletedEventsValue() + delta
		u.CompletedEvents = model.Int64(next)
	}
	s.users[userID] = u
	return next, nil
}

// AddUserRef appends id to the list unless present.
func (s *MemoryStore) AddUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	return s.updateRefs(userID, list, func(ids []string) []string { return appendUnique(ids, id) })
}

// RemoveUserRef drops id from the list.
func (s *MemoryStore) RemoveUserRef(ctx context.Context, userID string, list model.RefList, id string) error {
	return s.updateRefs(userID, list, func(ids []string) []string { return removeAll(ids, id) })
}

func (s *MemoryStore) updateRefs(userID string, list model.RefList, fn func([]string) []string) error {
	if !list.Valid() {
		return fmt.Errorf("list %q: %w", list, ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	switch list {
	case model.RefEvents:
		u.Events = fn(u.Events)
	case model.RefApplications:
		u.Applications = fn(u.Applications)
	}
	s.users[userID] = u
	return nil
}

// AddBadges unions badges into the user's set.
func (s *MemoryStore) AddBadges(ctx context.Context, userID string, badges []model.Badge) ([]model.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	for _, b := range badges {
		if !u.HasBadge(b.Name) {
			u.Badges = append(u.Badges, b)
		}
	}
	s.users[userID] = u
	return u.Clone().Badges, nil
}

// ListUnscoredUsers returns users whose score is absent or zero, by id.
func (s *MemoryStore) ListUnscoredUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, u := range s.users {
		if u.ScoreValue() == 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetScoreIfUnscored writes score=0 when the score is still falsy.
func (s *MemoryStore) ResetScoreIfUnscored(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if u.ScoreValue() != 0 {
		return false, nil
	}
	u.Score = model.Int64(0)
	s.users[userID] = u
	return true, nil
}

// TopByScore ranks users by score desc then id asc.
func (s *MemoryStore) TopByScore(ctx context.Context, n int) ([]model.User, error) {
	if n < 1 {
		return nil, fmt.Errorf("limit %d: %w", n, ErrInvalidArgument)
	}
	s.mu.RLock()
	all := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].ScoreValue(), all[j].ScoreValue()
		if a != b {
			return a > b
		}
		return all[i].UserID < all[j].UserID
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// GetApplication returns the application.
func (s *MemoryStore) GetApplication(ctx context.Context, appID string) (model.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.applications[appID]
	if !ok {
		return model.Application{}, fmt.Errorf("application %s: %w", appID, ErrNotFound)
	}
	return a, nil
}

// CreateApplication stores a.
func (s *MemoryStore) CreateApplication(ctx context.Context, a model.Application) error {
	if a.ApplicationID == "" {
		return fmt.Errorf("application id: %w", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[a.ApplicationID] = a
	return nil
}

// SetApplicationStatus updates the review status.
func (s *MemoryStore) SetApplicationStatus(ctx context.Context, appID string, st model.Status) error {
	if !st.Valid() {
		return fmt.Errorf("status %q: %w", st, ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applications[appID]
	if !ok {
		return fmt.Errorf("application %s: %w", appID, ErrNotFound)
	}
	a.Status = st
	s.applications[appID] = a
	return nil
}

// DeleteApplication removes the application.
func (s *MemoryStore) DeleteApplication(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[appID]; !ok {
		return fmt.Errorf("application %s: %w", appID, ErrNotFound)
	}
	delete(s.applications, appID)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeAll(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
