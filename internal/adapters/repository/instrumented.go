package repository

import (
	"context"
	"time"

	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

// Instrumented wraps a Store and records per-operation latency and failures.
type Instrumented struct {
	next Store
}

var _ Store = (*Instrumented)(nil)

// NewInstrumented decorates s with store metrics.
func NewInstrumented(s Store) *Instrumented {
	return &Instrumented{next: s}
}

// track returns a func to defer with a pointer to the named error result.
func track(op string) func(*error) {
	start := time.Now()
	return func(err *error) {
		metrics.RecordStoreOp(op, float64(time.Since(start).Microseconds())/1000.0, *err != nil)
	}
}

func (s *Instrumented) GetEvent(ctx context.Context, eventID string) (_ model.Event, err error) {
	defer track("get_event")(&err)
	return s.next.GetEvent(ctx, eventID)
}

func (s *Instrumented) CreateEvent(ctx context.Context, e model.Event) (err error) {
	defer track("create_event")(&err)
	return s.next.CreateEvent(ctx, e)
}

func (s *Instrumented) DeleteEvent(ctx context.Context, eventID string) (err error) {
	defer track("delete_event")(&err)
	return s.next.DeleteEvent(ctx, eventID)
}

func (s *Instrumented) MarkEventCompleted(ctx context.Context, eventID string) (_ bool, err error) {
	defer track("mark_event_completed")(&err)
	return s.next.MarkEventCompleted(ctx, eventID)
}

func (s *Instrumented) AppendEventApplication(ctx context.Context, eventID, appID string) (err error) {
	defer track("append_event_application")(&err)
	return s.next.AppendEventApplication(ctx, eventID, appID)
}

func (s *Instrumented) GetUser(ctx context.Context, userID string) (_ model.User, err error) {
	defer track("get_user")(&err)
	return s.next.GetUser(ctx, userID)
}

func (s *Instrumented) CreateUser(ctx context.Context, u model.User) (err error) {
	defer track("create_user")(&err)
	return s.next.CreateUser(ctx, u)
}

func (s *Instrumented) IncrementCounter(ctx context.Context, userID string, c model.Counter, delta int64) (_ int64, err error) {
	defer track("increment_" + string(c))(&err)
	return s.next.IncrementCounter(ctx, userID, c, delta)
}

func (s *Instrumented) AddUserRef(ctx context.Context, userID string, list model.RefList, id string) (err error) {
	defer track("add_user_ref")(&err)
	return s.next.AddUserRef(ctx, userID, list, id)
}

func (s *Instrumented) RemoveUserRef(ctx context.Context, userID string, list model.RefList, id string) (err error) {
	defer track("remove_user_ref")(&err)
	return s.next.RemoveUserRef(ctx, userID, list, id)
}

func (s *Instrumented) AddBadges(ctx context.Context, userID string, badges []model.Badge) (_ []model.Badge, err error) {
	defer track("add_badges")(&err)
	return s.next.AddBadges(ctx, userID, badges)
}

func (s *Instrumented) ListUnscoredUsers(ctx context.Context) (_ []string, err error) {
	defer track("list_unscored_users")(&err)
	return s.next.ListUnscoredUsers(ctx)
}

func (s *Instrumented) ResetScoreIfUnscored(ctx context.Context, userID string) (_ bool, err error) {
	defer track("reset_score")(&err)
	return s.next.ResetScoreIfUnscored(ctx, userID)
}

func (s *Instrumented) TopByScore(ctx context.Context, n int) (_ []model.User, err error) {
	defer track("top_by_score")(&err)
	return s.next.TopByScore(ctx, n)
}

func (s *Instrumented) GetApplication(ctx context.Context, appID string) (_ model.Application, err error) {
	defer track("get_application")(&err)
	return s.next.GetApplication(ctx, appID)
}

func (s *Instrumented) CreateApplication(ctx context.Context, a model.Application) (err error) {
	defer track("create_application")(&err)
	return s.next.CreateApplication(ctx, a)
}

func (s *Instrumented) SetApplicationStatus(ctx context.Context, appID string, st model.Status) (err error) {
	defer track("set_application_status")(&err)
	return s.next.SetApplicationStatus(ctx, appID, st)
}

func (s *Instrumented) DeleteApplication(ctx context.Context, appID string) (err error) {
	defer track("delete_application")(&err)
	return s.next.DeleteApplication(ctx, appID)
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
