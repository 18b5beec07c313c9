// Package service wires the record store, the reputation engine and the
// badge refresh pipeline into the operations the HTTP API and the admin
// CLI call.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	eventqueue "github.com/volunteerfinder/reputation/internal/adapters/mq/queue"
	workerpool "github.com/volunteerfinder/reputation/internal/adapters/mq/worker"
	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/dedupe"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/internal/domain/reputation"
	"github.com/volunteerfinder/reputation/pkg/logger"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

// Service implements the API dependencies for the reputation system.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	engine  *reputation.Engine
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool

	creditConcurrency int
	workerCount       int
	queueSize         int
	dedupeSize        int
	maxRankingLimit   int
	autoRefresh       bool

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the record store. Defaults to an in-memory store.
func WithStore(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithCreditConcurrency bounds concurrent store calls per fan-out.
func WithCreditConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.creditConcurrency = n
		}
	}
}

// WithWorkerCount sets the number of badge refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the badge refresh queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the set of users with a refresh pending.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxRankingLimit caps TopRankedUsers.
func WithMaxRankingLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRankingLimit = n
		}
	}
}

// WithAutoRefreshBadges toggles queued badge refreshes after completions.
func WithAutoRefreshBadges(enabled bool) Option {
	return func(s *Service) { s.autoRefresh = enabled }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Call Start to run the badge workers.
func New(opts ...Option) *Service {
	s := &Service{
		creditConcurrency: reputation.DefaultConcurrency,
		workerCount:       runtime.NumCPU(),
		queueSize:         10_000,
		dedupeSize:        50_000,
		maxRankingLimit:   100,
		autoRefresh:       true,
		logger:            logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	engineOpts := []reputation.Option{
		reputation.WithConcurrency(s.creditConcurrency),
		reputation.WithLogger(s.logger.Named("reputation")),
	}
	if s.autoRefresh {
		engineOpts = append(engineOpts, reputation.WithBadgeNotifier(s))
	}
	s.engine = reputation.NewEngine(s.store, engineOpts...)
	return s
}

// Start launches the badge refresh workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.engine,
		workerpool.WithReleaser(s.deduper),
		workerpool.WithLogger(s.logger),
	)
	// Workers live until Stop closes the queue, not until ctx ends.
	s.pool.Start(context.WithoutCancel(ctx))
	s.started = true

	s.logger.Info(ctx, "reputation service started",
		logger.Int("badge_workers", s.workerCount),
		logger.Int("badge_queue_size", s.queueSize),
		logger.Bool("auto_refresh_badges", s.autoRefresh),
	)
	return nil
}

// Stop drains the badge queue and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.started {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.started = false
	} else {
		_ = s.queue.Close()
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.logger.Info(ctx, "reputation service stopped")
	return errors.Join(errs...)
}

// Engine exposes the reputation engine.
func (s *Service) Engine() *reputation.Engine { return s.engine }

// NotifyBadgeRefresh queues a badge refresh for userID unless one is
// already pending. A full queue drops the request.
func (s *Service) NotifyBadgeRefresh(ctx context.Context, userID string) error {
	if s.deduper.SeenAndRecord(ctx, userID) {
		s.logger.Debug(ctx, "badge refresh already pending", logger.String("user_id", userID))
		return nil
	}
	if err := s.queue.Enqueue(ctx, eventqueue.Job{UserID: userID}); err != nil {
		s.deduper.Unrecord(ctx, userID)
		return err
	}
	return nil
}

// CreateUserInput carries the fields accepted on user creation.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Age       int
	Sex       string
	Email     string
	Username  string
	Password  string
}

// CreateUser stores a new user with score 0 and empty lists.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (model.User, error) {
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" {
		return model.User{}, fmt.Errorf("%w: username and email are required", ErrInvalidInput)
	}
	u := model.User{
		UserID:       uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Age:          in.Age,
		Sex:          in.Sex,
		Email:        in.Email,
		Username:     in.Username,
		Password:     in.Password,
		Applications: []string{},
		Events:       []string{},
		Score:        model.Int64(0),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return model.User{}, fmt.Errorf("create user: %w: %w", reputation.ErrPersistence, err)
	}
	s.logger.Info(ctx, "user created", logger.String("user_id", u.UserID))
	return u, nil
}

// GetUser returns a stored user.
func (s *Service) GetUser(ctx context.Context, userID string) (model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, fmt.Errorf("user %s: %w", userID, reputation.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w: %w", reputation.ErrPersistence, err)
	}
	return u, nil
}

// CreateEvent stores an open event and links it to its creator. The
// event's Applications and Completed fields are ignored.
func (s *Service) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if strings.TrimSpace(e.CreatorUserID) == "" {
		return model.Event{}, fmt.Errorf("%w: creator_user_id is required", ErrInvalidInput)
	}
	if _, err := s.GetUser(ctx, e.CreatorUserID); err != nil {
		return model.Event{}, err
	}

	e.EventID = uuid.NewString()
	e.Applications = []string{}
	e.Completed = false
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return model.Event{}, fmt.Errorf("create event: %w: %w", reputation.ErrPersistence, err)
	}
	if err := s.store.AddUserRef(ctx, e.CreatorUserID, model.RefEvents, e.EventID); err != nil {
		return model.Event{}, fmt.Errorf("link event to creator: %w: %w", reputation.ErrPersistence, err)
	}
	s.logger.Info(ctx, "event created",
		logger.String("event_id", e.EventID), logger.String("creator_user_id", e.CreatorUserID))

	// Creator badges depend on the number of events created.
	s.scheduleRefresh(ctx, e.CreatorUserID)
	return e, nil
}

// GetEvent returns a stored event.
func (s *Service) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	e, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Event{}, fmt.Errorf("event %s: %w", eventID, reputation.ErrEventNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w: %w", reputation.ErrPersistence, err)
	}
	return e, nil
}

// SubmitApplication files a pending application for an open event.
func (s *Service) SubmitApplication(ctx context.Context, eventID, applicantID string) (model.Application, error) {
	if strings.TrimSpace(applicantID) == "" {
		return model.Application{}, fmt.Errorf("%w: applicant_user_id is required", ErrInvalidInput)
	}
	ev, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return model.Application{}, err
	}
	if ev.Completed {
		return model.Application{}, fmt.Errorf("event %s: %w", eventID, ErrEventClosed)
	}
	if _, err := s.GetUser(ctx, applicantID); err != nil {
		return model.Application{}, err
	}

	app := model.Application{
		ApplicationID:   uuid.NewString(),
		ApplicantUserID: applicantID,
		EventID:         eventID,
		Status:          model.StatusPending,
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return model.Application{}, fmt.Errorf("create application: %w: %w", reputation.ErrPersistence, err)
	}

	// The event may have been completed since the read above.
	if err := s.store.AppendEventApplication(ctx, eventID, app.ApplicationID); err != nil {
		_ = s.store.DeleteApplication(ctx, app.ApplicationID)
		switch {
		case errors.Is(err, repository.ErrEventCompleted):
			return model.Application{}, fmt.Errorf("event %s: %w", eventID, ErrEventClosed)
		case errors.Is(err, repository.ErrNotFound):
			return model.Application{}, fmt.Errorf("event %s: %w", eventID, reputation.ErrEventNotFound)
		}
		return model.Application{}, fmt.Errorf("attach application: %w: %w", reputation.ErrPersistence, err)
	}
	if err := s.store.AddUserRef(ctx, applicantID, model.RefApplications, app.ApplicationID); err != nil {
		return model.Application{}, fmt.Errorf("link application to applicant: %w: %w", reputation.ErrPersistence, err)
	}
	s.logger.Info(ctx, "application submitted",
		logger.String("application_id", app.ApplicationID),
		logger.String("event_id", eventID),
		logger.String("user_id", applicantID))
	return app, nil
}

// ReviewApplication accepts or rejects an application while its event
// is still open.
func (s *Service) ReviewApplication(ctx context.Context, appID string, status model.Status) (model.Application, error) {
	if status != model.StatusAccepted && status != model.StatusRejected {
		return model.Application{}, fmt.Errorf("%w: status must be accepted or rejected", ErrInvalidInput)
	}
	app, err := s.store.GetApplication(ctx, appID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Application{}, fmt.Errorf("application %s: %w", appID, ErrApplicationNotFound)
	}
	if err != nil {
		return model.Application{}, fmt.Errorf("get application: %w: %w", reputation.ErrPersistence, err)
	}

	ev, err := s.GetEvent(ctx, app.EventID)
	if err != nil {
		return model.Application{}, err
	}
	if ev.Completed {
		return model.Application{}, fmt.Errorf("event %s: %w", app.EventID, ErrEventClosed)
	}

	if err := s.store.SetApplicationStatus(ctx, appID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Application{}, fmt.Errorf("application %s: %w", appID, ErrApplicationNotFound)
		}
		return model.Application{}, fmt.Errorf("review application: %w: %w", reputation.ErrPersistence, err)
	}
	app.Status = status
	s.logger.Info(ctx, "application reviewed",
		logger.String("application_id", appID), logger.String("status", string(status)))
	return app, nil
}

// CompleteEvent closes the event and credits its volunteers.
func (s *Service) CompleteEvent(ctx context.Context, eventID string) (reputation.Report, error) {
	return s.engine.CompleteEvent(ctx, eventID)
}

// CreditEvent re-runs the fan-out for a completed event, optionally
// bumping the organizer's completed_events as well.
func (s *Service) CreditEvent(ctx context.Context, eventID string, countOrganizer bool) (reputation.CreditReport, error) {
	return s.engine.CreditEvent(ctx, eventID, countOrganizer)
}

// DeleteEvent removes an event and its applications.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	return s.engine.DeleteEvent(ctx, eventID)
}

// RefreshBadges evaluates and stores a user's badges synchronously.
func (s *Service) RefreshBadges(ctx context.Context, userID string) (bool, []model.Badge, error) {
	return s.engine.RefreshBadges(ctx, userID)
}

// ResetAllScores normalizes absent scores to zero.
func (s *Service) ResetAllScores(ctx context.Context) (int, error) {
	return s.engine.ResetAllScores(ctx)
}

// TopRankedUsers returns up to n users by score, capped by the
// configured maximum.
func (s *Service) TopRankedUsers(ctx context.Context, n int) ([]model.User, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if n > s.maxRankingLimit {
		n = s.maxRankingLimit
	}
	users, err := s.store.TopByScore(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("rank users: %w: %w", reputation.ErrPersistence, err)
	}
	return users, nil
}

// Stats reports pipeline state for monitoring.
func (s *Service) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queued := s.queue.Len()
	metrics.UpdateQueueSize(queued)
	return map[string]any{
		"started":             s.started,
		"auto_refresh_badges": s.autoRefresh,
		"badge_workers":       s.workerCount,
		"badge_queue_length":  queued,
		"badge_pending":       s.deduper.Size(),
	}
}

func (s *Service) scheduleRefresh(ctx context.Context, userID string) {
	if !s.autoRefresh {
		return
	}
	if err := s.NotifyBadgeRefresh(ctx, userID); err != nil {
		s.logger.Warn(ctx, "badge refresh not scheduled", logger.String("user_id", userID), logger.Error(err))
	}
}
