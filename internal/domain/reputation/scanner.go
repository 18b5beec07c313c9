package reputation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/pkg/logger"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

// Skip reasons reported to metrics.
const (
	skipMissing     = "missing_application"
	skipNotAccepted = "not_accepted"
)

// CreditReport is the outcome of one fan-out.
type CreditReport struct {
	Credited int
	Skipped  int
	// Users lists credited applicants in application order.
	Users  []string
	Errors []CreditError
	// OrganizerCounted is set by CreditEvent when it bumped the
	// organizer's completed_events.
	OrganizerCounted bool
}

// Scanner walks an event's applications and credits accepted applicants.
// It does not de-duplicate: every call credits again.
type Scanner struct {
	apps        repository.ApplicationStore
	ledger      *Ledger
	concurrency int
	log         logger.Logger
	tracer      trace.Tracer
}

type creditResult struct {
	userID   string
	credited bool
	skip     string
	err      error
}

// CreditVolunteers credits every accepted application concurrently and
// waits for all of them. One failure never stops its siblings.
func (s *Scanner) CreditVolunteers(ctx context.Context, applicationIDs []string) CreditReport {
	ctx, span := s.tracer.Start(ctx, "reputation.credit_volunteers",
		trace.WithAttributes(attribute.Int("applications", len(applicationIDs))))
	defer span.End()
	start := time.Now()

	results := make([]creditResult, len(applicationIDs))
	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, appID := range applicationIDs {
		g.Go(func() error {
			results[i] = s.creditOne(ctx, appID)
			return nil
		})
	}
	_ = g.Wait()

	var report CreditReport
	for i, r := range results {
		switch {
		case r.err != nil:
			report.Errors = append(report.Errors, CreditError{
				ApplicationID: applicationIDs[i],
				UserID:        r.userID,
				Cause:         r.err,
			})
			metrics.RecordCreditFailure()
		case r.credited:
			report.Credited++
			report.Users = append(report.Users, r.userID)
			metrics.RecordCreditApplied()
		default:
			report.Skipped++
			metrics.RecordCreditSkipped(r.skip)
		}
	}
	metrics.RecordFanoutLatency(float64(time.Since(start).Microseconds()) / 1000.0)

	span.SetAttributes(
		attribute.Int("credited", report.Credited),
		attribute.Int("skipped", report.Skipped),
		attribute.Int("failed", len(report.Errors)),
	)
	if len(report.Errors) > 0 {
		span.SetStatus(codes.Error, ErrPartialCredit.Error())
	}
	return report
}

func (s *Scanner) creditOne(ctx context.Context, appID string) creditResult {
	app, err := s.apps.GetApplication(ctx, appID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Debug(ctx, "application missing, skipping", logger.String("application_id", appID))
		return creditResult{skip: skipMissing}
	}
	if err != nil {
		return creditResult{err: persistence("get application", err)}
	}
	if !app.Accepted() {
		return creditResult{userID: app.ApplicantUserID, skip: skipNotAccepted}
	}

	score, err := s.ledger.Credit(ctx, app.ApplicantUserID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warn(ctx, "applicant missing, not credited",
			logger.String("application_id", appID),
			logger.String("user_id", app.ApplicantUserID))
		return creditResult{userID: app.ApplicantUserID, err: ErrUserNotFound}
	}
	if err != nil {
		s.log.Error(ctx, "credit failed",
			logger.String("application_id", appID),
			logger.String("user_id", app.ApplicantUserID),
			logger.Error(err))
		return creditResult{userID: app.ApplicantUserID, err: persistence("credit score", err)}
	}
	s.log.Debug(ctx, "volunteer credited",
		logger.String("application_id", appID),
		logger.String("user_id", app.ApplicantUserID),
		logger.Int64("score", score))
	return creditResult{userID: app.ApplicantUserID, credited: true}
}
