package reputation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/pkg/logger"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

// Outcome classifies a completion attempt.
type Outcome string

const (
	OutcomeCompleted           Outcome = "completed"
	OutcomeCompletedWithErrors Outcome = "completed_with_errors"
	OutcomeAlreadyCompleted    Outcome = "already_completed"
	OutcomeNotFound            Outcome = "not_found"
)

// Report describes what a completion did.
type Report struct {
	EventID      string        `json:"event_id"`
	Outcome      Outcome       `json:"outcome"`
	Credited     int           `json:"credited"`
	Skipped      int           `json:"skipped"`
	CreditErrors []CreditError `json:"-"`
}

// Completed reports whether the event is now in its terminal state,
// whether or not this call performed the transition.
func (r Report) Completed() bool {
	switch r.Outcome {
	case OutcomeCompleted, OutcomeCompletedWithErrors, OutcomeAlreadyCompleted:
		return true
	}
	return false
}

// Err returns ErrPartialCredit joined with every per-application cause,
// or nil when all accepted volunteers were credited.
func (r Report) Err() error {
	if len(r.CreditErrors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.CreditErrors)+1)
	errs = append(errs, fmt.Errorf("%w: %d failed", ErrPartialCredit, len(r.CreditErrors)))
	for _, ce := range r.CreditErrors {
		errs = append(errs, ce)
	}
	return errors.Join(errs...)
}

// CompleteEvent closes the event and credits its volunteers exactly once.
//
// The completed flag is set with a conditional write before anything else
// changes, so concurrent callers race to a single winner and a crash
// mid-fan-out leaves the event visibly completed. Losers get
// OutcomeAlreadyCompleted and change nothing. An unknown event yields
// OutcomeNotFound together with ErrEventNotFound.
func (e *Engine) CompleteEvent(ctx context.Context, eventID string) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "reputation.complete_event",
		trace.WithAttributes(attribute.String("event_id", eventID)))
	defer span.End()

	report := Report{EventID: eventID}
	fail := func(err error) (Report, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrEventNotFound) {
			report.Outcome = OutcomeNotFound
			metrics.RecordCompletion(string(OutcomeNotFound))
		} else {
			metrics.RecordCompletion("failed")
			metrics.RecordErrorByComponent("reputation", "persistence")
		}
		return report, err
	}

	swapped, err := e.store.MarkEventCompleted(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Info(ctx, "complete: event not found", logger.String("event_id", eventID))
		return fail(fmt.Errorf("event %s: %w", eventID, ErrEventNotFound))
	}
	if err != nil {
		e.log.Error(ctx, "complete: flag write failed", logger.String("event_id", eventID), logger.Error(err))
		return fail(persistence("mark event completed", err))
	}
	if !swapped {
		report.Outcome = OutcomeAlreadyCompleted
		span.SetAttributes(attribute.String("outcome", string(report.Outcome)))
		metrics.RecordCompletion(string(OutcomeAlreadyCompleted))
		e.log.Info(ctx, "complete: event already completed", logger.String("event_id", eventID))
		return report, nil
	}

	// The application list is frozen from here on.
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		e.log.Error(ctx, "complete: reload after flag failed", logger.String("event_id", eventID), logger.Error(err))
		return fail(persistence("reload completed event", err))
	}

	// Fan-out runs to the end even if the caller goes away.
	work := context.WithoutCancel(ctx)

	if _, err := e.countOrganizer(work, ev.EventID, ev.CreatorUserID); err != nil {
		return fail(err)
	}

	credit := e.scanner.CreditVolunteers(work, ev.Applications)
	report.Credited = credit.Credited
	report.Skipped = credit.Skipped
	report.CreditErrors = credit.Errors
	report.Outcome = OutcomeCompleted
	if len(credit.Errors) > 0 {
		report.Outcome = OutcomeCompletedWithErrors
	}
	span.SetAttributes(
		attribute.String("outcome", string(report.Outcome)),
		attribute.Int("credited", report.Credited),
	)
	metrics.RecordCompletion(string(report.Outcome))

	fields := []logger.Field{
		logger.String("event_id", eventID),
		logger.Int("credited", report.Credited),
		logger.Int("skipped", report.Skipped),
		logger.Int("failed", len(report.CreditErrors)),
	}
	if len(report.CreditErrors) > 0 {
		e.log.Error(ctx, "event completed with credit failures", append(fields, logger.Error(report.Err()))...)
	} else {
		e.log.Info(ctx, "event completed", fields...)
	}

	e.notify(work, append([]string{ev.CreatorUserID}, credit.Users...))
	return report, nil
}

// CreditEvent re-runs the fan-out for an event that is already completed.
// It is the recovery path after a crash or store failure between the flag
// write and the end of fan-out; every call credits again.
//
// The organizer's completed_events is bumped only when countOrganizer is
// set. Use it when the original completion failed before its organizer
// write landed; otherwise the counter would be bumped twice.
func (e *Engine) CreditEvent(ctx context.Context, eventID string, countOrganizer bool) (CreditReport, error) {
	ev, err := e.store.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return CreditReport{}, fmt.Errorf("event %s: %w", eventID, ErrEventNotFound)
	}
	if err != nil {
		return CreditReport{}, persistence("get event", err)
	}
	if !ev.Completed {
		return CreditReport{}, fmt.Errorf("event %s is still open: %w", eventID, repository.ErrInvalidArgument)
	}

	var counted bool
	if countOrganizer {
		if counted, err = e.countOrganizer(ctx, ev.EventID, ev.CreatorUserID); err != nil {
			return CreditReport{}, err
		}
	}

	report := e.scanner.CreditVolunteers(ctx, ev.Applications)
	report.OrganizerCounted = counted
	e.log.Info(ctx, "credit re-run finished",
		logger.String("event_id", eventID),
		logger.Bool("organizer_counted", counted),
		logger.Int("credited", report.Credited),
		logger.Int("failed", len(report.Errors)))

	notified := report.Users
	if counted {
		notified = append([]string{ev.CreatorUserID}, notified...)
	}
	e.notify(ctx, notified)
	return report, nil
}

// countOrganizer bumps completed_events and reports whether it did. A
// missing organizer is logged and skipped; any other failure aborts.
func (e *Engine) countOrganizer(ctx context.Context, eventID, organizerID string) (bool, error) {
	if organizerID == "" {
		e.log.Warn(ctx, "complete: event has no organizer", logger.String("event_id", eventID))
		return false, nil
	}
	n, err := e.ledger.CountCompletion(ctx, organizerID)
	if errors.Is(err, repository.ErrNotFound) {
		e.log.Warn(ctx, "complete: organizer missing, counter not updated",
			logger.String("event_id", eventID), logger.String("user_id", organizerID))
		return false, nil
	}
	if err != nil {
		e.log.Error(ctx, "complete: organizer counter failed; event stays completed, re-run credit with the organizer count to resume",
			logger.String("event_id", eventID), logger.String("user_id", organizerID), logger.Error(err))
		return false, persistence("count organizer completion", err)
	}
	e.log.Debug(ctx, "organizer counter updated",
		logger.String("user_id", organizerID), logger.Int64("completed_events", n))
	return true, nil
}

func (e *Engine) notify(ctx context.Context, userIDs []string) {
	if e.notifier == nil {
		return
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := e.notifier.NotifyBadgeRefresh(ctx, id); err != nil {
			e.log.Warn(ctx, "badge refresh not scheduled", logger.String("user_id", id), logger.Error(err))
		}
	}
}
