package reputation

import (
	"context"
	"errors"
	"fmt"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/pkg/logger"
)

// DeleteEvent removes an event and its applications. Each application is
// detached from its applicant and deleted before the event itself goes,
// so a failure part way leaves the event in place for a retry.
func (e *Engine) DeleteEvent(ctx context.Context, eventID string) error {
	ev, err := e.store.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("event %s: %w", eventID, ErrEventNotFound)
	}
	if err != nil {
		return persistence("get event", err)
	}

	for _, appID := range ev.Applications {
		if err := e.dropApplication(ctx, appID); err != nil {
			e.log.Error(ctx, "delete: application cleanup failed",
				logger.String("event_id", eventID), logger.String("application_id", appID), logger.Error(err))
			return err
		}
	}

	if err := e.store.DeleteEvent(ctx, eventID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return persistence("delete event", err)
	}
	e.log.Info(ctx, "event deleted",
		logger.String("event_id", eventID), logger.Int("applications", len(ev.Applications)))
	return nil
}

func (e *Engine) dropApplication(ctx context.Context, appID string) error {
	app, err := e.store.GetApplication(ctx, appID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return persistence("get application", err)
	}
	err = e.store.RemoveUserRef(ctx, app.ApplicantUserID, model.RefApplications, appID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return persistence("detach application", err)
	}
	if err := e.store.DeleteApplication(ctx, appID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return persistence("delete application", err)
	}
	return nil
}
