package reputation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/badges"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/pkg/logger"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

// RefreshBadges evaluates the rule table against the stored user and
// unions any newly earned badges into the user's set. updated is true
// when at least one badge was added by this call.
func (e *Engine) RefreshBadges(ctx context.Context, userID string) (bool, []model.Badge, error) {
	ctx, span := e.tracer.Start(ctx, "reputation.refresh_badges",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	u, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return false, nil, persistence("get user", err)
	}

	earned := e.evaluator.Evaluate(u)
	if len(earned) == 0 {
		return false, u.Badges, nil
	}

	held, err := e.store.AddBadges(ctx, userID, earned)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		span.RecordError(err)
		e.log.Error(ctx, "badge write failed", logger.String("user_id", userID), logger.Error(err))
		return false, nil, persistence("add badges", err)
	}

	added := badges.Missing(u.Badges, held)
	names := make([]string, len(added))
	for i, b := range added {
		names[i] = b.Name
		metrics.RecordBadgeAwarded(b.Name)
	}
	span.SetAttributes(attribute.StringSlice("badges", names))
	if len(added) > 0 {
		e.log.Info(ctx, "badges awarded", logger.String("user_id", userID), logger.Strings("badges", names))
	}
	return len(added) > 0, held, nil
}
