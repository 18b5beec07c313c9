package reputation

import (
	"context"
	"errors"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/pkg/logger"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

// ResetAllScores sets score to 0 for every user whose score is absent or
// zero. Absent and zero are deliberately treated alike. Users with any
// other score are untouched.
//
// Each write is independent and best effort: the returned count is the
// number of writes the store applied. When some writes fail err is a
// *ResetError listing them.
func (e *Engine) ResetAllScores(ctx context.Context) (int, error) {
	ctx, span := e.tracer.Start(ctx, "reputation.reset_scores")
	defer span.End()

	ids, err := e.store.ListUnscoredUsers(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, persistence("list unscored users", err)
	}

	var (
		written atomic.Int64
		errs    = make([]error, len(ids))
		g       errgroup.Group
	)
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			ok, err := e.store.ResetScoreIfUnscored(ctx, id)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				// deleted since listing
			case err != nil:
				errs[i] = persistence("reset score for "+id, err)
			case ok:
				written.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(written.Load())
	metrics.RecordScoreResets(n)
	span.SetAttributes(attribute.Int("scanned", len(ids)), attribute.Int("written", n))

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		err := &ResetError{Written: n, Errors: failed}
		span.SetStatus(codes.Error, "partial reset")
		e.log.Error(ctx, "score reset incomplete", logger.Int("written", n), logger.Error(err))
		return n, err
	}
	e.log.Info(ctx, "scores reset", logger.Int("scanned", len(ids)), logger.Int("written", n))
	return n, nil
}
