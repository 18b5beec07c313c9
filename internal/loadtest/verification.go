package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/volunteerfinder/reputation/pkg/logger"
)

// verify checks the run against the plan:
//   - every event was won by exactly one complete request
//   - every volunteer's score equals their accepted applications
//   - every organizer's completed_events equals the events they own
//   - the rankings page is ordered by score
func verify(ctx context.Context, c *client, cfg Config, f *fixture, outcomes map[string]map[string]int, stats *Stats, log logger.Logger) error {
	log.Info(ctx, "verifying results")

	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, id := range f.events {
		won := outcomes[id]["completed"] + outcomes[id]["completed_with_errors"]
		if won != 1 {
			fail(fmt.Errorf("event %s completed %d times", id, won))
		}
	}

	scores := f.plan.expectedScores(len(f.volunteers))
	owned := f.plan.eventsPerOrganizer()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	check := func(userID string, wantScore, wantCompleted int64, checkCompleted bool) {
		g.Go(func() error {
			var u userResponse
			if err := c.expect(gctx, http.StatusOK, http.MethodGet, "/users/"+userID, nil, &u); err != nil {
				return err
			}
			if u.Score != wantScore {
				fail(fmt.Errorf("user %s score %d, want %d", userID, u.Score, wantScore))
			}
			if checkCompleted && u.CompletedEvents != wantCompleted {
				fail(fmt.Errorf("organizer %s completed_events %d, want %d", userID, u.CompletedEvents, wantCompleted))
			}
			mu.Lock()
			stats.UsersVerified++
			mu.Unlock()
			return nil
		})
	}
	for i, id := range f.volunteers {
		check(id, scores[i], 0, false)
	}
	for i, id := range f.organizers {
		check(id, 0, owned[i], true)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("read users: %w", err)
	}

	var ranking []rankingEntry
	if err := c.expect(ctx, http.StatusOK, http.MethodGet, "/rankings?limit="+strconv.Itoa(cfg.TopN), nil, &ranking); err != nil {
		return fmt.Errorf("read rankings: %w", err)
	}
	if err := verifyRankingOrder(ranking); err != nil {
		fail(err)
	}

	if len(errs) > 0 {
		log.Error(ctx, "verification failed", logger.Int("problems", len(errs)))
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(errs...))
	}
	log.Info(ctx, "verification passed", logger.Int("users", stats.UsersVerified))
	return nil
}

// verifyRankingOrder checks ranks are consecutive and scores never rise.
func verifyRankingOrder(entries []rankingEntry) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("ranking entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Score > entries[i-1].Score {
			return fmt.Errorf("ranking not sorted: entry %d has higher score than entry %d", i, i-1)
		}
	}
	return nil
}
