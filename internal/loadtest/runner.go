package loadtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/volunteerfinder/reputation/pkg/logger"
)

// Run executes a complete load run against cfg.BaseURL.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("volunteers", cfg.Volunteers),
		logger.Int("events", cfg.Events),
		logger.Int("completions_per_event", cfg.CompletionsPerEvent),
		logger.Int("workers", cfg.Workers))

	if err := c.expect(ctx, http.StatusOK, http.MethodGet, "/healthz", nil, nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	f, err := buildFixture(ctx, c, cfg, newPlan(cfg), stats, log)
	if err != nil {
		return stats, fmt.Errorf("fixture setup failed: %w", err)
	}

	outcomes := completeAll(ctx, c, cfg, f.events, stats, log)

	verifyErr := verify(ctx, c, cfg, f, outcomes, stats, log)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if verifyErr != nil {
		return stats, verifyErr
	}
	log.Info(ctx, "load run passed")
	return stats, nil
}

// completeAll sends CompletionsPerEvent concurrent complete requests for
// every event and tallies the outcomes per event.
func completeAll(ctx context.Context, c *client, cfg Config, events []string, stats *Stats, log logger.Logger) map[string]map[string]int {
	total := len(events) * cfg.CompletionsPerEvent
	log.Info(ctx, "completing events", logger.Int("requests", total))

	var (
		mu       sync.Mutex
		outcomes = make(map[string]map[string]int, len(events))
	)
	for _, id := range events {
		outcomes[id] = make(map[string]int)
	}

	jobs := make(chan string, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				outcome := completeOne(ctx, c, id)
				mu.Lock()
				outcomes[id][outcome]++
				mu.Unlock()
			}
		}()
	}

	// Rounds interleave events so duplicate requests for one event race.
	go func() {
		defer close(jobs)
		for r := 0; r < cfg.CompletionsPerEvent; r++ {
			for _, id := range events {
				select {
				case <-ctx.Done():
					return
				case jobs <- id:
				}
			}
		}
	}()
	wg.Wait()

	for _, byOutcome := range outcomes {
		for outcome, n := range byOutcome {
			stats.CompletionsSent += n
			switch outcome {
			case "completed", "completed_with_errors":
				stats.CompletionsWon += n
			case "already_completed":
				stats.CompletionsRepeated += n
			default:
				stats.CompletionsFailed += n
			}
		}
	}
	return outcomes
}

func completeOne(ctx context.Context, c *client, eventID string) string {
	var resp completeResponse
	status, err := c.do(ctx, http.MethodPost, "/events/"+eventID+"/complete", nil, &resp)
	if err != nil || status != http.StatusOK {
		return "failed"
	}
	return resp.Outcome
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.CompletionsSent) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("users_created", stats.UsersCreated),
		logger.Int("events_created", stats.EventsCreated),
		logger.Int("applications_submitted", stats.ApplicationsSubmitted),
		logger.Int("applications_accepted", stats.ApplicationsAccepted),
		logger.Int("completions_sent", stats.CompletionsSent),
		logger.Int("completions_won", stats.CompletionsWon),
		logger.Int("completions_repeated", stats.CompletionsRepeated),
		logger.Int("completions_failed", stats.CompletionsFailed),
		logger.Int("users_verified", stats.UsersVerified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("completions_per_second", perSecond))
}
