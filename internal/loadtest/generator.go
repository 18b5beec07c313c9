package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/volunteerfinder/reputation/pkg/logger"
)

const volunteersPerOrganizer = 5

// eventPlan fixes who applies to an event and how each is reviewed.
type eventPlan struct {
	organizer  int
	applicants []int
	accepted   []bool
}

// plan is the deterministic shape of a run, derived from the seed.
type plan struct {
	organizers int
	events     []eventPlan
}

func newPlan(cfg Config) plan {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	p := plan{organizers: max(1, cfg.Events/volunteersPerOrganizer)}
	p.events = make([]eventPlan, cfg.Events)
	for i := range p.events {
		ep := eventPlan{organizer: i % p.organizers}
		ep.applicants = rng.Perm(cfg.Volunteers)[:cfg.ApplicationsPerEvent]
		ep.accepted = make([]bool, len(ep.applicants))
		for j := range ep.accepted {
			ep.accepted[j] = rng.Float64() < cfg.AcceptRatio
		}
		p.events[i] = ep
	}
	return p
}

// expectedScores counts accepted applications per volunteer index.
func (p plan) expectedScores(volunteers int) []int64 {
	out := make([]int64, volunteers)
	for _, ep := range p.events {
		for j, v := range ep.applicants {
			if ep.accepted[j] {
				out[v]++
			}
		}
	}
	return out
}

// eventsPerOrganizer counts events owned by each organizer index.
func (p plan) eventsPerOrganizer() []int64 {
	out := make([]int64, p.organizers)
	for _, ep := range p.events {
		out[ep.organizer]++
	}
	return out
}

// fixture holds the ids the service assigned while the plan was applied.
type fixture struct {
	plan       plan
	volunteers []string
	organizers []string
	events     []string
}

// buildFixture creates every user, event and reviewed application in p.
func buildFixture(ctx context.Context, c *client, cfg Config, p plan, stats *Stats, log logger.Logger) (*fixture, error) {
	f := &fixture{
		plan:       p,
		volunteers: make([]string, cfg.Volunteers),
		organizers: make([]string, p.organizers),
		events:     make([]string, len(p.events)),
	}

	log.Info(ctx, "creating users",
		logger.Int("volunteers", cfg.Volunteers), logger.Int("organizers", p.organizers))
	if err := createUsers(ctx, c, cfg.Workers, "volunteer", f.volunteers); err != nil {
		return nil, err
	}
	if err := createUsers(ctx, c, cfg.Workers, "organizer", f.organizers); err != nil {
		return nil, err
	}
	stats.UsersCreated = len(f.volunteers) + len(f.organizers)

	log.Info(ctx, "creating events with reviewed applications", logger.Int("events", len(p.events)))
	var (
		mu                  sync.Mutex
		submitted, accepted int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, ep := range p.events {
		g.Go(func() error {
			var ev idResponse
			body := map[string]string{
				"creator_user_id": f.organizers[ep.organizer],
				"description":     fmt.Sprintf("load test event %d", i),
			}
			if err := c.expect(gctx, http.StatusCreated, http.MethodPost, "/events", body, &ev); err != nil {
				return err
			}
			f.events[i] = ev.EventID

			for j, v := range ep.applicants {
				var app idResponse
				if err := c.expect(gctx, http.StatusCreated, http.MethodPost, "/events/"+ev.EventID+"/applications",
					map[string]string{"applicant_user_id": f.volunteers[v]}, &app); err != nil {
					return err
				}
				status := "rejected"
				if ep.accepted[j] {
					status = "accepted"
				}
				if err := c.expect(gctx, http.StatusOK, http.MethodPost, "/applications/"+app.ApplicationID+"/review",
					map[string]string{"status": status}, nil); err != nil {
					return err
				}
				mu.Lock()
				submitted++
				if ep.accepted[j] {
					accepted++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("create events: %w", err)
	}
	stats.EventsCreated = len(f.events)
	stats.ApplicationsSubmitted = submitted
	stats.ApplicationsAccepted = accepted
	return f, nil
}

func createUsers(ctx context.Context, c *client, workers int, role string, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range ids {
		g.Go(func() error {
			name := role + "-" + uuid.NewString()[:8]
			var u userResponse
			body := map[string]string{"username": name, "email": name + "@loadtest.local", "password": "x"}
			if err := c.expect(gctx, http.StatusCreated, http.MethodPost, "/users", body, &u); err != nil {
				return err
			}
			ids[i] = u.UserID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("create %s users: %w", role, err)
	}
	return nil
}
