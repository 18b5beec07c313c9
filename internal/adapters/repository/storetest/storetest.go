// Package storetest holds the behavioral contract every repository.Store
// backend must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// Factory returns an empty store. It is invoked once per leaf scenario.
type Factory func(t *testing.T) repository.Store

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	runEvents(t, newStore)
	runUsers(t, newStore)
	runCounters(t, newStore)
	runBadges(t, newStore)
	runScores(t, newStore)
	runApplications(t, newStore)
}

func open(t *testing.T, newStore Factory) repository.Store {
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runEvents(t *testing.T, newStore Factory) {
	Convey("Given an event store", t, func() {
		ctx := context.Background()
		s := open(t, newStore)
		So(s.CreateEvent(ctx, model.Event{
			EventID:       "e1",
			CreatorUserID: "u1",
			Description:   "beach cleanup",
			Applications:  []string{"a1", "a2"},
			Hits:          7,
		}), ShouldBeNil)

		Convey("When reading it back", func() {
			e, err := s.GetEvent(ctx, "e1")

			Convey("Then every field round trips", func() {
				So(err, ShouldBeNil)
				So(e.CreatorUserID, ShouldEqual, "u1")
				So(e.Description, ShouldEqual, "beach cleanup")
				So(e.Applications, ShouldResemble, []string{"a1", "a2"})
				So(e.Hits, ShouldEqual, 7)
				So(e.Completed, ShouldBeFalse)
			})
		})

		Convey("When reading an unknown event", func() {
			_, err := s.GetEvent(ctx, "missing")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When marking it completed twice", func() {
			first, err1 := s.MarkEventCompleted(ctx, "e1")
			second, err2 := s.MarkEventCompleted(ctx, "e1")

			Convey("Then only the first call transitions", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				e, err := s.GetEvent(ctx, "e1")
				So(err, ShouldBeNil)
				So(e.Completed, ShouldBeTrue)
			})
		})

		Convey("When many callers race to complete it", func() {
			const callers = 16
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.MarkEventCompleted(ctx, "e1")
					if err == nil && ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(wins, ShouldEqual, 1)
			})
		})

		Convey("When marking an unknown event", func() {
			_, err := s.MarkEventCompleted(ctx, "missing")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When appending applications", func() {
			So(s.AppendEventApplication(ctx, "e1", "a3"), ShouldBeNil)
			So(s.AppendEventApplication(ctx, "e1", "a3"), ShouldBeNil)

			Convey("Then the id is added once at the end", func() {
				e, err := s.GetEvent(ctx, "e1")
				So(err, ShouldBeNil)
				So(e.Applications, ShouldResemble, []string{"a1", "a2", "a3"})
			})

			Convey("And appending after completion is refused", func() {
				_, err := s.MarkEventCompleted(ctx, "e1")
				So(err, ShouldBeNil)
				err = s.AppendEventApplication(ctx, "e1", "a4")
				So(errors.Is(err, repository.ErrEventCompleted), ShouldBeTrue)
				e, err := s.GetEvent(ctx, "e1")
				So(err, ShouldBeNil)
				So(e.Applications, ShouldNotContain, "a4")
			})
		})

		Convey("When appending to an unknown event", func() {
			err := s.AppendEventApplication(ctx, "missing", "a1")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When deleting it", func() {
			So(s.DeleteEvent(ctx, "e1"), ShouldBeNil)

			Convey("Then it is gone", func() {
				_, err := s.GetEvent(ctx, "e1")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(s.DeleteEvent(ctx, "e1"), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When creating an event without an id", func() {
			err := s.CreateEvent(ctx, model.Event{Description: "x"})

			Convey("Then ErrInvalidArgument is returned", func() {
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func runUsers(t *testing.T, newStore Factory) {
	Convey("Given a user store", t, func() {
		ctx := context.Background()
		s := open(t, newStore)
		So(s.CreateUser(ctx, model.User{
			UserID:    "u1",
			FirstName: "Ada",
			LastName:  "Lovelace",
			Age:       36,
			Email:     "ada@example.org",
			Username:  "ada",
			Events:    []string{"e1"},
		}), ShouldBeNil)

		Convey("When reading it back", func() {
			u, err := s.GetUser(ctx, "u1")

			Convey("Then counters stay absent", func() {
				So(err, ShouldBeNil)
				So(u.FirstName, ShouldEqual, "Ada")
				So(u.Age, ShouldEqual, 36)
				So(u.Events, ShouldResemble, []string{"e1"})
				So(u.Score, ShouldBeNil)
				So(u.CompletedEvents, ShouldBeNil)
				So(u.Badges, ShouldBeEmpty)
			})
		})

		Convey("When reading an unknown user", func() {
			_, err := s.GetUser(ctx, "missing")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When adding references", func() {
			So(s.AddUserRef(ctx, "u1", model.RefEvents, "e2"), ShouldBeNil)
			So(s.AddUserRef(ctx, "u1", model.RefEvents, "e2"), ShouldBeNil)
			So(s.AddUserRef(ctx, "u1", model.RefApplications, "a1"), ShouldBeNil)

			Convey("Then each id appears once in insertion order", func() {
				u, err := s.GetUser(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.Events, ShouldResemble, []string{"e1", "e2"})
				So(u.Applications, ShouldResemble, []string{"a1"})
			})

			Convey("And removing drops only that id", func() {
				So(s.RemoveUserRef(ctx, "u1", model.RefEvents, "e1"), ShouldBeNil)
				So(s.RemoveUserRef(ctx, "u1", model.RefApplications, "nope"), ShouldBeNil)
				u, err := s.GetUser(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.Events, ShouldResemble, []string{"e2"})
				So(u.Applications, ShouldResemble, []string{"a1"})
			})
		})

		Convey("When touching references of an unknown user", func() {
			err := s.AddUserRef(ctx, "missing", model.RefEvents, "e1")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(s.RemoveUserRef(ctx, "missing", model.RefEvents, "e1"), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When using an unknown list", func() {
			err := s.AddUserRef(ctx, "u1", model.RefList("friends"), "u2")

			Convey("Then ErrInvalidArgument is returned", func() {
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func runCounters(t *testing.T, newStore Factory) {
	Convey("Given a user without counters", t, func() {
		ctx := context.Background()
		s := open(t, newStore)
		So(s.CreateUser(ctx, model.User{UserID: "u1"}), ShouldBeNil)

		Convey("When incrementing an absent counter", func() {
			score, err := s.IncrementCounter(ctx, "u1", model.CounterScore, 10)

			Convey("Then it starts from zero", func() {
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 10)
				u, err := s.GetUser(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.ScoreValue(), ShouldEqual, 10)
				So(u.CompletedEvents, ShouldBeNil)
			})
		})

		Convey("When incrementing concurrently", func() {
			const n = 25
			var wg sync.WaitGroup
			errs := make(chan error, 2*n)
			for i := 0; i < n; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, err := s.IncrementCounter(ctx, "u1", model.CounterScore, 10)
					errs <- err
				}()
				go func() {
					defer wg.Done()
					_, err := s.IncrementCounter(ctx, "u1", model.CounterCompletedEvents, 1)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then no update is lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				u, err := s.GetUser(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.ScoreValue(), ShouldEqual, 10*n)
				So(u.CompletedEventsValue(), ShouldEqual, n)
			})
		})

		Convey("When incrementing an unknown user", func() {
			_, err := s.IncrementCounter(ctx, "missing", model.CounterScore, 10)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When incrementing an unknown counter", func() {
			_, err := s.IncrementCounter(ctx, "u1", model.Counter("karma"), 1)

			Convey("Then ErrInvalidArgument is returned", func() {
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func runBadges(t *testing.T, newStore Factory) {
	Convey("Given a user holding one badge", t, func() {
		ctx := context.Background()
		s := open(t, newStore)
		held := model.Badge{Name: "Event Creator First Steps", Description: "Created 1 events"}
		So(s.CreateUser(ctx, model.User{UserID: "u1", Badges: []model.Badge{held}}), ShouldBeNil)

		Convey("When adding new and already held badges", func() {
			got, err := s.AddBadges(ctx, "u1", []model.Badge{
				{Name: "Event Creator First Steps", Description: "changed"},
				{Name: "Volunteering First Steps", Description: "Volunteered in 1 events"},
			})

			Convey("Then the result is the union in earn order", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []model.Badge{
					held,
					{Name: "Volunteering First Steps", Description: "Volunteered in 1 events"},
				})
				u, err := s.GetUser(ctx, "u1")
				So(err, ShouldBeNil)
				So(u.Badges, ShouldResemble, got)
			})
		})

		Convey("When adding nothing", func() {
			got, err := s.AddBadges(ctx, "u1", nil)

			Convey("Then the held set is returned unchanged", func() {
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []model.Badge{held})
			})
		})

		Convey("When adding to an unknown user", func() {
			_, err := s.AddBadges(ctx, "missing", []model.Badge{held})

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func runScores(t *testing.T, newStore Factory) {
	Convey("Given users with absent, zero and positive scores", t, func() {
		ctx := context.Background()
		s := open(t, newStore)
		So(s.CreateUser(ctx, model.User{UserID: "absent"}), ShouldBeNil)
		So(s.CreateUser(ctx, model.User{UserID: "zero", Score: model.Int64(0)}), ShouldBeNil)
		So(s.CreateUser(ctx, model.User{UserID: "high", Score: model.Int64(30)}), ShouldBeNil)
		So(s.CreateUser(ctx, model.User{UserID: "tie-b", Score: model.Int64(20)}), ShouldBeNil)
		So(s.CreateUser(ctx, model.User{UserID: "tie-a", Score: model.Int64(20)}), ShouldBeNil)

		Convey("When listing unscored users", func() {
			ids, err := s.ListUnscoredUsers(ctx)

			Convey("Then absent and zero scores are listed", func() {
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"absent", "zero"})
			})
		})

		Convey("When resetting conditionally", func() {
			absent, err1 := s.ResetScoreIfUnscored(ctx, "absent")
			zero, err2 := s.ResetScoreIfUnscored(ctx, "zero")
			high, err3 := s.ResetScoreIfUnscored(ctx, "high")

			Convey("Then falsy scores are written and truthy ones kept", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(absent, ShouldBeTrue)
				So(zero, ShouldBeTrue)
				So(high, ShouldBeFalse)

				u, err := s.GetUser(ctx, "absent")
				So(err, ShouldBeNil)
				So(u.Score, ShouldNotBeNil)
				So(*u.Score, ShouldEqual, 0)
				u, err = s.GetUser(ctx, "high")
				So(err, ShouldBeNil)
				So(u.ScoreValue(), ShouldEqual, 30)
			})
		})

		Convey("When a credit lands before the reset write", func() {
			_, err := s.IncrementCounter(ctx, "absent", model.CounterScore, 10)
			So(err, ShouldBeNil)
			wrote, err := s.ResetScoreIfUnscored(ctx, "absent")

			Convey("Then the credit is not clobbered", func() {
				So(err, ShouldBeNil)
				So(wrote, ShouldBeFalse)
				u, err := s.GetUser(ctx, "absent")
				So(err, ShouldBeNil)
				So(u.ScoreValue(), ShouldEqual, 10)
			})
		})

		Convey("When resetting an unknown user", func() {
			_, err := s.ResetScoreIfUnscored(ctx, "missing")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When ranking", func() {
			top, err := s.TopByScore(ctx, 3)

			Convey("Then order is score desc then id asc", func() {
				So(err, ShouldBeNil)
				So(ids(top), ShouldResemble, []string{"high", "tie-a", "tie-b"})
			})

			Convey("And a limit beyond the population returns everyone", func() {
				all, err := s.TopByScore(ctx, 50)
				So(err, ShouldBeNil)
				So(ids(all), ShouldResemble, []string{"high", "tie-a", "tie-b", "absent", "zero"})
			})

			Convey("And ranking follows increments", func() {
				_, err := s.IncrementCounter(ctx, "zero", model.CounterScore, 40)
				So(err, ShouldBeNil)
				top, err := s.TopByScore(ctx, 1)
				So(err, ShouldBeNil)
				So(ids(top), ShouldResemble, []string{"zero"})
				So(top[0].ScoreValue(), ShouldEqual, 40)
			})

			Convey("And a non-positive limit is refused", func() {
				_, err := s.TopByScore(ctx, 0)
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
			})
		})
	})
}

func runApplications(t *testing.T, newStore Factory) {
	Convey("Given an application store", t, func() {
		ctx := context.Background()
		s := open(t, newStore)
		So(s.CreateApplication(ctx, model.Application{
			ApplicationID:   "a1",
			ApplicantUserID: "u1",
			EventID:         "e1",
			Status:          model.StatusPending,
		}), ShouldBeNil)

		Convey("When reading it back", func() {
			a, err := s.GetApplication(ctx, "a1")

			Convey("Then fields round trip", func() {
				So(err, ShouldBeNil)
				So(a.ApplicantUserID, ShouldEqual, "u1")
				So(a.EventID, ShouldEqual, "e1")
				So(a.Status, ShouldEqual, model.StatusPending)
			})
		})

		Convey("When reviewing it", func() {
			So(s.SetApplicationStatus(ctx, "a1", model.StatusAccepted), ShouldBeNil)

			Convey("Then the status changes", func() {
				a, err := s.GetApplication(ctx, "a1")
				So(err, ShouldBeNil)
				So(a.Accepted(), ShouldBeTrue)
			})
		})

		Convey("When setting an invalid status", func() {
			err := s.SetApplicationStatus(ctx, "a1", model.Status("maybe"))

			Convey("Then ErrInvalidArgument is returned", func() {
				So(errors.Is(err, repository.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When operating on an unknown application", func() {
			_, err := s.GetApplication(ctx, "missing")

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(s.SetApplicationStatus(ctx, "missing", model.StatusAccepted), repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(s.DeleteApplication(ctx, "missing"), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When deleting it", func() {
			So(s.DeleteApplication(ctx, "a1"), ShouldBeNil)

			Convey("Then it is gone", func() {
				_, err := s.GetApplication(ctx, "a1")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func ids(users []model.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.UserID
	}
	return out
}

// Seed writes a small fixture used by higher-level tests: one organizer,
// n volunteers with accepted applications, and an open event.
func Seed(ctx context.Context, s repository.Store, eventID string, volunteers int) error {
	if err := s.CreateUser(ctx, model.User{UserID: "organizer"}); err != nil {
		return err
	}
	e := model.Event{EventID: eventID, CreatorUserID: "organizer"}
	for i := 0; i < volunteers; i++ {
		uid := fmt.Sprintf("v%d", i)
		aid := fmt.Sprintf("%s-a%d", eventID, i)
		if err := s.CreateUser(ctx, model.User{UserID: uid}); err != nil {
			return err
		}
		if err := s.CreateApplication(ctx, model.Application{
			ApplicationID: aid, ApplicantUserID: uid, EventID: eventID, Status: model.StatusAccepted,
		}); err != nil {
			return err
		}
		e.Applications = append(e.Applications, aid)
	}
	return s.CreateEvent(ctx, e)
}
