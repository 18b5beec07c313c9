package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	service "github.com/volunteerfinder/reputation/internal/app"
	"github.com/volunteerfinder/reputation/internal/config"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/internal/domain/reputation"
)

func newUser(ctx context.Context, svc *service.Service, name string) model.User {
	u, err := svc.CreateUser(ctx, service.CreateUserInput{Username: name, Email: name + "@example.org"})
	So(err, ShouldBeNil)
	return u
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithMaxRankingLimit(2))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		org := newUser(ctx, svc, "org")
		alice := newUser(ctx, svc, "alice")
		bob := newUser(ctx, svc, "bob")

		ev, err := svc.CreateEvent(ctx, model.Event{CreatorUserID: org.UserID, Description: "beach cleanup"})
		So(err, ShouldBeNil)

		Convey("A new user starts with score zero and empty lists", func() {
			So(alice.UserID, ShouldNotBeEmpty)
			So(*alice.Score, ShouldEqual, 0)
			So(alice.Applications, ShouldBeEmpty)
		})

		Convey("A new event is open and linked to its creator", func() {
			So(ev.Completed, ShouldBeFalse)
			got, err := svc.GetUser(ctx, org.UserID)
			So(err, ShouldBeNil)
			So(got.Events, ShouldResemble, []string{ev.EventID})
		})

		Convey("When applications are submitted and reviewed", func() {
			a1, err := svc.SubmitApplication(ctx, ev.EventID, alice.UserID)
			So(err, ShouldBeNil)
			So(a1.Status, ShouldEqual, model.StatusPending)
			a2, err := svc.SubmitApplication(ctx, ev.EventID, bob.UserID)
			So(err, ShouldBeNil)

			_, err = svc.ReviewApplication(ctx, a1.ApplicationID, model.StatusAccepted)
			So(err, ShouldBeNil)
			_, err = svc.ReviewApplication(ctx, a2.ApplicationID, model.StatusRejected)
			So(err, ShouldBeNil)

			Convey("And the event is completed", func() {
				report, err := svc.CompleteEvent(ctx, ev.EventID)
				So(err, ShouldBeNil)
				So(report.Outcome, ShouldEqual, reputation.OutcomeCompleted)
				So(report.Credited, ShouldEqual, 1)

				Convey("Then only the accepted volunteer gains a point", func() {
					a, err := svc.GetUser(ctx, alice.UserID)
					So(err, ShouldBeNil)
					So(a.ScoreValue(), ShouldEqual, 1)
					b, err := svc.GetUser(ctx, bob.UserID)
					So(err, ShouldBeNil)
					So(b.ScoreValue(), ShouldEqual, 0)
				})

				Convey("Then badges are refreshed in the background", func() {
					So(eventually(func() bool {
						a, err := svc.GetUser(ctx, alice.UserID)
						return err == nil && a.HasBadge("Volunteering First Steps")
					}), ShouldBeTrue)
					So(eventually(func() bool {
						o, err := svc.GetUser(ctx, org.UserID)
						return err == nil && o.HasBadge("Event Completer First Steps") && o.HasBadge("Event Creator First Steps")
					}), ShouldBeTrue)
				})

				Convey("Then the event no longer accepts applications or reviews", func() {
					_, err := svc.SubmitApplication(ctx, ev.EventID, bob.UserID)
					So(errors.Is(err, service.ErrEventClosed), ShouldBeTrue)
					_, err = svc.ReviewApplication(ctx, a2.ApplicationID, model.StatusAccepted)
					So(errors.Is(err, service.ErrEventClosed), ShouldBeTrue)
				})

				Convey("Then rankings put the volunteer first and respect the cap", func() {
					top, err := svc.TopRankedUsers(ctx, 50)
					So(err, ShouldBeNil)
					So(top, ShouldHaveLength, 2)
					So(top[0].UserID, ShouldEqual, alice.UserID)
				})
			})

			Convey("And the event is deleted", func() {
				So(svc.DeleteEvent(ctx, ev.EventID), ShouldBeNil)

				Convey("Then applicants no longer reference its applications", func() {
					a, err := svc.GetUser(ctx, alice.UserID)
					So(err, ShouldBeNil)
					So(a.Applications, ShouldBeEmpty)
					_, err = svc.GetEvent(ctx, ev.EventID)
					So(errors.Is(err, reputation.ErrEventNotFound), ShouldBeTrue)
				})
			})
		})

		Convey("Invalid requests are rejected", func() {
			_, err := svc.CreateUser(ctx, service.CreateUserInput{Username: "nomail"})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.CreateEvent(ctx, model.Event{CreatorUserID: "ghost"})
			So(errors.Is(err, reputation.ErrUserNotFound), ShouldBeTrue)

			_, err = svc.SubmitApplication(ctx, "missing", alice.UserID)
			So(errors.Is(err, reputation.ErrEventNotFound), ShouldBeTrue)

			_, err = svc.ReviewApplication(ctx, "missing", model.StatusAccepted)
			So(errors.Is(err, service.ErrApplicationNotFound), ShouldBeTrue)

			_, err = svc.ReviewApplication(ctx, "missing", model.StatusPending)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.TopRankedUsers(ctx, 0)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Stats report the running pipeline", func() {
			stats := svc.Stats()
			So(stats["started"], ShouldEqual, true)
			So(stats["badge_workers"], ShouldEqual, 2)
		})
	})
}

func TestService_NotifyBadgeRefresh(t *testing.T) {
	Convey("Given a service whose workers are not running", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithQueueSize(1))
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When the same user is notified twice", func() {
			So(svc.NotifyBadgeRefresh(ctx, "u1"), ShouldBeNil)
			So(svc.NotifyBadgeRefresh(ctx, "u1"), ShouldBeNil)

			Convey("Then only one job is queued", func() {
				So(svc.Stats()["badge_queue_length"], ShouldEqual, 1)
				So(svc.Stats()["badge_pending"], ShouldEqual, int64(1))
			})

			Convey("And another user is rejected by the full queue and not left pending", func() {
				err := svc.NotifyBadgeRefresh(ctx, "u2")
				So(err, ShouldNotBeNil)
				So(svc.Stats()["badge_pending"], ShouldEqual, int64(1))
			})
		})
	})
}

func TestOpenStore(t *testing.T) {
	Convey("Given store configurations", t, func() {
		ctx := context.Background()

		Convey("The memory driver opens an instrumented in-memory store", func() {
			s, err := service.OpenStore(ctx, config.New())
			So(err, ShouldBeNil)
			_, ok := s.(*repository.Instrumented)
			So(ok, ShouldBeTrue)
			So(s.Close(), ShouldBeNil)
		})

		Convey("The sqlite driver opens a file-backed store", func() {
			cfg := config.New()
			cfg.StoreDriver = config.DriverSQLite
			cfg.StoreDSN = filepath.Join(t.TempDir(), "volunteer.db")
			s, err := service.OpenStore(ctx, cfg)
			So(err, ShouldBeNil)
			defer func() { _ = s.Close() }()

			So(s.CreateUser(ctx, model.User{UserID: "u1"}), ShouldBeNil)
			n, err := s.IncrementCounter(ctx, "u1", model.CounterScore, 1)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("An unknown driver is refused", func() {
			cfg := config.New()
			cfg.StoreDriver = "cassandra"
			_, err := service.OpenStore(ctx, cfg)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
