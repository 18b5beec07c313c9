package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/config"
	"github.com/volunteerfinder/reputation/pkg/logger"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			t.Setenv("VOLUNTEER_ADDR", ":8080")
			t.Setenv("VOLUNTEER_BADGE_QUEUE_SIZE", "1000")
			t.Setenv("VOLUNTEER_BADGE_WORKER_COUNT", "4")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BadgeQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.BadgeWorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When building the HTTP stack", func() {
			ctx := context.Background()
			cfg := config.New()
			svc := newService(cfg, repository.NewMemoryStore(), logger.NewNop())
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			mux := newMux(ctx, svc)

			convey.Convey("Then API and docs routes are served", func() {
				for _, path := range []string{"/healthz", "/openapi.yaml", "/api-docs", "/rankings", "/stats"} {
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("And the server carries timeouts", func() {
				srv := newHTTPServer(":0", mux)
				convey.So(srv.ReadTimeout, convey.ShouldEqual, readTimeout)
				convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
				convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a run configuration", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.BadgeWorkerCount = 1

		convey.Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			convey.Convey("Then run shuts down cleanly", func() {
				convey.So(run(ctx, cfg, logger.NewNop()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the store cannot be opened", func() {
			cfg.StoreDriver = "cassandra"

			convey.Convey("Then run reports the error", func() {
				convey.So(run(context.Background(), cfg, logger.NewNop()), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When the system metrics updater runs until its deadline", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.Convey("Then it returns without panicking", func() {
				convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When metrics are updated directly", func() {
			svc := newService(config.New(), repository.NewMemoryStore(), logger.NewNop())
			defer func() { _ = svc.Stop(context.Background()) }()

			convey.Convey("Then nothing panics", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			})
		})
	})
}
