package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should use the service namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "volunteer")
				So(manager.subsystem, ShouldEqual, "reputation")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["env"], ShouldEqual, "test")
			})

			Convey("And metric names should carry the namespace", func() {
				manager.creditsApplied.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_namespace_test_subsystem_credits_applied_total")
			})
		})

		Convey("When passing empty values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "volunteer")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestReputationMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording completion outcomes", func() {
			before := testutil.ToFloat64(globalManager.completions.WithLabelValues("completed"))
			RecordCompletion("completed")
			RecordCompletion("completed")
			RecordCompletion("already_completed")

			Convey("Then the outcome counter should advance", func() {
				So(testutil.ToFloat64(globalManager.completions.WithLabelValues("completed")), ShouldEqual, before+2)
			})
		})

		Convey("When recording credit fan-out", func() {
			applied := testutil.ToFloat64(globalManager.creditsApplied)
			failed := testutil.ToFloat64(globalManager.creditFailures)
			RecordCreditApplied()
			RecordCreditFailure()
			RecordCreditSkipped("not_accepted")
			RecordFanoutLatency(12.5)

			Convey("Then counters should reflect each call", func() {
				So(testutil.ToFloat64(globalManager.creditsApplied), ShouldEqual, applied+1)
				So(testutil.ToFloat64(globalManager.creditFailures), ShouldEqual, failed+1)
				So(testutil.ToFloat64(globalManager.creditsSkipped.WithLabelValues("not_accepted")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording badges and resets", func() {
			resets := testutil.ToFloat64(globalManager.scoreResets)
			RecordBadgeAwarded("Volunteering First Steps")
			RecordScoreResets(3)
			RecordScoreResets(0)

			Convey("Then counters should reflect each call", func() {
				So(testutil.ToFloat64(globalManager.badgesAwarded.WithLabelValues("Volunteering First Steps")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.scoreResets), ShouldEqual, resets+3)
			})
		})

		Convey("When recording store operations", func() {
			errs := testutil.ToFloat64(globalManager.storeOpErrors.WithLabelValues("get_user"))
			RecordStoreOp("get_user", 1.5, false)
			RecordStoreOp("get_user", 2.5, true)

			Convey("Then only failures should count as errors", func() {
				So(testutil.ToFloat64(globalManager.storeOpErrors.WithLabelValues("get_user")), ShouldEqual, errs+1)
			})
		})
	})
}

func TestOperationalMetrics(t *testing.T) {
	Convey("Given operational metrics", t, func() {
		Convey("When updating queue gauges", func() {
			UpdateQueueSize(12)
			UpdateQueueCapacity(100)

			Convey("Then gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 12)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
			})
		})

		Convey("When recording queue and worker activity", func() {
			So(func() {
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueRejected("full")
				RecordQueueRejected("duplicate")
				UpdateWorkerCount(4)
				RecordWorkerJob(3.0)
				RecordWorkerError()
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequest("/events/{id}/complete", "POST", "200")
				RecordHTTPRequestDuration("/rankings", "GET", "200", 5.0)
			}, ShouldNotPanic)
		})

		Convey("When recording error metrics", func() {
			So(func() {
				RecordErrorByComponent("reputation", "persistence")
				RecordErrorByType("not_found", "warning")
				RecordErrorByEndpoint("/events/{id}/complete", "POST", "not_found")
				RecordErrorLatency("repository", "timeout", 100.0)
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMemoryUsage(1024 * 1024 * 100)
				UpdateSystemGoroutineCount(100)
				RecordSystemGCPauseTime(1.0)
			}, ShouldNotPanic)
			So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldEqual, 100)
		})

		Convey("When reading the registry", func() {
			Convey("Then it should be the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
