package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/volunteerfinder/reputation/internal/config"
)

var configEnvVars = []string{
	"VOLUNTEER_CONFIG",
	"VOLUNTEER_ADDR",
	"VOLUNTEER_STORE_DRIVER",
	"VOLUNTEER_STORE_DSN",
	"VOLUNTEER_CREDIT_CONCURRENCY",
	"VOLUNTEER_AUTO_REFRESH_BADGES",
	"VOLUNTEER_BADGE_WORKER_COUNT",
	"VOLUNTEER_OTEL_SAMPLING_RATIO",
	"VOLUNTEER_REDIS_DB",
	"VOLUNTEER_LOG_FORMAT",
}

func clearConfigEnvVars() {
	for _, name := range configEnvVars {
		_ = os.Unsetenv(name)
	}
}

func createTempConfigFile(content string) string {
	f, err := os.CreateTemp("", "volunteer-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(content); err != nil {
		panic(err)
	}
	return f.Name()
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then the defaults are returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.CreditConcurrency, convey.ShouldEqual, 16)
			})
		})

		convey.Convey("When loading with environment variables", func() {
			_ = os.Setenv("VOLUNTEER_ADDR", ":8080")
			_ = os.Setenv("VOLUNTEER_STORE_DRIVER", "sqlite")
			_ = os.Setenv("VOLUNTEER_STORE_DSN", "file:test.db")
			_ = os.Setenv("VOLUNTEER_CREDIT_CONCURRENCY", "4")
			_ = os.Setenv("VOLUNTEER_AUTO_REFRESH_BADGES", "false")
			_ = os.Setenv("VOLUNTEER_OTEL_SAMPLING_RATIO", "0.25")
			_ = os.Setenv("VOLUNTEER_REDIS_DB", "3")

			cfg, err := config.Load(ctx)

			convey.Convey("Then they override the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.StoreDSN, convey.ShouldEqual, "file:test.db")
				convey.So(cfg.CreditConcurrency, convey.ShouldEqual, 4)
				convey.So(cfg.AutoRefreshBadges, convey.ShouldBeFalse)
				convey.So(cfg.OTelSamplingRatio, convey.ShouldEqual, 0.25)
				convey.So(cfg.RedisDB, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading from a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
store_driver: redis
redis_addr: "cache:6379"
badge_worker_count: 3
log_format: json
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("VOLUNTEER_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values are used and the rest stay default", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverRedis)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "cache:6379")
				convey.So(cfg.BadgeWorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.MaxRankingLimit, convey.ShouldEqual, 100)
			})

			convey.Convey("And env overrides the file", func() {
				_ = os.Setenv("VOLUNTEER_ADDR", ":7070")
				_ = os.Setenv("VOLUNTEER_BADGE_WORKER_COUNT", "9")

				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.BadgeWorkerCount, convey.ShouldEqual, 9)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "cache:6379")
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("VOLUNTEER_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("VOLUNTEER_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a SQL driver has no dsn", func() {
			_ = os.Setenv("VOLUNTEER_STORE_DRIVER", "postgres")

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store_dsn")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the driver is unknown", func() {
			_ = os.Setenv("VOLUNTEER_STORE_DRIVER", "cassandra")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
