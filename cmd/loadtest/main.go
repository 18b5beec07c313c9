package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/volunteerfinder/reputation/internal/loadtest"
	"github.com/volunteerfinder/reputation/pkg/logger"
)

const (
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		volunteers  = flag.Int("volunteers", loadtest.DefaultVolunteers, "Number of volunteer users to create")
		events      = flag.Int("events", loadtest.DefaultEvents, "Number of events to create")
		apps        = flag.Int("applications", loadtest.DefaultApplicationsPerEvent, "Applicants per event")
		accept      = flag.Float64("accept", loadtest.DefaultAcceptRatio, "Share of applications accepted")
		completions = flag.Int("completions", loadtest.DefaultCompletionsPerEvent, "Concurrent complete requests per event")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		topN        = flag.Int("top", loadtest.DefaultTopN, "Rankings page size to verify")
		timeout     = flag.Duration("timeout", loadtest.DefaultTimeout, "HTTP request timeout")
		seed        = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for the fixture plan")
		format      = flag.String("log-format", "text", "Log format (text|json)")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(2)
	}
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := loadtest.Config{
		BaseURL:              *baseURL,
		Volunteers:           *volunteers,
		Events:               *events,
		ApplicationsPerEvent: *apps,
		AcceptRatio:          *accept,
		CompletionsPerEvent:  *completions,
		Workers:              *workers,
		TopN:                 *topN,
		Timeout:              *timeout,
		Seed:                 *seed,
	}
	log.Info(ctx, "load run seed", logger.Any("seed", cfg.Seed))

	if _, err := loadtest.Run(ctx, cfg, log); err != nil {
		log.Error(ctx, "load run failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
