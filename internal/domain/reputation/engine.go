// Package reputation turns completed events into volunteer reputation:
// it closes events exactly once, credits accepted volunteers, maintains
// the organizer counter, awards badges and runs the score reset job.
//
// The engine relies only on single-record atomic operations of the
// repository.Store; it takes no in-process locks.
package reputation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	"github.com/volunteerfinder/reputation/internal/domain/badges"
	"github.com/volunteerfinder/reputation/pkg/logger"
)

// DefaultConcurrency bounds in-flight store calls per fan-out.
const DefaultConcurrency = 16

// BadgeNotifier schedules an asynchronous badge refresh for a user.
type BadgeNotifier interface {
	NotifyBadgeRefresh(ctx context.Context, userID string) error
}

// Engine wires the ledger, scanner and badge evaluator to one store.
type Engine struct {
	store       repository.Store
	ledger      *Ledger
	scanner     *Scanner
	evaluator   badges.Evaluator
	notifier    BadgeNotifier
	concurrency int
	log         logger.Logger
	tracer      trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator replaces the default badge rule table.
func WithEvaluator(ev badges.Evaluator) Option {
	return func(e *Engine) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// WithBadgeNotifier enables follow-up badge refreshes after completions.
func WithBadgeNotifier(n BadgeNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithConcurrency bounds concurrent store calls during fan-out and reset.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine creates an engine over store.
func NewEngine(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		ledger:      NewLedger(store),
		evaluator:   badges.NewEngine(),
		concurrency: DefaultConcurrency,
		log:         logger.NewNop(),
		tracer:      otel.Tracer("github.com/volunteerfinder/reputation/internal/domain/reputation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.scanner = &Scanner{
		apps:        store,
		ledger:      e.ledger,
		concurrency: e.concurrency,
		log:         e.log,
		tracer:      e.tracer,
	}
	return e
}

// Scanner exposes the application scanner.
func (e *Engine) Scanner() *Scanner { return e.scanner }
