package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/volunteerfinder/reputation/internal/adapters/mq/queue"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/pkg/logger"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

const defaultJobTimeout = 10 * time.Second

// Refresher re-evaluates a user's badges.
type Refresher interface {
	RefreshBadges(ctx context.Context, userID string) (bool, []model.Badge, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Releaser forgets a pending key.
type Releaser interface {
	Unrecord(ctx context.Context, id string)
}

// Worker processes refresh jobs.
type Worker interface {
	// Run consumes jobs until ctx is done, the queue closes, or Shutdown.
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	refresher  Refresher
	releaser   Releaser
	name       string
	jobTimeout time.Duration

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, r Refresher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		refresher:  r,
		name:       "worker",
		jobTimeout: defaultJobTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "badge refresh failed", logger.String("user_id", job.UserID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the loop after the job in hand and waits for it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerJob(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if w.releaser != nil {
		w.releaser.Unrecord(ctx, job.UserID)
	}

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	updated, held, err := w.refresher.RefreshBadges(jctx, job.UserID)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "refresh_error")
		return fmt.Errorf("refresh badges for %s: %w", job.UserID, err)
	}
	w.logger.Debug(ctx, "badges refreshed",
		logger.String("user_id", job.UserID),
		logger.Bool("updated", updated),
		logger.Int("held", len(held)),
		logger.Duration("queued_for", start.Sub(job.EnqueuedAt)))
	return nil
}

// Pool manages several workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates count workers. count < 1 means one per CPU. opts apply
// to every worker.
func NewPool(count int, q Queue, r Refresher, opts ...Option) *Pool {
	if count < 1 {
		count = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, count),
		queue:   q,
	}
	for i := range p.workers {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, r, wopts...)
	}
	p.logger = p.workers[0].logger
	metrics.UpdateWorkerCount(count)
	return p
}

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Shutdown closes the queue and lets workers drain it. Workers still busy
// when ctx ends are told to stop after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var timedOut int
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			timedOut++
			w.stop()
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut > 0 {
		p.logger.Warn(ctx, "workers still busy at shutdown", logger.Int("workers", timedOut))
		return fmt.Errorf("%d workers did not drain: %w", timedOut, ctx.Err())
	}
	return nil
}
