// Package workers runs the background side of the sync engine: a
// bounded job pool the dispatcher submits into, and a periodic sweeper
// that re-syncs stale calendars.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mokkoji/syncd/internal/sync/application"
	"github.com/mokkoji/syncd/internal/sync/domain"
)

// ErrQueueFull means the pool cannot take more jobs right now.
var ErrQueueFull = errors.New("sync job queue is full")

// Pool is a fixed-size worker pool over a bounded queue. Submit never
// blocks; callers decide what a full queue means.
type Pool struct {
	queue   chan func(context.Context)
	workers int
	logger  *slog.Logger

	// active counts jobs queued or running.
	active atomic.Int64
}

// NewPool creates a pool with the given worker count and queue depth.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   make(chan func(context.Context), queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(job func(ctx context.Context)) error {
	p.active.Add(1)
	select {
	case p.queue <- job:
		return nil
	default:
		p.active.Add(-1)
		return ErrQueueFull
	}
}

// WaitIdle blocks until every queued job has finished or the context
// is cancelled. The CLI uses this so queued pulls complete before the
// process exits.
func (p *Pool) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.active.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run blocks until the context is cancelled, executing queued jobs on
// the pool's workers. Each job receives the pool's context so a
// shutdown cancels in-flight syncs.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			p.logger.Debug("sync worker started", "worker", worker)
			for {
				select {
				case <-ctx.Done():
					p.logger.Debug("sync worker stopped", "worker", worker)
					return nil
				case job := <-p.queue:
					job(ctx)
					p.active.Add(-1)
				}
			}
		})
	}
	return g.Wait()
}

// Sweeper periodically re-syncs calendars whose sync state has gone
// stale, so data stays fresh without any external trigger.
type Sweeper struct {
	states     domain.SyncStateRepository
	engine     application.CalendarSyncer
	jobs       application.JobSubmitter
	interval   time.Duration
	staleAfter time.Duration
	batchLimit int
	opts       application.SyncOptions
	logger     *slog.Logger
}

// SweeperDeps bundles the sweeper's collaborators.
type SweeperDeps struct {
	States   domain.SyncStateRepository
	Engine   application.CalendarSyncer
	Jobs     application.JobSubmitter
	Interval time.Duration
	Limit    int
	Options  application.SyncOptions
	Logger   *slog.Logger
}

// NewSweeper creates the periodic sweeper. States untouched for one
// full interval count as stale.
func NewSweeper(deps SweeperDeps) *Sweeper {
	interval := deps.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	limit := deps.Limit
	if limit <= 0 {
		limit = 50
	}
	opts := deps.Options
	if opts == (application.SyncOptions{}) {
		opts = application.DefaultSyncOptions()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		states:     deps.States,
		engine:     deps.Engine,
		jobs:       deps.Jobs,
		interval:   interval,
		staleAfter: interval,
		batchLimit: limit,
		opts:       opts,
		logger:     logger,
	}
}

// Run blocks until the context is cancelled, sweeping once per
// interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep submits one sync job per stale calendar. A triple whose lease
// is held simply loses this round; the next sweep retries it.
func (s *Sweeper) Sweep(ctx context.Context) {
	states, err := s.states.FindPendingSync(ctx, s.staleAfter, s.batchLimit)
	if err != nil {
		s.logger.Error("sweep query failed", "error", err)
		return
	}
	if len(states) == 0 {
		return
	}

	s.logger.Info("sweeping stale calendars", "count", len(states))
	for _, state := range states {
		userID := state.UserID()
		connectionID := state.ConnectionID()
		calendarID := state.ExternalCalendarID()

		err := s.jobs.Submit(func(jobCtx context.Context) {
			_, err := s.engine.SyncCalendar(jobCtx, userID, connectionID, calendarID, s.opts)
			switch {
			case errors.Is(err, application.ErrSyncAlreadyRunning):
				s.logger.Debug("sweep skipped running sync", "connection_id", connectionID, "calendar_id", calendarID)
			case err != nil:
				s.logger.Warn("sweep sync failed",
					"connection_id", connectionID,
					"calendar_id", calendarID,
					"error", err,
				)
			}
		})
		if err != nil {
			s.logger.Warn("sweep job rejected", "connection_id", connectionID, "error", err)
			return
		}
	}
}
