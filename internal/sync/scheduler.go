package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is the message poll cadence.
const DefaultPollInterval = 5 * time.Second

// Refresher refreshes the active conversation.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler enqueues one refresh per tick. The queue holds at most one task,
// so ticks that arrive while a refresh is queued are coalesced.
type Scheduler struct {
	target   Refresher
	interval time.Duration
	logger   *zap.Logger
	tasks    chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. A non-positive interval uses DefaultPollInterval.
func NewScheduler(target Refresher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		target:   target,
		interval: interval,
		logger:   logger,
		tasks:    make(chan struct{}, 1),
	}
}

// Start begins ticking.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.tick(ctx)
	go s.work(ctx)
}

// Stop stops the scheduler and waits for the refresh in progress.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Trigger enqueues a refresh unless one is already queued. It reports
// whether a task was enqueued.
func (s *Scheduler) Trigger() bool {
	select {
	case s.tasks <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Trigger()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.tasks:
			// Failures are logged by the engine; the next tick retries.
			_ = s.target.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}
