package unread

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/chat"
)

// DefaultPollInterval is slower than the message poll.
const DefaultPollInterval = 30 * time.Second

// Fetcher returns authoritative unread totals.
type Fetcher interface {
	FetchUnread(ctx context.Context) ([]chat.UnreadCount, error)
}

// Poller refreshes the aggregator on a fixed interval.
type Poller struct {
	fetcher  Fetcher
	agg      *Aggregator
	interval time.Duration
	log      *zap.Logger
}

// NewPoller creates a poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(f Fetcher, agg *Aggregator, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{fetcher: f, agg: agg, interval: interval, log: log}
}

// Run polls until ctx is cancelled. Failures are logged and retried on the
// next tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn("unread poll failed", zap.Error(err))
	}
}

// PollOnce fetches the totals once and applies them.
func (p *Poller) PollOnce(ctx context.Context) error {
	counts, err := p.fetcher.FetchUnread(ctx)
	if err != nil {
		return err
	}
	if n := p.agg.Apply(SourcePoll, counts); n > 0 {
		p.log.Debug("unread counts updated", zap.Int("changed", n))
	}
	return nil
}
