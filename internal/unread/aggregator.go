package unread

import (
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/chat"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/store"
)

// Update sources.
const (
	SourcePoll  = "poll"
	SourcePush  = "push"
	SourceFetch = "fetch"
)

// Store persists unread counts across restarts.
type Store interface {
	SetUnreadCount(leadID, channel string, count int) error
	BulkSetUnreadCounts(counts []store.UnreadCount) error
	ListUnreadCounts() ([]store.UnreadCount, error)
}

// Badge is the aggregated unread view of one lead.
type Badge struct {
	LeadID   string
	Total    int
	Channels map[chat.Channel]int
}

// Aggregator keeps, per lead, the latest reported count of every channel.
// Each channel reports its own total, so the last write wins.
type Aggregator struct {
	mu     sync.RWMutex
	counts map[string]map[chat.Channel]int
	store  Store
	bus    *bus.Bus
	log    *zap.Logger
}

// NewAggregator creates an empty aggregator. st may be nil.
func NewAggregator(st Store, b *bus.Bus, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		counts: make(map[string]map[chat.Channel]int),
		store:  st,
		bus:    b,
		log:    log,
	}
}

// Load restores persisted counts.
func (a *Aggregator) Load() error {
	if a.store == nil {
		return nil
	}
	rows, err := a.store.ListUnreadCounts()
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range rows {
		a.setLocked(r.LeadID, chat.Channel(r.Channel), r.Count)
	}
	return nil
}

// Set records the total of one (lead, channel) pair. It reports whether the
// stored value changed.
func (a *Aggregator) Set(source string, c chat.UnreadCount) bool {
	if c.LeadID == "" || c.Channel == "" {
		return false
	}
	if c.Count < 0 {
		c.Count = 0
	}
	metrics.UnreadUpdatesTotal.WithLabelValues(source).Inc()

	a.mu.Lock()
	changed := a.setLocked(c.LeadID, c.Channel, c.Count)
	a.mu.Unlock()
	if !changed {
		return false
	}

	if a.store != nil {
		if err := a.store.SetUnreadCount(c.LeadID, string(c.Channel), c.Count); err != nil {
			a.log.Warn("failed to persist unread count",
				zap.String("lead", c.LeadID),
				zap.String("channel", string(c.Channel)),
				zap.Error(err),
			)
		}
	}
	total, _ := a.Badge(c.LeadID)
	a.bus.Emit(bus.UnreadChanged, "", Badge{LeadID: c.LeadID, Total: total, Channels: a.Channels(c.LeadID)})
	return true
}

// Apply records a batch of totals from one source. Changed rows are
// persisted in one transaction and each touched lead publishes once.
func (a *Aggregator) Apply(source string, counts []chat.UnreadCount) int {
	var changed []store.UnreadCount
	var leads []string
	a.mu.Lock()
	for _, c := range counts {
		if c.LeadID == "" || c.Channel == "" {
			continue
		}
		metrics.UnreadUpdatesTotal.WithLabelValues(source).Inc()
		if !a.setLocked(c.LeadID, c.Channel, max(c.Count, 0)) {
			continue
		}
		changed = append(changed, store.UnreadCount{LeadID: c.LeadID, Channel: string(c.Channel), Count: max(c.Count, 0)})
		if !slices.Contains(leads, c.LeadID) {
			leads = append(leads, c.LeadID)
		}
	}
	a.mu.Unlock()
	if len(changed) == 0 {
		return 0
	}

	if a.store != nil {
		if err := a.store.BulkSetUnreadCounts(changed); err != nil {
			a.log.Warn("failed to persist unread counts", zap.Int("rows", len(changed)), zap.Error(err))
		}
	}
	for _, lead := range leads {
		total, _ := a.Badge(lead)
		a.bus.Emit(bus.UnreadChanged, "", Badge{LeadID: lead, Total: total, Channels: a.Channels(lead)})
	}
	return len(changed)
}

func (a *Aggregator) setLocked(lead string, ch chat.Channel, count int) bool {
	byChannel, ok := a.counts[lead]
	if !ok {
		byChannel = make(map[chat.Channel]int)
		a.counts[lead] = byChannel
	}
	if prev, ok := byChannel[ch]; ok && prev == count {
		return false
	}
	byChannel[ch] = count
	return true
}

// Badge returns the unread sum of a lead across channels and whether a badge
// should be shown. A lead that was never synced and a lead with a zero sum
// both show no badge.
func (a *Aggregator) Badge(lead string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	total := 0
	for _, n := range a.counts[lead] {
		total += n
	}
	return total, total > 0
}

// Known reports whether any channel ever reported a count for lead.
func (a *Aggregator) Known(lead string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.counts[lead]) > 0
}

// Channels returns a copy of the per-channel counts of a lead.
func (a *Aggregator) Channels(lead string) map[chat.Channel]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.counts[lead])
}

// Badges returns the leads that currently show a badge, ordered by lead id.
func (a *Aggregator) Badges() []Badge {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []Badge
	for _, lead := range slices.Sorted(maps.Keys(a.counts)) {
		byChannel := a.counts[lead]
		total := 0
		for _, n := range byChannel {
			total += n
		}
		if total == 0 {
			continue
		}
		out = append(out, Badge{LeadID: lead, Total: total, Channels: maps.Clone(byChannel)})
	}
	return out
}
