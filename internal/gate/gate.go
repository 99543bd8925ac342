package gate

import (
	"sync"
	"time"
)

// DefaultWindow is the provider's customer-care window.
const DefaultWindow = 24 * time.Hour

// Window is the derived state of the session window.
type Window string

const (
	Open    Window = "OPEN"
	Expired Window = "EXPIRED"
)

// Gate tracks the last inbound message of one conversation. The zero value
// is not usable; call New.
type Gate struct {
	mu          sync.RWMutex
	window      time.Duration
	lastInbound time.Time
}

// New creates a gate with the given window length. A non-positive length
// falls back to DefaultWindow.
func New(window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{window: window}
}

// Observe records an inbound message timestamp seen by reconciliation. Older
// timestamps are ignored, so the window only ever moves forward.
func (g *Gate) Observe(lastInbound time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lastInbound.After(g.lastInbound) {
		g.lastInbound = lastInbound
	}
}

// LastInbound returns the newest inbound timestamp observed, zero if none.
func (g *Gate) LastInbound() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastInbound
}

// State returns the window state at now. A conversation that never received
// an inbound message is Expired.
func (g *Gate) State(now time.Time) Window {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.lastInbound.IsZero() {
		return Expired
	}
	if now.Sub(g.lastInbound) < g.window {
		return Open
	}
	return Expired
}

// CanSendFreeform reports whether a free-form send is allowed at now.
func (g *Gate) CanSendFreeform(now time.Time) bool {
	return g.State(now) == Open
}

// ExpiresAt returns when the window closes, zero if it was never opened.
func (g *Gate) ExpiresAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.lastInbound.IsZero() {
		return time.Time{}
	}
	return g.lastInbound.Add(g.window)
}
