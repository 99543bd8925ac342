package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RefreshDuration tracks latest-page fetch and reconcile duration.
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadchat_refresh_duration_seconds",
			Help:    "Duration of a conversation refresh in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"result"},
	)

	// RefreshesTotal counts refreshes by outcome (ok, error, stale, skipped).
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_refreshes_total",
			Help: "Total conversation refreshes",
		},
		[]string{"result"},
	)

	// SendsTotal counts outbound sends by kind and outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_sends_total",
			Help: "Total outbound sends",
		},
		[]string{"kind", "result"},
	)

	// UploadsTotal counts media upload attempts by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_uploads_total",
			Help: "Total media upload attempts",
		},
		[]string{"result"},
	)

	// UploadsInFlight tracks uploads currently running.
	UploadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadchat_uploads_in_flight",
			Help: "Number of media uploads in flight",
		},
	)

	// PendingMessages tracks unresolved optimistic entries of the active conversation.
	PendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadchat_pending_messages",
			Help: "Unresolved optimistic messages in the active conversation",
		},
	)

	// ResolvedTotal counts optimistic entries resolved by reconciliation.
	ResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadchat_resolved_total",
			Help: "Optimistic messages resolved by reconciliation",
		},
	)

	// UnreadUpdatesTotal counts unread count updates by source.
	UnreadUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_unread_updates_total",
			Help: "Unread count updates received",
		},
		[]string{"source"},
	)

	// BusEventsDropped counts events a slow subscriber missed.
	BusEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadchat_bus_events_dropped_total",
			Help: "Bus events dropped because a subscriber was full",
		},
		[]string{"namespace"},
	)
)

// RecordRefresh records the outcome of one refresh.
func RecordRefresh(result string, seconds float64) {
	RefreshesTotal.WithLabelValues(result).Inc()
	if seconds > 0 {
		RefreshDuration.WithLabelValues(result).Observe(seconds)
	}
}

// RecordSend records the outcome of one outbound send.
func RecordSend(kind, result string) {
	SendsTotal.WithLabelValues(kind, result).Inc()
}

// RecordUpload records the outcome of one upload attempt.
func RecordUpload(result string) {
	UploadsTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
