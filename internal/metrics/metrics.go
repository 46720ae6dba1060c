// Package metrics exposes the sync core's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DrainPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_drain_passes_total",
		Help: "Completed update batcher drain passes.",
	})
	EventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_events_applied_total",
		Help: "Deltas applied to the local caches, by kind.",
	}, []string{"kind"})
	DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_duplicate_events_total",
		Help: "Events ignored because the cache already reflected them.",
	})
	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_reconnect_attempts_total",
		Help: "Transport reconnect attempts scheduled by the subscription manager.",
	})
	TypingSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_typing_entries_swept_total",
		Help: "Typing entries expired by the TTL sweep.",
	})
	ActiveEngines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_active_engines",
		Help: "Per-user sync engines currently running.",
	})
)

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
