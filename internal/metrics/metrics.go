// Package metrics exposes Prometheus collectors for journey reconciliation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "unitconsole"

// Metrics holds the console's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsIngested  *prometheus.CounterVec
	eventsDuplicate prometheus.Counter
	eventsRejected  *prometheus.CounterVec
	snapshotFetches *prometheus.CounterVec
	liveConnections prometheus.Gauge
	liveDials       *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	tokenRefreshes  *prometheus.CounterVec
}

var (
	defaultOnce   sync.Once
	sharedMetrics *Metrics
)

// Default returns the process-wide instance registered with the default registerer.
// Collectors are created once so repeated construction never double-registers.
func Default() *Metrics {
	defaultOnce.Do(func() {
		sharedMetrics = MustNew(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNew builds a Metrics instance and registers it with reg. Registration errors
// other than AlreadyRegistered panic, surfacing wiring bugs early.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journey",
			Name:      "events_ingested_total",
			Help:      "Journey events appended to a view log, by source.",
		}, []string{"source"}),
		eventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journey",
			Name:      "events_duplicate_total",
			Help:      "Journey events discarded because the same transition was already recorded.",
		}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journey",
			Name:      "events_rejected_total",
			Help:      "Journey events rejected before ingestion, by reason.",
		}, []string{"reason"}),
		snapshotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journey",
			Name:      "snapshot_fetches_total",
			Help:      "One-shot status snapshot fetches, by result.",
		}, []string{"result"}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "connections_active",
			Help:      "Live channels currently open.",
		}),
		liveDials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "dials_total",
			Help:      "Live channel open attempts, by scope kind and result.",
		}, []string{"scope", "result"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journey",
			Name:      "sessions_active",
			Help:      "View sessions currently open.",
		}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts, by result.",
		}, []string{"result"}),
	}

	m.eventsIngested = register(reg, m.eventsIngested)
	m.eventsDuplicate = register(reg, m.eventsDuplicate)
	m.eventsRejected = register(reg, m.eventsRejected)
	m.snapshotFetches = register(reg, m.snapshotFetches)
	m.liveConnections = register(reg, m.liveConnections)
	m.liveDials = register(reg, m.liveDials)
	m.sessionsActive = register(reg, m.sessionsActive)
	m.tokenRefreshes = register(reg, m.tokenRefreshes)
	return m
}

// register adds c to reg, reusing an identical collector that is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// EventIngested counts an appended event from source ("live" or "snapshot").
func (m *Metrics) EventIngested(source string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(source).Inc()
}

// EventDuplicate counts a discarded duplicate event.
func (m *Metrics) EventDuplicate() {
	if m == nil {
		return
	}
	m.eventsDuplicate.Inc()
}

// EventRejected counts an event dropped before ingestion.
func (m *Metrics) EventRejected(reason string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(reason).Inc()
}

// SnapshotFetched records the outcome of a snapshot fetch ("ok", "error", "stale").
func (m *Metrics) SnapshotFetched(result string) {
	if m == nil {
		return
	}
	m.snapshotFetches.WithLabelValues(result).Inc()
}

// LiveDialed records the outcome of a live channel open attempt.
func (m *Metrics) LiveDialed(scope, result string) {
	if m == nil {
		return
	}
	m.liveDials.WithLabelValues(scope, result).Inc()
}

// LiveOpened marks a live channel as open.
func (m *Metrics) LiveOpened() {
	if m == nil {
		return
	}
	m.liveConnections.Inc()
}

// LiveClosed marks a live channel as closed.
func (m *Metrics) LiveClosed() {
	if m == nil {
		return
	}
	m.liveConnections.Dec()
}

// SessionOpened marks a view session as active.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionClosed marks a view session as gone.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// TokenRefreshed records a token refresh outcome ("ok", "error", "empty").
func (m *Metrics) TokenRefreshed(result string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}
