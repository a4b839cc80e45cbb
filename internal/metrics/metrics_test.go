package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg)

	m.EventIngested("live")
	m.EventIngested("live")
	m.EventIngested("snapshot")
	m.EventDuplicate()
	m.EventRejected("malformed")
	m.SnapshotFetched("ok")
	m.TokenRefreshed("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsIngested.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsIngested.WithLabelValues("snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsRejected.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokenRefreshes.WithLabelValues("error")))
}

func TestMetrics_Gauges(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.LiveDialed("instance", "ok")
	m.LiveOpened()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.liveConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.liveDials.WithLabelValues("instance", "ok")))

	m.LiveClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.liveConnections))
}

func TestMetrics_ReuseRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := MustNew(reg)
	b := MustNew(reg)

	a.SessionOpened()
	b.SessionOpened()

	expected := `
# HELP unitconsole_journey_sessions_active View sessions currently open.
# TYPE unitconsole_journey_sessions_active gauge
unitconsole_journey_sessions_active 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"unitconsole_journey_sessions_active"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventIngested("live")
		m.EventDuplicate()
		m.SessionOpened()
		m.LiveClosed()
		m.TokenRefreshed("ok")
	})
}
