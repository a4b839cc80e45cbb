package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/unitconsole/internal/metrics"
	"github.com/rendis/unitconsole/pkg/schema"
)

// fakeDialer records dial and close calls in the order they happen.
type fakeDialer struct {
	mu        sync.Mutex
	calls     []string
	listeners map[string]Listener
	failWith  error
	block     chan struct{}
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{listeners: map[string]Listener{}}
}

func (d *fakeDialer) Dial(ctx context.Context, scope Scope, l Listener) (Channel, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "dial:"+scope.Key)
	if d.failWith != nil {
		return nil, d.failWith
	}
	d.listeners[scope.Key] = l
	return &fakeChannel{d: d, key: scope.Key}, nil
}

func (d *fakeDialer) listener(key string) Listener {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listeners[key]
}

func (d *fakeDialer) log() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type fakeChannel struct {
	d   *fakeDialer
	key string
}

func (c *fakeChannel) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.calls = append(c.d.calls, "close:"+c.key)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	msgs   []Message
	states []schema.ConnectionState
}

func (r *recorder) onMessage(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) onState(s schema.ConnectionState, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func (r *recorder) stateLog() []schema.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.ConnectionState(nil), r.states...)
}

func newTestLifecycle(d Dialer, r *recorder, m *metrics.Metrics) *Lifecycle {
	return NewLifecycle(d, Options{OnMessage: r.onMessage, OnState: r.onState, Metrics: m})
}

func TestLifecycle_StartConnects(t *testing.T) {
	d := newFakeDialer()
	r := &recorder{}
	lc := newTestLifecycle(d, r, nil)

	assert.Equal(t, schema.ConnectionDisconnected, lc.State())
	require.NoError(t, lc.Start(context.Background(), InstanceScope("A")))

	assert.Equal(t, schema.ConnectionConnected, lc.State())
	assert.Equal(t, InstanceScope("A"), lc.Scope())
	assert.Equal(t, []schema.ConnectionState{schema.ConnectionConnecting, schema.ConnectionConnected}, r.stateLog())
}

func TestLifecycle_StartReplacesPreviousChannel(t *testing.T) {
	d := newFakeDialer()
	lc := newTestLifecycle(d, &recorder{}, nil)

	require.NoError(t, lc.Start(context.Background(), InstanceScope("A")))
	require.NoError(t, lc.Start(context.Background(), InstanceScope("B")))

	assert.Equal(t, []string{"dial:A", "close:A", "dial:B"}, d.log())
	assert.Equal(t, schema.ConnectionConnected, lc.State())
}

func TestLifecycle_StopIsIdempotent(t *testing.T) {
	d := newFakeDialer()
	r := &recorder{}
	lc := newTestLifecycle(d, r, nil)

	lc.Stop()
	require.NoError(t, lc.Start(context.Background(), InstanceScope("A")))
	lc.Stop()
	lc.Stop()

	assert.Equal(t, []string{"dial:A", "close:A"}, d.log())
	assert.Equal(t, schema.ConnectionDisconnected, lc.State())
	assert.Equal(t, []schema.ConnectionState{
		schema.ConnectionConnecting,
		schema.ConnectionConnected,
		schema.ConnectionDisconnected,
	}, r.stateLog())
}

func TestLifecycle_DialFailureIsTransportError(t *testing.T) {
	d := newFakeDialer()
	d.failWith = errors.New("connection refused")
	r := &recorder{}
	lc := newTestLifecycle(d, r, nil)

	err := lc.Start(context.Background(), UnitScope("u-1"))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeTransport, schema.Code(err))
	assert.Equal(t, schema.ConnectionDisconnected, lc.State())
	assert.Equal(t, []schema.ConnectionState{schema.ConnectionConnecting, schema.ConnectionDisconnected}, r.stateLog())
}

func TestLifecycle_EmptyScopeRejected(t *testing.T) {
	lc := newTestLifecycle(newFakeDialer(), &recorder{}, nil)
	err := lc.Start(context.Background(), InstanceScope(""))
	assert.Equal(t, schema.ErrCodeValidation, schema.Code(err))
}

func TestLifecycle_MessagesStopAfterStop(t *testing.T) {
	d := newFakeDialer()
	r := &recorder{}
	lc := newTestLifecycle(d, r, nil)
	require.NoError(t, lc.Start(context.Background(), InstanceScope("A")))

	l := d.listener("A")
	l.OnMessage(Message{Target: schema.TargetJourneyUpdate, Payload: []byte(`{"n":1}`)})
	lc.Stop()
	l.OnMessage(Message{Target: schema.TargetJourneyUpdate, Payload: []byte(`{"n":2}`)})

	msgs := r.messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Payload))
}

func TestLifecycle_ReplacedChannelGoesQuiet(t *testing.T) {
	d := newFakeDialer()
	r := &recorder{}
	lc := newTestLifecycle(d, r, nil)
	require.NoError(t, lc.Start(context.Background(), InstanceScope("A")))
	require.NoError(t, lc.Start(context.Background(), InstanceScope("B")))

	d.listener("A").OnMessage(Message{Target: "journeyUpdate", Payload: []byte(`"old"`)})
	d.listener("B").OnMessage(Message{Target: "journeyUpdate", Payload: []byte(`"new"`)})

	msgs := r.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, `"new"`, string(msgs[0].Payload))
}

func TestLifecycle_StopWaitsForDelivery(t *testing.T) {
	d := newFakeDialer()
	entered := make(chan struct{})
	release := make(chan struct{})
	var delivered []string
	var mu sync.Mutex
	lc := NewLifecycle(d, Options{OnMessage: func(m Message) {
		close(entered)
		<-release
		mu.Lock()
		delivered = append(delivered, string(m.Payload))
		mu.Unlock()
	}})
	require.NoError(t, lc.Start(context.Background(), InstanceScope("A")))

	go d.listener("A").OnMessage(Message{Payload: []byte("1")})
	<-entered

	stopped := make(chan struct{})
	go func() {
		lc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a delivery was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after delivery finished")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1"}, delivered)
}

func TestLifecycle_StopDuringDialClosesFreshChannel(t *testing.T) {
	d := newFakeDialer()
	d.block = make(chan struct{})
	lc := newTestLifecycle(d, &recorder{}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- lc.Start(context.Background(), InstanceScope("A")) }()

	require.Eventually(t, func() bool { return lc.State() == schema.ConnectionConnecting }, time.Second, 5*time.Millisecond)
	lc.Stop()
	close(d.block)

	err := <-errCh
	assert.Equal(t, schema.ErrCodeClosed, schema.Code(err))
	assert.Equal(t, []string{"dial:A", "close:A"}, d.log())
	assert.Equal(t, schema.ConnectionDisconnected, lc.State())
}

func TestLifecycle_TransportStatus(t *testing.T) {
	d := newFakeDialer()
	r := &recorder{}
	lc := newTestLifecycle(d, r, nil)
	require.NoError(t, lc.Start(context.Background(), InstanceScope("A")))
	l := d.listener("A")

	l.OnStatus(TransportReconnecting, errors.New("read: EOF"))
	l.OnStatus(TransportReconnected, nil)
	assert.Equal(t, schema.ConnectionConnected, lc.State(), "reconnects are not state changes")

	l.OnStatus(TransportClosed, errors.New("gave up"))
	assert.Equal(t, schema.ConnectionDisconnected, lc.State())

	lc.Stop()
	assert.Equal(t, []string{"dial:A"}, d.log(), "a channel closed by its transport is not closed again")
}

func TestLifecycle_ConnectionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	d := newFakeDialer()
	lc := newTestLifecycle(d, &recorder{}, m)

	for i := range 3 {
		require.NoError(t, lc.Start(context.Background(), InstanceScope(fmt.Sprintf("i-%d", i))))
	}
	gathered, err := reg.Gather()
	require.NoError(t, err)
	var gauge float64
	for _, mf := range gathered {
		if mf.GetName() == "unitconsole_live_connections_active" {
			gauge = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 1.0, gauge)

	lc.Stop()
	count, err := testutil.GatherAndCount(reg, "unitconsole_live_dials_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
