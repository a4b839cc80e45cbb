package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectNone(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		SessionID:  "s-1",
		InstanceID: "inst-1",
		EventType:  EventViewUpdated,
		Payload:    map[string]any{"progress_percent": 28},
	}
	require.NoError(t, hub.Publish(ctx, event))

	select {
	case got := <-ch:
		assert.Equal(t, event.SessionID, got.SessionID)
		assert.Equal(t, event.InstanceID, got.InstanceID)
		assert.Equal(t, event.EventType, got.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterBySessionID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{SessionID: "s-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: EventViewUpdated}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-2", EventType: EventViewUpdated}))

	select {
	case got := <-ch:
		assert.Equal(t, "s-1", got.SessionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	expectNone(t, ch)
}

func TestFilterByUnitAndType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		UnitID:     "u-1",
		EventTypes: []string{EventFlowsUpdated, EventSessionClosed},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{UnitID: "u-1", EventType: EventFlowsUpdated}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{UnitID: "u-1", EventType: EventViewUpdated}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{UnitID: "u-2", EventType: EventFlowsUpdated}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{UnitID: "u-1", EventType: EventSessionClosed}))

	var received []string
	for range 2 {
		select {
		case got := <-ch:
			received = append(received, got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{EventFlowsUpdated, EventSessionClosed}, received)
	expectNone(t, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: EventViewUpdated}))

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "s-1", got.SessionID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, 2, hub.Subscribers())
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: EventViewUpdated}))

	_, open := <-ch
	assert.False(t, open, "channel is closed on cancel")
	assert.Zero(t, hub.Subscribers())
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for range defaultChannelBuffer + 10 {
		require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: EventViewUpdated}))
	}

	drained := 0
	for len(ch) > 0 {
		<-ch
		drained++
	}
	assert.Equal(t, defaultChannelBuffer, drained)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				_ = hub.Publish(ctx, StreamEvent{SessionID: "s-concurrent", EventType: EventViewUpdated})
			}
		}()
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.Subscribers())
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: EventViewUpdated})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
