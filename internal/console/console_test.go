package console

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/unitconsole/internal/api"
	"github.com/rendis/unitconsole/internal/live"
	"github.com/rendis/unitconsole/pkg/schema"
)

type stubBackend struct {
	flows     []schema.FlowInstance
	flowCalls int
}

func (b *stubBackend) StartJourney(_ context.Context, _ api.StartRequest) (string, error) {
	return "inst-1", nil
}

func (b *stubBackend) Snapshot(_ context.Context, id string) (schema.FlowInstance, error) {
	return schema.FlowInstance{InstanceID: id, RuntimeStatus: "Running"}, nil
}

func (b *stubBackend) UnitFlows(_ context.Context, _ string) ([]schema.FlowInstance, error) {
	b.flowCalls++
	return b.flows, nil
}

type nopChannel struct{}

func (nopChannel) Close() error { return nil }

type nopDialer struct{}

func (nopDialer) Dial(context.Context, live.Scope, live.Listener) (live.Channel, error) {
	return nopChannel{}, nil
}

func newTestConsole(b *stubBackend) *Console {
	return New(Config{Backend: b, Dialer: nopDialer{}, RefreshSchedule: "off"})
}

func TestConsole_SessionRegistry(t *testing.T) {
	c := newTestConsole(&stubBackend{})
	defer c.Close()

	s, err := c.NewSession()
	require.NoError(t, err)

	got, err := c.Session(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, []string{s.ID()}, c.SessionIDs())

	require.NoError(t, c.CloseSession(s.ID()))
	_, err = c.Session(s.ID())
	assert.ErrorIs(t, err, schema.NewError(schema.ErrCodeNotFound, ""))
	assert.ErrorIs(t, c.CloseSession(s.ID()), schema.NewError(schema.ErrCodeNotFound, ""))
}

func TestConsole_ClosedRejectsRegistration(t *testing.T) {
	c := newTestConsole(&stubBackend{})
	c.Close()
	c.Close()

	_, err := c.NewSession()
	assert.ErrorIs(t, err, schema.NewError(schema.ErrCodeClosed, ""))
	_, err = c.Watch(context.Background(), "unit-1")
	assert.ErrorIs(t, err, schema.NewError(schema.ErrCodeClosed, ""))
}

func TestConsole_FlowsFilter(t *testing.T) {
	b := &stubBackend{flows: []schema.FlowInstance{
		{InstanceID: "a", RuntimeStatus: "Completed", CreatedTime: "2026-03-01T10:00:00Z"},
		{InstanceID: "b", RuntimeStatus: "Running", CreatedTime: "2026-03-02T10:00:00Z"},
	}}
	c := newTestConsole(b)
	defer c.Close()

	all, err := c.Flows(context.Background(), "unit-1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].InstanceID)

	running, err := c.Flows(context.Background(), "unit-1", `status == "Running"`)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "b", running[0].InstanceID)

	_, err = c.Flows(context.Background(), "", "")
	assert.ErrorIs(t, err, schema.NewError(schema.ErrCodeValidation, ""))
}

func TestConsole_WatchServesFromBoard(t *testing.T) {
	b := &stubBackend{flows: []schema.FlowInstance{
		{InstanceID: "a", RuntimeStatus: "Running", CreatedTime: time.Now().UTC().Format(time.RFC3339)},
	}}
	c := newTestConsole(b)
	defer c.Close()

	w, err := c.Watch(context.Background(), "unit-1")
	require.NoError(t, err)
	again, err := c.Watch(context.Background(), "unit-1")
	require.NoError(t, err)
	assert.Same(t, w, again)
	assert.Equal(t, 1, b.flowCalls)

	flows, err := c.Flows(context.Background(), "unit-1", "")
	require.NoError(t, err)
	assert.Len(t, flows, 1)
	assert.Equal(t, 1, b.flowCalls, "watched unit must not reload")
}
