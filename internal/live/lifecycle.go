// Package live manages the push channel of a view session: at most one open
// channel at a time, scoped to one workflow instance or one unit.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rendis/unitconsole/internal/metrics"
	"github.com/rendis/unitconsole/pkg/schema"
)

// ScopeKind says what a live channel is scoped to.
type ScopeKind string

const (
	ScopeInstance ScopeKind = "instance"
	ScopeUnit     ScopeKind = "unit"
)

// Scope identifies the subscription context of a live channel.
type Scope struct {
	Kind ScopeKind
	Key  string
}

// InstanceScope scopes a channel to one workflow run.
func InstanceScope(instanceID string) Scope { return Scope{Kind: ScopeInstance, Key: instanceID} }

// UnitScope scopes a channel to every run of one unit.
func UnitScope(unitID string) Scope { return Scope{Kind: ScopeUnit, Key: unitID} }

// Message is one push received on a live channel.
type Message struct {
	Target  string
	Payload json.RawMessage
}

// TransportStatus is reported by a channel whose transport reconnects on its own.
type TransportStatus string

const (
	TransportReconnecting TransportStatus = "reconnecting"
	TransportReconnected  TransportStatus = "reconnected"
	TransportClosed       TransportStatus = "closed"
)

// Listener receives what an open channel produces.
type Listener interface {
	OnMessage(msg Message)
	OnStatus(status TransportStatus, err error)
}

// Channel is one open push connection.
type Channel interface {
	Close() error
}

// Dialer opens channels. Implementations own negotiation and reconnection.
type Dialer interface {
	Dial(ctx context.Context, scope Scope, l Listener) (Channel, error)
}

// Options configures a Lifecycle.
type Options struct {
	// OnMessage receives every message of the current channel, one at a time.
	// It must not call Start or Stop.
	OnMessage func(Message)
	// OnState is told about connection state changes. Optional.
	OnState func(state schema.ConnectionState, err error)
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Lifecycle owns the single live channel of a view session.
//
// Stop is a delivery barrier: once it returns, OnMessage is not called again for
// the stopped channel. A channel replaced by Start is always closed before the new
// one is dialed.
type Lifecycle struct {
	dialer Dialer
	opts   Options
	logger *slog.Logger

	startMu   sync.Mutex // serializes Start
	deliverMu sync.Mutex // held while a message is delivered
	gen       atomic.Uint64

	mu      sync.Mutex
	channel Channel
	scope   Scope
	state   schema.ConnectionState
}

// NewLifecycle creates a Lifecycle in the DISCONNECTED state.
func NewLifecycle(dialer Dialer, opts Options) *Lifecycle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if opts.OnMessage == nil {
		opts.OnMessage = func(Message) {}
	}
	return &Lifecycle{
		dialer: dialer,
		opts:   opts,
		logger: logger,
		state:  schema.ConnectionDisconnected,
	}
}

// State returns the current connection state.
func (l *Lifecycle) State() schema.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Scope returns the scope of the current or last dialed channel.
func (l *Lifecycle) Scope() Scope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scope
}

// Start stops any open channel and opens a new one for scope.
//
// A failure to open leaves the lifecycle DISCONNECTED and returns an
// ErrCodeTransport error; callers treat it as non-fatal. If Stop runs while the
// dial is in flight the fresh channel is closed and ErrCodeClosed is returned.
func (l *Lifecycle) Start(ctx context.Context, scope Scope) error {
	if scope.Key == "" {
		return schema.NewError(schema.ErrCodeValidation, "live channel scope key is required")
	}

	l.startMu.Lock()
	defer l.startMu.Unlock()

	l.Stop()

	gen := l.gen.Add(1)
	l.mu.Lock()
	l.scope = scope
	l.mu.Unlock()
	l.transition(gen, schema.ConnectionConnecting, nil)

	logger := l.logger.With(slog.String("scope", string(scope.Kind)), slog.String("scope_key", scope.Key))
	logger.Debug("opening live channel")

	ch, err := l.dialer.Dial(ctx, scope, &guard{l: l, gen: gen})
	if err != nil {
		l.opts.Metrics.LiveDialed(string(scope.Kind), "error")
		l.transition(gen, schema.ConnectionDisconnected, err)
		logger.Warn("live channel unavailable", slog.String("error", err.Error()))
		var ce *schema.ConsoleError
		if errors.As(err, &ce) && ce.Code == schema.ErrCodeTransport {
			return err
		}
		return schema.NewErrorf(schema.ErrCodeTransport, "open live channel: %s", err.Error()).WithCause(err)
	}

	l.mu.Lock()
	if l.gen.Load() != gen {
		l.mu.Unlock()
		_ = ch.Close()
		l.opts.Metrics.LiveDialed(string(scope.Kind), "cancelled")
		return schema.NewError(schema.ErrCodeClosed, "live channel stopped while connecting")
	}
	l.channel = ch
	l.state = schema.ConnectionConnected
	l.mu.Unlock()

	l.opts.Metrics.LiveDialed(string(scope.Kind), "ok")
	l.opts.Metrics.LiveOpened()
	l.notify(schema.ConnectionConnected, nil)
	logger.Info("live channel connected")
	return nil
}

// Stop closes the open channel, if any. It is safe to call repeatedly and from any
// goroutine except the OnMessage callback.
func (l *Lifecycle) Stop() {
	l.gen.Add(1)

	// Wait out a delivery in progress; later deliveries see the new generation.
	l.deliverMu.Lock()
	l.deliverMu.Unlock() //nolint:staticcheck // barrier

	l.mu.Lock()
	ch := l.channel
	prev := l.state
	l.channel = nil
	l.state = schema.ConnectionDisconnected
	l.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			l.logger.Debug("live channel close failed", slog.String("error", err.Error()))
		}
		l.opts.Metrics.LiveClosed()
	}
	if prev != schema.ConnectionDisconnected {
		l.notify(schema.ConnectionDisconnected, nil)
	}
}

// transition moves to state if gen is still current.
func (l *Lifecycle) transition(gen uint64, state schema.ConnectionState, err error) {
	l.mu.Lock()
	if l.gen.Load() != gen || l.state == state {
		l.mu.Unlock()
		return
	}
	l.state = state
	l.mu.Unlock()
	l.notify(state, err)
}

func (l *Lifecycle) notify(state schema.ConnectionState, err error) {
	if l.opts.OnState != nil {
		l.opts.OnState(state, err)
	}
}

// guard binds a Listener to one generation so a replaced channel goes quiet.
type guard struct {
	l   *Lifecycle
	gen uint64
}

func (g *guard) OnMessage(msg Message) {
	g.l.deliverMu.Lock()
	defer g.l.deliverMu.Unlock()
	if g.l.gen.Load() != g.gen {
		return
	}
	g.l.opts.OnMessage(msg)
}

func (g *guard) OnStatus(status TransportStatus, err error) {
	if g.l.gen.Load() != g.gen {
		return
	}
	switch status {
	case TransportReconnecting:
		g.l.logger.Warn("live channel reconnecting", errAttr(err))
	case TransportReconnected:
		g.l.logger.Info("live channel reconnected")
	case TransportClosed:
		g.l.mu.Lock()
		if g.l.gen.Load() != g.gen || g.l.channel == nil {
			g.l.mu.Unlock()
			return
		}
		g.l.channel = nil
		g.l.state = schema.ConnectionDisconnected
		g.l.mu.Unlock()
		g.l.opts.Metrics.LiveClosed()
		g.l.logger.Warn("live channel closed by transport", errAttr(err))
		g.l.notify(schema.ConnectionDisconnected, err)
	}
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
