// Package console owns the journey sessions and unit watchers shared by the
// HTTP panel and the MCP server.
package console

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rendis/unitconsole/internal/expressions"
	"github.com/rendis/unitconsole/internal/history"
	"github.com/rendis/unitconsole/internal/journey"
	"github.com/rendis/unitconsole/internal/live"
	"github.com/rendis/unitconsole/internal/metrics"
	"github.com/rendis/unitconsole/internal/streaming"
	"github.com/rendis/unitconsole/internal/validation"
	"github.com/rendis/unitconsole/pkg/schema"
)

// Backend is the orchestration API surface the console needs.
type Backend interface {
	journey.Backend
	history.Lister
}

// Config wires a Console.
type Config struct {
	Backend   Backend
	Dialer    live.Dialer
	Hub       streaming.EventHub
	Validator *validation.PayloadValidator
	Registry  *expressions.Registry
	JQ        *expressions.GoJQEngine
	// UnitIDQuery overrides journey.DefaultUnitIDQuery.
	UnitIDQuery string
	// RefreshSchedule is the unit history reload schedule; "off" disables it.
	RefreshSchedule string
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

// Console is a registry of live journey sessions and unit watchers.
type Console struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	sessions map[string]*journey.Session
	watchers map[string]*history.Watcher
}

// New creates an empty console.
func New(cfg Config) *Console {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.MustNewPayloadValidator()
	}
	if cfg.JQ == nil {
		cfg.JQ = expressions.NewGoJQEngine()
	}
	if cfg.Registry == nil {
		reg, err := expressions.NewRegistry()
		if err != nil {
			cfg.Logger.Warn("history filters disabled", slog.String("error", err.Error()))
		}
		cfg.Registry = reg
	}
	return &Console{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*journey.Session),
		watchers: make(map[string]*history.Watcher),
	}
}

// NewSession registers an idle journey session.
func (c *Console) NewSession() (*journey.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, schema.NewError(schema.ErrCodeClosed, "console is shut down")
	}
	s := journey.NewSession(journey.SessionConfig{
		Backend:     c.cfg.Backend,
		Dialer:      c.cfg.Dialer,
		Hub:         c.cfg.Hub,
		Validator:   c.cfg.Validator,
		UnitIDQuery: c.cfg.UnitIDQuery,
		JQ:          c.cfg.JQ,
		Logger:      c.logger,
		Metrics:     c.cfg.Metrics,
		Now:         c.cfg.Now,
	})
	c.sessions[s.ID()] = s
	return s, nil
}

// Session looks up a registered session.
func (c *Console) Session(id string) (*journey.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id)
	}
	return s, nil
}

// SessionIDs lists registered session ids in lexical order.
func (c *Console) SessionIDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseSession closes and forgets a session.
func (c *Console) CloseSession(id string) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id)
	}
	s.Close()
	return nil
}

// Watch returns the running watcher for unitID, starting one on first use.
func (c *Console) Watch(ctx context.Context, unitID string) (*history.Watcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, schema.NewError(schema.ErrCodeClosed, "console is shut down")
	}
	if w, ok := c.watchers[unitID]; ok {
		return w, nil
	}
	w, err := history.NewWatcher(unitID, history.WatcherConfig{
		Lister:    c.cfg.Backend,
		Dialer:    c.cfg.Dialer,
		Hub:       c.cfg.Hub,
		Validator: c.cfg.Validator,
		Registry:  c.cfg.Registry,
		Schedule:  c.cfg.RefreshSchedule,
		Logger:    c.logger,
		Metrics:   c.cfg.Metrics,
		Now:       c.cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, err
	}
	c.watchers[unitID] = w
	return w, nil
}

// Flows returns the journey history of unitID narrowed by filter. A watched
// unit is served from its board; otherwise the history is loaded once.
func (c *Console) Flows(ctx context.Context, unitID, filter string) ([]schema.FlowInstance, error) {
	if unitID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "unit id is required")
	}
	c.mu.Lock()
	w, ok := c.watchers[unitID]
	c.mu.Unlock()
	if ok {
		return w.Board().Filter(ctx, filter)
	}

	flows, err := c.cfg.Backend.UnitFlows(ctx, unitID)
	if err != nil {
		return nil, err
	}
	board := history.NewBoard(unitID, c.cfg.Registry, c.cfg.Now)
	board.Replace(flows)
	return board.Filter(ctx, filter)
}

// Close shuts down every session and watcher. Further registrations fail.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	watchers := c.watchers
	c.sessions = make(map[string]*journey.Session)
	c.watchers = make(map[string]*history.Watcher)
	c.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	for unitID, w := range watchers {
		if err := w.Stop(); err != nil {
			c.logger.Warn("watcher stop failed", slog.String("unit_id", unitID), slog.String("error", err.Error()))
		}
	}
}
