package history

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rendis/unitconsole/internal/expressions"
	"github.com/rendis/unitconsole/internal/live"
	"github.com/rendis/unitconsole/internal/metrics"
	"github.com/rendis/unitconsole/internal/scheduler"
	"github.com/rendis/unitconsole/internal/streaming"
	"github.com/rendis/unitconsole/internal/validation"
	"github.com/rendis/unitconsole/pkg/schema"
)

// DefaultRefreshSchedule reloads the history in case a push was missed.
const DefaultRefreshSchedule = "@every 1m"

const refreshJob = "flows-refresh"

// Lister loads the flows of a unit.
type Lister interface {
	UnitFlows(ctx context.Context, unitID string) ([]schema.FlowInstance, error)
}

// WatcherConfig wires a Watcher.
type WatcherConfig struct {
	Lister    Lister
	Dialer    live.Dialer
	Hub       streaming.EventHub
	Validator *validation.PayloadValidator
	Registry  *expressions.Registry
	// Schedule is a cron expression or descriptor; "off" disables the refresh job.
	Schedule string
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Watcher keeps a Board current from a unit-scoped live channel plus a periodic
// reload.
type Watcher struct {
	unitID    string
	board     *Board
	lister    Lister
	hub       streaming.EventHub
	validator *validation.PayloadValidator
	schedule  string
	logger    *slog.Logger
	lifecycle *live.Lifecycle
	scheduler *scheduler.Scheduler

	mu      sync.Mutex
	started bool
	lastErr error
}

// NewWatcher creates a stopped watcher for unitID.
func NewWatcher(unitID string, cfg WatcherConfig) (*Watcher, error) {
	if unitID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "unit id is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	logger = logger.With(slog.String("unit_id", unitID))
	validator := cfg.Validator
	if validator == nil {
		validator = validation.MustNewPayloadValidator()
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}

	w := &Watcher{
		unitID:    unitID,
		board:     NewBoard(unitID, cfg.Registry, cfg.Now),
		lister:    cfg.Lister,
		hub:       cfg.Hub,
		validator: validator,
		schedule:  schedule,
		logger:    logger,
		scheduler: scheduler.NewScheduler(logger),
	}
	w.lifecycle = live.NewLifecycle(cfg.Dialer, live.Options{
		OnMessage: w.onMessage,
		Logger:    logger,
		Metrics:   cfg.Metrics,
	})
	if schedule != "off" {
		if err := w.scheduler.Add(scheduler.Job{Name: refreshJob, Schedule: schedule, Run: w.Refresh}); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
		}
	}
	return w, nil
}

// Board returns the board the watcher maintains.
func (w *Watcher) Board() *Board { return w.board }

// Connection returns the state of the live channel.
func (w *Watcher) Connection() schema.ConnectionState { return w.lifecycle.State() }

// Start loads the history, subscribes to pushes and starts the refresh schedule.
// A failed load or an unavailable live channel is logged and kept in Err; the
// watcher still runs.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return schema.NewError(schema.ErrCodeValidation, "watcher already started")
	}
	w.started = true
	w.mu.Unlock()

	if err := w.Refresh(ctx); err != nil {
		w.logger.Warn("flow history unavailable", slog.String("error", err.Error()))
	}
	if err := w.lifecycle.Start(ctx, live.UnitScope(w.unitID)); err != nil {
		w.setErr(err)
	}
	return w.scheduler.Start(context.WithoutCancel(ctx))
}

// Refresh reloads the history from the backend.
func (w *Watcher) Refresh(ctx context.Context) error {
	flows, err := w.lister.UnitFlows(ctx, w.unitID)
	if err != nil {
		w.setErr(err)
		return err
	}
	w.board.Replace(flows)
	w.setErr(nil)
	w.publish()
	return nil
}

// Err returns the last load or connection error, or nil.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Stop closes the live channel and waits for a running refresh.
func (w *Watcher) Stop() error {
	w.lifecycle.Stop()
	return w.scheduler.Stop()
}

func (w *Watcher) onMessage(msg live.Message) {
	var changed bool
	switch msg.Target {
	case schema.TargetFlowStarted:
		fs, err := w.validator.DecodeFlowStarted(msg.Payload)
		if err != nil {
			w.logger.Warn("skipping malformed flow start", slog.String("error", err.Error()))
			return
		}
		changed = w.board.ApplyStarted(fs)
	case schema.TargetFlowCompleted:
		fc, err := w.validator.DecodeFlowCompleted(msg.Payload)
		if err != nil {
			w.logger.Warn("skipping malformed flow completion", slog.String("error", err.Error()))
			return
		}
		changed = w.board.ApplyCompleted(fc)
	default:
		w.logger.Debug("ignoring live message", slog.String("target", msg.Target))
		return
	}
	if changed {
		w.publish()
	}
}

func (w *Watcher) setErr(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Watcher) publish() {
	if w.hub == nil {
		return
	}
	err := w.hub.Publish(context.Background(), streaming.StreamEvent{
		UnitID:    w.unitID,
		EventType: streaming.EventFlowsUpdated,
		Payload:   w.board.List(),
	})
	if err != nil {
		w.logger.Debug("flows publish failed", slog.String("error", err.Error()))
	}
}
