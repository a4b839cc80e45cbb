package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/unitconsole/internal/api"
	"github.com/rendis/unitconsole/internal/expressions"
	"github.com/rendis/unitconsole/internal/live"
	"github.com/rendis/unitconsole/internal/logging"
	"github.com/rendis/unitconsole/internal/metrics"
	"github.com/rendis/unitconsole/internal/streaming"
	"github.com/rendis/unitconsole/internal/validation"
	"github.com/rendis/unitconsole/pkg/schema"
)

// DefaultUnitIDQuery extracts the owning unit from a status snapshot.
const DefaultUnitIDQuery = `.customStatus.unitId // .input.unitId`

// Backend is the part of the orchestration API a session needs.
type Backend interface {
	StartJourney(ctx context.Context, req api.StartRequest) (string, error)
	Snapshot(ctx context.Context, instanceID string) (schema.FlowInstance, error)
}

// SessionConfig wires a Session to its collaborators.
type SessionConfig struct {
	Backend Backend
	Dialer  live.Dialer
	// Hub receives every new view. Optional.
	Hub       streaming.EventHub
	Validator *validation.PayloadValidator
	// UnitIDQuery is a jq query run against the snapshot record.
	UnitIDQuery string
	JQ          *expressions.GoJQEngine
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Session reconciles the live stream and the status snapshot of one journey
// instance into a ViewState. All mutations are serialized; every mutation
// publishes a fresh view.
type Session struct {
	id        string
	backend   Backend
	hub       streaming.EventHub
	validator *validation.PayloadValidator
	jq        *expressions.GoJQEngine
	unitQuery string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	lifecycle *live.Lifecycle

	// done is cancelled by Close and aborts dials still in flight.
	done   context.Context
	cancel context.CancelFunc

	connectMu sync.Mutex // serializes connect so a stale one stops before a newer one dials

	mu         sync.Mutex
	epoch      uint64
	closed     bool
	log        Log
	unitID     string
	selected   *schema.JourneyEvent
	connection schema.ConnectionState
	warning    string
	failure    string
	view       ViewState
}

// NewSession creates an idle session. Call Begin or Open to bind it to an instance.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	validator := cfg.Validator
	if validator == nil {
		validator = validation.MustNewPayloadValidator()
	}
	jq := cfg.JQ
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	query := cfg.UnitIDQuery
	if query == "" {
		query = DefaultUnitIDQuery
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		id:         uuid.New().String(),
		backend:    cfg.Backend,
		hub:        cfg.Hub,
		validator:  validator,
		jq:         jq,
		unitQuery:  query,
		metrics:    cfg.Metrics,
		now:        now,
		connection: schema.ConnectionDisconnected,
	}
	s.done, s.cancel = context.WithCancel(context.Background())
	s.logger = logger.With(slog.String("session_id", s.id))
	s.lifecycle = live.NewLifecycle(cfg.Dialer, live.Options{
		OnMessage: s.onMessage,
		OnState:   s.onConnection,
		Logger:    s.logger,
		Metrics:   cfg.Metrics,
	})
	s.view = s.deriveLocked()
	cfg.Metrics.SessionOpened()
	return s
}

// ID returns the session id used for correlation and hub filtering.
func (s *Session) ID() string { return s.id }

// View returns the current view.
func (s *Session) View() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Begin starts a journey for telemetry and follows it live. A start failure is
// returned and recorded on the view. A live channel failure only sets the view
// warning; the instance id is still returned.
func (s *Session) Begin(ctx context.Context, telemetry, unitID string) (string, error) {
	epoch, err := s.reset("", unitID)
	if err != nil {
		return "", err
	}
	// The log is unbound until the backend answers; nothing may feed it meanwhile.
	s.disconnect()
	ctx = logging.WithIDs(ctx, s.id, "", unitID)

	instanceID, err := s.backend.StartJourney(ctx, api.StartRequest{Telemetry: telemetry, UnitID: unitID})
	if err != nil {
		s.mutate(epoch, func() { s.failure = fmt.Sprintf("journey start failed: %s", err.Error()) })
		return "", err
	}
	if !s.mutate(epoch, func() { s.log = NewLog(instanceID) }) {
		return "", schema.NewError(schema.ErrCodeClosed, "session closed while starting").WithInstance(instanceID)
	}

	ctx = logging.WithInstanceID(ctx, instanceID)
	logging.LogWith(ctx, s.logger).Info("journey begun")
	s.connect(ctx, epoch, instanceID)
	return instanceID, nil
}

// Open shows an existing instance. The status snapshot and the live channel are
// requested concurrently; each is best-effort and its failure is reported on the
// view. Open returns an error only for bad input, a closed session, or when
// neither source could be reached.
func (s *Session) Open(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return schema.NewError(schema.ErrCodeValidation, "instance id is required")
	}
	epoch, err := s.reset(instanceID, "")
	if err != nil {
		return err
	}
	ctx = logging.WithIDs(ctx, s.id, instanceID, "")

	var (
		g           errgroup.Group
		snapshotErr error
		liveErr     error
	)
	g.Go(func() error {
		snapshotErr = s.loadSnapshot(ctx, epoch, instanceID)
		return nil
	})
	g.Go(func() error {
		liveErr = s.connect(ctx, epoch, instanceID)
		return nil
	})
	_ = g.Wait()

	if snapshotErr != nil && liveErr != nil {
		return errors.Join(snapshotErr, liveErr)
	}
	return nil
}

// Select pins the view's selected event to the latest event of stage. The pin
// survives later ingestions until ClearSelection or the next Begin/Open.
func (s *Session) Select(stage schema.Stage) error {
	stage.Index()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return schema.NewError(schema.ErrCodeClosed, "session is closed")
	}
	ev, ok := s.log.LatestFor(stage)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no event recorded for stage %s", stage).
			WithInstance(s.log.InstanceID())
	}
	s.selected = &ev
	s.refreshLocked()
	return nil
}

// ClearSelection restores the default selection, the last event.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.selected == nil {
		return
	}
	s.selected = nil
	s.refreshLocked()
}

// Close tears down the live channel and discards any request still in flight.
// It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	instanceID, unitID := s.log.InstanceID(), s.unitID
	s.mu.Unlock()

	s.cancel()
	s.disconnect()
	s.metrics.SessionClosed()
	s.publish(streaming.EventSessionClosed, instanceID, unitID, nil)
	s.logger.Debug("session closed", slog.String("instance_id", instanceID))
}

// reset bumps the epoch and clears all per-instance state.
func (s *Session) reset(instanceID, unitID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, schema.NewError(schema.ErrCodeClosed, "session is closed")
	}
	s.epoch++
	s.log = NewLog(instanceID)
	s.unitID = unitID
	s.selected = nil
	s.warning = ""
	s.failure = ""
	s.refreshLocked()
	return s.epoch, nil
}

// disconnect stops the live channel without waiting for a dial in flight; that
// dial sees the bumped generation and closes what it opened.
func (s *Session) disconnect() {
	s.lifecycle.Stop()
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.epoch == epoch
}

// mutate applies fn and republishes when epoch is still current.
func (s *Session) mutate(epoch uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.epoch != epoch {
		return false
	}
	fn()
	s.refreshLocked()
	return true
}

// connect opens the live channel unless a newer Begin/Open or Close superseded epoch.
func (s *Session) connect(ctx context.Context, epoch uint64, instanceID string) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	if !s.current(epoch) {
		return schema.NewError(schema.ErrCodeClosed, "session moved on before connecting").WithInstance(instanceID)
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(s.done, stop)()

	err := s.lifecycle.Start(ctx, live.InstanceScope(instanceID))
	if err == nil {
		// Close or a newer Begin/Open may have run while dialing.
		if !s.current(epoch) {
			s.lifecycle.Stop()
			return schema.NewError(schema.ErrCodeClosed, "session moved on while connecting").WithInstance(instanceID)
		}
		return nil
	}
	if !s.current(epoch) {
		return schema.NewError(schema.ErrCodeClosed, "session moved on while connecting").WithInstance(instanceID)
	}
	if schema.Code(err) == schema.ErrCodeClosed {
		return err
	}
	s.mutate(epoch, func() { s.warning = fmt.Sprintf("live updates unavailable: %s", err.Error()) })
	return err
}

func (s *Session) loadSnapshot(ctx context.Context, epoch uint64, instanceID string) error {
	logger := logging.LogWith(ctx, s.logger)

	fi, err := s.backend.Snapshot(ctx, instanceID)
	if err != nil {
		s.metrics.SnapshotFetched("error")
		logger.Warn("status snapshot failed", slog.String("error", err.Error()))
		s.mutate(epoch, func() { s.failure = fmt.Sprintf("status snapshot failed: %s", err.Error()) })
		return schema.NewErrorf(schema.ErrCodeSnapshot, "snapshot %s", instanceID).WithInstance(instanceID).WithCause(err)
	}
	s.metrics.SnapshotFetched("ok")

	ts := fi.LastUpdatedTime
	if ts == "" {
		ts = fi.CreatedTime
	}
	if ts == "" {
		ts = s.now().UTC().Format(time.RFC3339)
	}
	events := FromSnapshot(instanceID, fi.Output, ts)
	unitID := s.resolveUnitID(ctx, fi)

	applied := s.mutate(epoch, func() {
		if s.unitID == "" {
			s.unitID = unitID
		}
		next, appended, err := IngestAll(s.log, events)
		s.log = next
		s.countIngest("snapshot", appended, len(events)-appended, err)
		if err != nil {
			logger.Warn("snapshot event rejected", slog.String("error", err.Error()))
		}
	})
	if !applied {
		logger.Debug("discarding stale snapshot")
	}
	return nil
}

// resolveUnitID runs the unit id query against a snapshot record. Failures
// yield "".
func (s *Session) resolveUnitID(ctx context.Context, fi schema.FlowInstance) string {
	doc, err := json.Marshal(fi)
	if err != nil {
		return ""
	}
	v, err := s.jq.EvaluateJSON(ctx, s.unitQuery, doc)
	if err != nil {
		logging.LogWith(ctx, s.logger).Debug("unit id query failed", slog.String("error", err.Error()))
		return ""
	}
	id, _ := v.(string)
	return id
}

// onMessage runs on the transport goroutine, one message at a time.
func (s *Session) onMessage(msg live.Message) {
	if msg.Target != schema.TargetJourneyUpdate {
		s.logger.Debug("ignoring live message", slog.String("target", msg.Target))
		return
	}
	ev, err := s.validator.DecodeJourneyEvent(msg.Payload)
	if err != nil {
		s.metrics.EventRejected("malformed")
		s.logger.Warn("skipping malformed journey update", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	next, ok, err := Ingest(s.log, ev)
	if err != nil {
		s.metrics.EventRejected("cross_instance")
		s.logger.Warn("rejected journey update",
			slog.String("instance_id", s.log.InstanceID()),
			slog.String("event_instance_id", ev.InstanceID))
		return
	}
	if !ok {
		s.metrics.EventDuplicate()
		return
	}
	s.log = next
	s.metrics.EventIngested("live")
	s.refreshLocked()
}

func (s *Session) onConnection(state schema.ConnectionState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.connection == state {
		return
	}
	s.connection = state
	if state == schema.ConnectionDisconnected && err != nil {
		s.warning = fmt.Sprintf("live updates unavailable: %s", err.Error())
	}
	s.refreshLocked()
}

func (s *Session) countIngest(source string, appended, skipped int, err error) {
	for range appended {
		s.metrics.EventIngested(source)
	}
	if err != nil {
		s.metrics.EventRejected("cross_instance")
		return
	}
	for range skipped {
		s.metrics.EventDuplicate()
	}
}

// refreshLocked recomputes the view and publishes it. Callers hold s.mu.
func (s *Session) refreshLocked() {
	s.view = s.deriveLocked()
	s.publish(streaming.EventViewUpdated, s.view.InstanceID, s.unitID, s.view)
}

func (s *Session) deriveLocked() ViewState {
	v := Derive(s.log)
	v.UnitID = s.unitID
	v.Connection = s.connection
	v.Warning = s.warning
	v.Error = s.failure
	if s.selected != nil {
		v = v.WithSelection(s.selected)
	}
	return v
}

func (s *Session) publish(eventType, instanceID, unitID string, payload any) {
	if s.hub == nil {
		return
	}
	err := s.hub.Publish(context.Background(), streaming.StreamEvent{
		SessionID:  s.id,
		InstanceID: instanceID,
		UnitID:     unitID,
		EventType:  eventType,
		Payload:    payload,
	})
	if err != nil {
		s.logger.Debug("view publish failed", slog.String("error", err.Error()))
	}
}
