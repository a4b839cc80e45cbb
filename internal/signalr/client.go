package signalr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rendis/unitconsole/internal/live"
	"github.com/rendis/unitconsole/pkg/schema"
)

// Endpoint is where a hub connection is established, as handed out by the backend.
type Endpoint struct {
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
}

// NegotiateFunc obtains an endpoint for a scope. It is called again on every
// reconnect so expired access tokens are replaced.
type NegotiateFunc func(ctx context.Context, scope live.Scope) (Endpoint, error)

// Options configures a Dialer.
type Options struct {
	HTTPClient       *http.Client
	WSDialer         *websocket.Dialer
	KeepAlive        time.Duration
	ServerTimeout    time.Duration
	HandshakeTimeout time.Duration
	Reconnect        ReconnectPolicy
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	out := o
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if out.WSDialer == nil {
		out.WSDialer = websocket.DefaultDialer
	}
	if out.KeepAlive <= 0 {
		out.KeepAlive = 15 * time.Second
	}
	if out.ServerTimeout <= 0 {
		out.ServerTimeout = 30 * time.Second
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = 15 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return out
}

const maxRedirects = 5

// Dialer opens hub connections. It is safe for concurrent use.
type Dialer struct {
	negotiate NegotiateFunc
	opts      Options
}

// NewDialer creates a Dialer that resolves endpoints with negotiate.
func NewDialer(negotiate NegotiateFunc, opts Options) *Dialer {
	return &Dialer{negotiate: negotiate, opts: opts.withDefaults()}
}

// Dial negotiates and connects, then delivers invocations to l until the returned
// channel is closed or the connection is lost for good.
func (d *Dialer) Dial(ctx context.Context, scope live.Scope, l live.Listener) (live.Channel, error) {
	conn, pending, err := d.connect(ctx, scope)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &channel{
		d:      d,
		scope:  scope,
		l:      l,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: d.opts.Logger.With(slog.String("scope", string(scope.Kind)), slog.String("scope_key", scope.Key)),
	}
	c.setConn(conn)
	go c.run(runCtx, conn, pending)
	return c, nil
}

// connect runs negotiation, the WebSocket upgrade and the protocol handshake.
func (d *Dialer) connect(ctx context.Context, scope live.Scope) (*websocket.Conn, [][]byte, error) {
	ep, err := d.negotiate(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	if ep.URL == "" {
		return nil, nil, schema.NewError(schema.ErrCodeBackend, "negotiate returned no url")
	}

	wsURL, token, err := d.resolve(ctx, ep)
	if err != nil {
		return nil, nil, err
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := d.opts.WSDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, nil, schema.NewErrorf(schema.ErrCodeTransport, "websocket upgrade: status %d", resp.StatusCode).WithCause(err)
		}
		return nil, nil, schema.NewErrorf(schema.ErrCodeTransport, "websocket dial: %s", err.Error()).WithCause(err)
	}

	pending, err := d.handshake(conn)
	if err != nil {
		conn.Close()
		return nil, nil, schema.NewError(schema.ErrCodeTransport, err.Error()).WithCause(err)
	}
	return conn, pending, nil
}

func (d *Dialer) handshake(conn *websocket.Conn) ([][]byte, error) {
	deadline := time.Now().Add(d.opts.HandshakeTimeout)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, handshakeFrame); err != nil {
		return nil, fmt.Errorf("handshake write: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	_ = conn.SetReadDeadline(deadline)
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("handshake read: %w", err)
	}
	return parseHandshake(frame)
}

type negotiateResponse struct {
	ConnectionID        string `json:"connectionId"`
	ConnectionToken     string `json:"connectionToken"`
	NegotiateVersion    int    `json:"negotiateVersion"`
	URL                 string `json:"url"`
	AccessToken         string `json:"accessToken"`
	Error               string `json:"error"`
	AvailableTransports []struct {
		Transport string `json:"transport"`
	} `json:"availableTransports"`
}

// resolve runs the hub negotiate exchange, following service redirects, and
// returns the WebSocket URL and the token to present on it.
func (d *Dialer) resolve(ctx context.Context, ep Endpoint) (string, string, error) {
	hubURL, token := ep.URL, ep.AccessToken
	for range maxRedirects {
		nr, err := d.negotiateHub(ctx, hubURL, token)
		if err != nil {
			return "", "", err
		}
		if nr.Error != "" {
			return "", "", schema.NewErrorf(schema.ErrCodeTransport, "hub negotiate: %s", nr.Error)
		}
		if nr.URL != "" {
			hubURL, token = nr.URL, nr.AccessToken
			continue
		}
		if len(nr.AvailableTransports) > 0 && !supportsWebSockets(nr) {
			return "", "", schema.NewError(schema.ErrCodeTransport, "hub does not offer WebSockets")
		}
		id := nr.ConnectionToken
		if id == "" {
			id = nr.ConnectionID
		}
		wsURL, err := websocketURL(hubURL, id)
		if err != nil {
			return "", "", err
		}
		return wsURL, token, nil
	}
	return "", "", schema.NewErrorf(schema.ErrCodeTransport, "hub negotiate: more than %d redirects", maxRedirects)
}

func (d *Dialer) negotiateHub(ctx context.Context, hubURL, token string) (negotiateResponse, error) {
	var nr negotiateResponse
	target, err := negotiateURL(hubURL)
	if err != nil {
		return nr, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return nr, schema.NewErrorf(schema.ErrCodeValidation, "hub negotiate request: %s", err.Error())
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.opts.HTTPClient.Do(req)
	if err != nil {
		return nr, schema.NewErrorf(schema.ErrCodeTransport, "hub negotiate: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nr, schema.NewErrorf(schema.ErrCodeTransport, "hub negotiate: read body: %s", err.Error()).WithCause(err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nr, schema.NewError(schema.ErrCodeUnauthorized, "hub negotiate: unauthorized")
	case resp.StatusCode == http.StatusForbidden:
		return nr, schema.NewError(schema.ErrCodeForbidden, "hub negotiate: forbidden")
	case resp.StatusCode >= 300:
		return nr, schema.NewErrorf(schema.ErrCodeTransport, "hub negotiate: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &nr); err != nil {
		return nr, schema.NewErrorf(schema.ErrCodeTransport, "hub negotiate: decode: %s", err.Error()).WithCause(err)
	}
	return nr, nil
}

func supportsWebSockets(nr negotiateResponse) bool {
	for _, t := range nr.AvailableTransports {
		if strings.EqualFold(t.Transport, "WebSockets") {
			return true
		}
	}
	return false
}

func negotiateURL(hubURL string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid hub url %q", hubURL)
	}
	if strings.HasSuffix(u.Path, "/") {
		u.Path += "negotiate"
	} else {
		u.Path += "/negotiate"
	}
	q := u.Query()
	q.Set("negotiateVersion", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func websocketURL(hubURL, id string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid hub url %q", hubURL)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unsupported hub url scheme %q", u.Scheme)
	}
	if id != "" {
		q := u.Query()
		q.Set("id", id)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// channel is one logical hub subscription. It survives transport reconnects.
type channel struct {
	d      *Dialer
	scope  live.Scope
	l      live.Listener
	logger *slog.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *channel) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Close ends the subscription and waits for the receive loop to exit.
func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if conn := c.current(); conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
	})
	<-c.done
	return nil
}

// run receives on conn and reconnects per the policy until ctx ends or the
// connection cannot be restored.
func (c *channel) run(ctx context.Context, conn *websocket.Conn, pending [][]byte) {
	defer close(c.done)

	for {
		err := c.serve(ctx, conn, pending)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		var closed *closedByServer
		if errors.As(err, &closed) && !closed.allowReconnect {
			c.l.OnStatus(live.TransportClosed, err)
			return
		}

		c.l.OnStatus(live.TransportReconnecting, err)
		next, nextPending, rerr := c.reconnect(ctx)
		if rerr != nil {
			if ctx.Err() == nil {
				c.l.OnStatus(live.TransportClosed, rerr)
			}
			return
		}
		c.setConn(next)
		conn, pending = next, nextPending
		c.l.OnStatus(live.TransportReconnected, nil)
	}
}

func (c *channel) reconnect(ctx context.Context) (*websocket.Conn, [][]byte, error) {
	policy := c.d.opts.Reconnect
	if policy.MaxAttempts <= 0 {
		return nil, nil, schema.NewError(schema.ErrCodeTransport, "connection lost and reconnects are disabled")
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := waitForBackoff(ctx, policy.Wait(attempt)); err != nil {
			return nil, nil, err
		}
		conn, pending, err := c.d.connect(ctx, c.scope)
		if err == nil {
			return conn, pending, nil
		}
		lastErr = err
		c.logger.Debug("reconnect attempt failed",
			slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		if !isRetryable(err) {
			break
		}
	}
	return nil, nil, schema.NewErrorf(schema.ErrCodeTransport, "reconnect failed: %v", lastErr).WithCause(lastErr)
}

type closedByServer struct {
	reason         string
	allowReconnect bool
}

func (e *closedByServer) Error() string {
	if e.reason == "" {
		return "connection closed by server"
	}
	return "connection closed by server: " + e.reason
}

// serve reads until the connection fails. A keepalive ping is written on a timer.
func (c *channel) serve(ctx context.Context, conn *websocket.Conn, pending [][]byte) error {
	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.keepAlive(conn, stopPing)

	for _, rec := range pending {
		if err := c.dispatch(rec); err != nil {
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.d.opts.ServerTimeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		records, err := splitRecords(frame)
		if err != nil {
			c.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		for _, rec := range records {
			if err := c.dispatch(rec); err != nil {
				return err
			}
		}
	}
}

// dispatch handles one record. Only a close message ends the connection.
func (c *channel) dispatch(rec []byte) error {
	var msg hubMessage
	if err := json.Unmarshal(rec, &msg); err != nil {
		c.logger.Warn("dropping malformed hub message", slog.String("error", err.Error()))
		return nil
	}
	switch msg.Type {
	case typeInvocation:
		var payload json.RawMessage
		if len(msg.Arguments) > 0 {
			payload = msg.Arguments[0]
		}
		c.l.OnMessage(live.Message{Target: msg.Target, Payload: payload})
	case typePing:
	case typeClose:
		return &closedByServer{reason: msg.Error, allowReconnect: msg.AllowReconnect}
	case typeStreamItem, typeCompletion, typeStreamInvocation, typeCancelInvocation:
		c.logger.Debug("ignoring hub message", slog.Int("type", msg.Type))
	default:
		c.logger.Debug("unknown hub message type", slog.Int("type", msg.Type))
	}
	return nil
}

func (c *channel) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.d.opts.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(c.d.opts.HandshakeTimeout))
			err := conn.WriteMessage(websocket.TextMessage, pingFrame)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
