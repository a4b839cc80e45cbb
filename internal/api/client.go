// Package api is the client for the orchestration backend: starting journeys,
// negotiating live channels and reading flow status.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rendis/unitconsole/internal/validation"
	"github.com/rendis/unitconsole/pkg/schema"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://console.example.com/api".
	BaseURL string
	// Prefix is the route group of the orchestration endpoints.
	Prefix          string
	Timeout         time.Duration
	MaxResponseBody int64
}

const (
	DefaultPrefix          = "/agentic"
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024
)

// StartRequest is the body of a journey start.
type StartRequest struct {
	Telemetry string `json:"telemetry"`
	UnitID    string `json:"unitId,omitempty"`
}

// NegotiateRequest selects the scope of a live channel: an instance, or a unit
// together with the requesting user.
type NegotiateRequest struct {
	InstanceID string
	UnitID     string
	UserID     string
}

// Connection is where to open a live channel.
type Connection struct {
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
}

// Client calls the backend. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	origin    string
	base      string
	maxBody   int64
	validator *validation.PayloadValidator
	logger    *slog.Logger
}

// NewClient creates a Client. httpClient carries authentication (see auth.Transport);
// nil means http.DefaultClient semantics with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.ParseRequestURI(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid backend url %q", cfg.BaseURL)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		c := *httpClient
		c.Timeout = timeout
		httpClient = &c
	}
	maxBody := cfg.MaxResponseBody
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBody
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Client{
		http:      httpClient,
		origin:    base,
		base:      base + strings.TrimRight(prefix, "/"),
		maxBody:   maxBody,
		validator: validation.MustNewPayloadValidator(),
		logger:    logger,
	}, nil
}

// StartJourney starts an orchestration run for a telemetry description and
// returns the new instance id. The backend answers {instanceId} or {id}.
func (c *Client) StartJourney(ctx context.Context, req StartRequest) (string, error) {
	req.Telemetry = strings.TrimSpace(req.Telemetry)
	if req.Telemetry == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "telemetry is required")
	}

	var resp struct {
		InstanceID string `json:"instanceId"`
		ID         string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/start", nil, req, &resp); err != nil {
		return "", err
	}
	id := resp.InstanceID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", schema.NewError(schema.ErrCodeBackend, "start response carries no instance id")
	}
	c.logger.InfoContext(ctx, "journey started", slog.String("instance_id", id), slog.String("unit_id", req.UnitID))
	return id, nil
}

// Negotiate asks the backend where to open a live channel for req.
func (c *Client) Negotiate(ctx context.Context, req NegotiateRequest) (Connection, error) {
	q := url.Values{}
	switch {
	case req.InstanceID != "":
		q.Set("instanceId", req.InstanceID)
	case req.UnitID != "":
		q.Set("unitId", req.UnitID)
		if req.UserID != "" {
			q.Set("userId", req.UserID)
		}
	default:
		return Connection{}, schema.NewError(schema.ErrCodeValidation, "negotiate needs an instance id or a unit id")
	}

	var conn Connection
	if err := c.do(ctx, http.MethodGet, "/negotiate", q, nil, &conn); err != nil {
		return Connection{}, err
	}
	if conn.URL == "" {
		return Connection{}, schema.NewError(schema.ErrCodeBackend, "negotiate response carries no url")
	}
	return conn, nil
}

// Snapshot reads the current status of one instance. The backend answers with
// the record itself or a one-element array.
func (c *Client) Snapshot(ctx context.Context, instanceID string) (schema.FlowInstance, error) {
	if instanceID == "" {
		return schema.FlowInstance{}, schema.NewError(schema.ErrCodeValidation, "instance id is required")
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/flows", url.Values{"instanceId": {instanceID}}, nil, &raw); err != nil {
		return schema.FlowInstance{}, err
	}

	record := bytes.TrimSpace(raw)
	if len(record) > 0 && record[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(record, &items); err != nil {
			return schema.FlowInstance{}, schema.NewError(schema.ErrCodeMalformedPayload, "flow status is not a JSON array").WithCause(err)
		}
		if len(items) == 0 {
			return schema.FlowInstance{}, schema.NewErrorf(schema.ErrCodeNotFound, "no status for instance %q", instanceID).WithInstance(instanceID)
		}
		record = items[0]
	}

	fi, err := c.validator.DecodeFlowInstance(record)
	if err != nil {
		return schema.FlowInstance{}, err
	}
	if fi.InstanceID == "" {
		fi.InstanceID = instanceID
	}
	return fi, nil
}

// UnitFlows lists the journey runs of a unit. Records that fail validation are
// skipped and logged.
func (c *Client) UnitFlows(ctx context.Context, unitID string) ([]schema.FlowInstance, error) {
	if unitID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "unit id is required")
	}

	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/flows", url.Values{"unitId": {unitID}}, nil, &items); err != nil {
		return nil, err
	}

	flows := make([]schema.FlowInstance, 0, len(items))
	for i, item := range items {
		fi, err := c.validator.DecodeFlowInstance(item)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping malformed flow record",
				slog.String("unit_id", unitID), slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		flows = append(flows, fi)
	}
	return flows, nil
}

// do sends one orchestration request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.send(ctx, method, c.base, path, query, body, out)
}

// send issues one request against root+path. Resource routes such as /unit sit
// on the origin, outside the orchestration prefix.
func (c *Client) send(ctx context.Context, method, root, path string, query url.Values, body, out any) error {
	target := root + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s %s: marshal body", method, path).WithCause(err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s %s: %s", method, path, err.Error()).WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeBackend, "%s %s: %s", method, path, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeBackend, "%s %s: read body", method, path).WithCause(err)
	}
	c.logger.DebugContext(ctx, "backend call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if err := statusError(method, path, resp.StatusCode, data); err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return schema.NewErrorf(schema.ErrCodeMalformedPayload, "%s %s: decode response", method, path).WithCause(err)
	}
	return nil
}

func statusError(method, path string, status int, body []byte) error {
	if status < 300 {
		return nil
	}
	code := schema.ErrCodeBackend
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = schema.ErrCodeValidation
	case http.StatusUnauthorized:
		code = schema.ErrCodeUnauthorized
	case http.StatusForbidden:
		code = schema.ErrCodeForbidden
	case http.StatusNotFound:
		code = schema.ErrCodeNotFound
	}
	snippet := truncateUTF8(strings.TrimSpace(string(body)), maxErrorBody)
	return schema.NewErrorf(code, "%s %s: status %d", method, path, status).
		WithDetails(map[string]any{"status": status, "body": snippet})
}

const maxErrorBody = 200

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// String is used in logs and diagnostics.
func (c *Client) String() string {
	return fmt.Sprintf("api.Client(%s)", c.base)
}
