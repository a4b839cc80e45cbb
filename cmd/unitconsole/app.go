package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rendis/unitconsole/internal/api"
	"github.com/rendis/unitconsole/internal/auth"
	"github.com/rendis/unitconsole/internal/console"
	"github.com/rendis/unitconsole/internal/expressions"
	"github.com/rendis/unitconsole/internal/i18n"
	"github.com/rendis/unitconsole/internal/live"
	"github.com/rendis/unitconsole/internal/logging"
	"github.com/rendis/unitconsole/internal/metrics"
	"github.com/rendis/unitconsole/internal/scheduler"
	"github.com/rendis/unitconsole/internal/signalr"
	"github.com/rendis/unitconsole/internal/streaming"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	client    *api.Client
	hub       *streaming.MemoryHub
	console   *console.Console
	catalog   i18n.Catalog
	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg Config, logOut io.Writer) (*app, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := logging.New(logOut, cfg.LogFormat, cfg.LogLevel)
	m := metrics.Default()
	sched := scheduler.NewScheduler(logger)

	source, err := tokenSource(cfg, logger, m, sched)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.BaseURL,
		Prefix:  cfg.APIPrefix,
		Timeout: cfg.RequestTimeout,
	}, auth.NewClient(source, logger), logger)
	if err != nil {
		return nil, err
	}

	registry, err := expressions.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("expression engines: %w", err)
	}

	hub := streaming.NewMemoryHub()
	dialer := signalr.NewDialer(negotiator(client, cfg.UserID), signalr.Options{Logger: logger})
	c := console.New(console.Config{
		Backend:         client,
		Dialer:          dialer,
		Hub:             hub,
		Registry:        registry,
		UnitIDQuery:     cfg.UnitIDQuery,
		RefreshSchedule: cfg.RefreshSchedule,
		Logger:          logger,
		Metrics:         m,
	})

	if err := sched.Start(context.WithoutCancel(ctx)); err != nil {
		c.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		client:    client,
		hub:       hub,
		console:   c,
		catalog:   i18n.New(cfg.Language),
		scheduler: sched,
	}, nil
}

func (a *app) close() {
	a.console.Close()
	if err := a.scheduler.Stop(); err != nil {
		a.logger.Warn("scheduler stop failed", slog.String("error", err.Error()))
	}
}

// tokenSource picks Entra client credentials, a static token, or none. The
// Entra token is kept fresh by a scheduler job.
func tokenSource(cfg Config, logger *slog.Logger, m *metrics.Metrics, sched *scheduler.Scheduler) (auth.TokenSource, error) {
	switch {
	case cfg.Entra.Enabled():
		acq, err := auth.NewEntraAcquirer(auth.EntraConfig{
			TenantID:     cfg.Entra.TenantID,
			ClientID:     cfg.Entra.ClientID,
			ClientSecret: cfg.Entra.ClientSecret,
			Scopes:       cfg.Entra.Scopes,
			TokenURL:     cfg.Entra.TokenURL,
		}, nil)
		if err != nil {
			return nil, err
		}
		src := auth.NewRefreshingSource(acq, auth.RefreshOptions{Logger: logger, Metrics: m})
		if cfg.TokenRefreshSchedule != "" && cfg.TokenRefreshSchedule != "off" {
			if err := sched.Add(src.Job(cfg.TokenRefreshSchedule)); err != nil {
				return nil, fmt.Errorf("token refresh schedule: %w", err)
			}
		}
		return src, nil
	case cfg.Token != "":
		return auth.StaticToken(cfg.Token), nil
	default:
		return nil, nil
	}
}

// negotiator resolves live channel endpoints through the backend. Unit scopes
// are negotiated on behalf of userID.
func negotiator(client *api.Client, userID string) signalr.NegotiateFunc {
	return func(ctx context.Context, scope live.Scope) (signalr.Endpoint, error) {
		req := api.NegotiateRequest{}
		switch scope.Kind {
		case live.ScopeUnit:
			req.UnitID = scope.Key
			req.UserID = userID
		default:
			req.InstanceID = scope.Key
		}
		conn, err := client.Negotiate(ctx, req)
		if err != nil {
			return signalr.Endpoint{}, err
		}
		return signalr.Endpoint{URL: conn.URL, AccessToken: conn.AccessToken}, nil
	}
}
