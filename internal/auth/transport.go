package auth

import (
	"log/slog"
	"net/http"
	"os"
)

// Transport attaches "Authorization: Bearer <token>" to every request it sends.
// When the source has no token, or fails to produce one, the request is sent as
// is and the backend decides.
type Transport struct {
	Base   http.RoundTripper
	Source TokenSource
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, source TokenSource, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Transport{Base: base, Source: source, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Source == nil || req.Header.Get("Authorization") != "" {
		return base.RoundTrip(req)
	}

	token, err := t.Source.Token(req.Context())
	if err != nil {
		t.Logger.WarnContext(req.Context(), "sending request without token",
			slog.String("url", req.URL.Redacted()),
			slog.String("error", err.Error()))
	}
	if token == "" {
		return base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	resp, err := base.RoundTrip(out)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := t.Source.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}
	return resp, err
}

// NewClient returns an http.Client whose requests carry tokens from source.
func NewClient(source TokenSource, logger *slog.Logger) *http.Client {
	return &http.Client{Transport: NewTransport(nil, source, logger)}
}
