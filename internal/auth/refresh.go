package auth

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rendis/unitconsole/internal/metrics"
	"github.com/rendis/unitconsole/internal/scheduler"
	"github.com/rendis/unitconsole/pkg/schema"
)

// DefaultSkew treats tokens as stale this long before they expire.
const DefaultSkew = 5 * time.Minute

// Acquirer obtains a new token from an identity provider.
type Acquirer interface {
	Acquire(ctx context.Context) (Token, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc func(ctx context.Context) (Token, error)

func (f AcquirerFunc) Acquire(ctx context.Context) (Token, error) { return f(ctx) }

// RefreshOptions configures a RefreshingSource.
type RefreshOptions struct {
	Skew    time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// RefreshingSource caches a token and re-acquires it when it is about to expire.
// Concurrent callers that find the token stale share a single acquisition.
type RefreshingSource struct {
	acquirer Acquirer
	skew     time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	group    singleflight.Group

	mu      sync.RWMutex
	current Token
}

// NewRefreshingSource wraps acquirer.
func NewRefreshingSource(acquirer Acquirer, opts RefreshOptions) *RefreshingSource {
	if opts.Skew <= 0 {
		opts.Skew = DefaultSkew
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RefreshingSource{
		acquirer: acquirer,
		skew:     opts.Skew,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Token returns the cached token, refreshing it first when it is missing or stale.
func (s *RefreshingSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if s.valid(cur) {
		return cur.Value, nil
	}
	tok, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Refresh re-acquires the token if it is stale. A fresh token is left alone.
func (s *RefreshingSource) Refresh(ctx context.Context) error {
	s.mu.RLock()
	cur := s.current
	s.mu.RUnlock()
	if s.valid(cur) {
		return nil
	}
	_, err := s.refresh(ctx)
	return err
}

// Invalidate drops the cached token, e.g. after the backend answered 401.
func (s *RefreshingSource) Invalidate() {
	s.mu.Lock()
	s.current = Token{}
	s.mu.Unlock()
}

// Job returns a scheduler job that keeps the token fresh on schedule.
func (s *RefreshingSource) Job(schedule string) scheduler.Job {
	return scheduler.Job{Name: "token-refresh", Schedule: schedule, Run: s.Refresh}
}

func (s *RefreshingSource) valid(t Token) bool {
	if t.Value == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return s.now().Add(s.skew).Before(t.Expiry)
}

func (s *RefreshingSource) refresh(ctx context.Context) (Token, error) {
	v, err, _ := s.group.Do("token", func() (any, error) {
		tok, err := s.acquirer.Acquire(ctx)
		if err != nil {
			s.metrics.TokenRefreshed("error")
			s.logger.Warn("token refresh failed", slog.String("error", err.Error()))
			return Token{}, schema.NewErrorf(schema.ErrCodeUnauthorized, "acquire token: %s", err.Error()).WithCause(err)
		}
		if tok.Value == "" {
			s.metrics.TokenRefreshed("empty")
			return Token{}, schema.NewError(schema.ErrCodeUnauthorized, "identity provider returned an empty token")
		}
		if tok.Expiry.IsZero() {
			if exp, ok := Expiry(tok.Value); ok {
				tok.Expiry = exp
			}
		}

		s.mu.Lock()
		s.current = tok
		s.mu.Unlock()

		s.metrics.TokenRefreshed("ok")
		s.logger.Debug("token refreshed", slog.Time("expires", tok.Expiry))
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}
