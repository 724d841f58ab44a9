// Package refresh coordinates token refresh across concurrent requests that
// failed authentication: one refresh call per cycle, every caller gets the
// same outcome.
package refresh

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (session.Tokens, error)
}

// Logouter ends the session when it cannot be recovered.
type Logouter interface {
	Logout(ctx context.Context)
}

type Option func(*Coordinator)

func WithMeter(meter metric.Meter) Option {
	return func(c *Coordinator) {
		c.meter = meter
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// Coordinator runs at most one refresh at a time and lets every other caller
// wait for its outcome.
type Coordinator struct {
	state     State
	store     *session.Store
	refresher Refresher
	logouter  Logouter

	meter       metric.Meter
	tracer      trace.Tracer
	instruments *instruments
}

func NewCoordinator(ctx context.Context, store *session.Store, refresher Refresher, logouter Logouter, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		store:     store,
		refresher: refresher,
		logouter:  logouter,
		meter:     otel.Meter(instrumentationName),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	inst, err := newInstruments(ctx, c.meter)
	if err != nil {
		return nil, err
	}
	c.instruments = inst

	return c, nil
}

// State exposes the coordinator bookkeeping for inspection.
func (c *Coordinator) State() *State {
	return &c.state
}

// Recover returns an access token to replay req with after it failed
// authentication using failedToken. It either joins the running refresh,
// reuses a token stored since the request was sent, or leads a new refresh.
// An unrecoverable session yields an error matching
// serviceerr.ErrSessionExpired after the session has been logged out.
func (c *Coordinator) Recover(ctx context.Context, req *http.Request, failedToken string) (string, error) {
	w := NewWaiter(req)

	for {
		if c.state.EnqueueWaiter(w) {
			return c.wait(ctx, w)
		}

		if s, ok := c.store.Get(); ok && s.AccessToken != failedToken {
			slogctx.Debug(ctx, "Replaying with the token stored since the request was sent")
			return s.AccessToken, nil
		}

		if c.state.TryEnterRefresh() {
			return c.lead(ctx, failedToken)
		}
	}
}

func (c *Coordinator) wait(ctx context.Context, w *Waiter) (string, error) {
	o, err := w.Wait(ctx)
	if err != nil {
		return "", err
	}
	if o.Err() != nil {
		return "", o.Err()
	}

	return o.AccessToken(), nil
}

// lead performs one refresh cycle. The caller must have entered the
// refreshing state.
func (c *Coordinator) lead(ctx context.Context, failedToken string) (string, error) {
	// The cycle serves every waiter, so it outlives the leader's cancellation.
	ctx = context.WithoutCancel(ctx)

	current, ok := c.store.Get()
	if ok && current.AccessToken != failedToken {
		n := c.state.ResolveAll(Success(current.AccessToken, current.RefreshToken))
		c.instruments.record(ctx, resultStale, time.Time{})
		slogctx.Debug(ctx, "Token changed before refresh started", "waiters", n)

		return current.AccessToken, nil
	}

	if !ok || current.RefreshToken == "" {
		slogctx.Info(ctx, "No refresh token available, logging out")
		c.logouter.Logout(ctx)

		err := fmt.Errorf("%w: %w", serviceerr.ErrSessionExpired, serviceerr.ErrNoRefreshToken)
		c.state.ResolveAll(Failure(err))
		c.instruments.record(ctx, resultNoSession, time.Time{})

		return "", err
	}

	ctx = slogctx.With(ctx, "user_id", current.User.ID)
	started := time.Now()

	next, err := c.refresh(ctx, current)
	if err != nil {
		slogctx.Warn(ctx, "Could not refresh the session, logging out", "error", err)
		c.logouter.Logout(ctx)

		err = fmt.Errorf("%w: %w", serviceerr.ErrSessionExpired, err)
		n := c.state.ResolveAll(Failure(err))
		c.instruments.record(ctx, resultFailure, started)
		slogctx.Debug(ctx, "Failed waiting requests", "waiters", n)

		return "", err
	}

	// Persistence failures are logged by the store; memory is updated anyway.
	_ = c.store.Replace(ctx, next)

	n := c.state.ResolveAll(Success(next.AccessToken, next.RefreshToken))
	c.instruments.record(ctx, resultSuccess, started)
	slogctx.Info(ctx, "Refreshed the session", "waiters", n)

	return next.AccessToken, nil
}

func (c *Coordinator) refresh(ctx context.Context, current session.Session) (session.Session, error) {
	ctx, span := c.tracer.Start(ctx, "refresh")
	defer span.End()

	tokens, err := c.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return session.Session{}, err
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = current.RefreshToken
	}

	next := current.WithTokens(tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt)
	if err := next.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token pair")
		return session.Session{}, err
	}

	return next, nil
}
