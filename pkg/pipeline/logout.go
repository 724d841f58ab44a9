package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/session"
)

// Navigator sends the user to route, typically the login screen.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

type NavigatorFunc func(ctx context.Context, route string)

func (f NavigatorFunc) Navigate(ctx context.Context, route string) {
	f(ctx, route)
}

// ServerLogout is the part of a credential provider the cascade needs.
type ServerLogout interface {
	Logout(ctx context.Context, refreshToken string) error
	LoginRoute() string
}

// Cascade ends a session: it clears the store, tells the server in the
// background and navigates to the login route once per logged-out period.
type Cascade struct {
	store     *session.Store
	server    ServerLogout
	navigator Navigator
	logouts   metric.Int64Counter

	navigated   atomic.Bool
	wg          sync.WaitGroup
	unsubscribe func()
}

// NewCascade returns a Cascade for store. navigator and logouts may be nil.
// Call Close to detach it from the store.
func NewCascade(store *session.Store, server ServerLogout, navigator Navigator, logouts metric.Int64Counter) *Cascade {
	c := &Cascade{
		store:     store,
		server:    server,
		navigator: navigator,
		logouts:   logouts,
	}
	c.unsubscribe = store.Subscribe(func(_ session.Session, ok bool) {
		if ok {
			c.navigated.Store(false)
		}
	})

	return c
}

// Logout runs the cascade. It never fails and never blocks on the server.
func (c *Cascade) Logout(ctx context.Context) {
	current, _ := c.store.Get()

	cleared, err := c.store.Clear(ctx)
	if err != nil {
		slogctx.Debug(ctx, "Session cleared in memory only", "error", err)
	}

	if cleared {
		slogctx.Info(ctx, "Logged out", "user_id", current.User.ID)
		if c.logouts != nil {
			c.logouts.Add(ctx, 1)
		}
		if current.RefreshToken != "" {
			c.notifyServer(context.WithoutCancel(ctx), current.RefreshToken)
		}
	}

	if c.navigator != nil && c.navigated.CompareAndSwap(false, true) {
		c.navigator.Navigate(ctx, c.server.LoginRoute())
	}
}

func (c *Cascade) notifyServer(ctx context.Context, refreshToken string) {
	c.wg.Go(func() {
		if err := c.server.Logout(ctx, refreshToken); err != nil {
			slogctx.Warn(ctx, "Server logout failed", "error", err)
		}
	})
}

// Wait blocks until every server notification has finished.
func (c *Cascade) Wait() {
	c.wg.Wait()
}

// Close waits for pending notifications and detaches from the store.
func (c *Cascade) Close() {
	c.unsubscribe()
	c.wg.Wait()
}
