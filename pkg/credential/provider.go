// Package credential implements login, refresh and logout against the auth
// endpoints of each user category.
package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

type Category string

const (
	CategoryAdmin  Category = "admin"
	CategoryTenant Category = "tenant"
)

// Credentials are posted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Provider is the credential capability the pipeline is composed with.
type Provider interface {
	// Login authenticates and stores the resulting session.
	Login(ctx context.Context, creds Credentials) (session.Session, error)
	Refresh(ctx context.Context, refreshToken string) (session.Tokens, error)
	// Logout notifies the server that refreshToken is no longer used.
	Logout(ctx context.Context, refreshToken string) error
	Current() (session.User, bool)
	// LoginRoute is where the user is sent after being logged out.
	LoginRoute() string
	Category() Category
}

// NewProvider returns the provider for category.
func NewProvider(category Category, baseURL string, client Doer, store *session.Store) (Provider, error) {
	switch category {
	case CategoryAdmin:
		return NewAdmin(baseURL, client, store), nil
	case CategoryTenant:
		return NewTenant(baseURL, client, store), nil
	default:
		return nil, fmt.Errorf("%w: %q", serviceerr.ErrUnknownUserCategory, category)
	}
}

// provider holds what Admin and Tenant share: the auth API of their category
// and the store logins are written to.
type provider struct {
	api        authAPI
	store      *session.Store
	category   Category
	loginRoute string
}

func newProvider(category Category, prefix, loginRoute, baseURL string, client Doer, store *session.Store) provider {
	if client == nil {
		client = http.DefaultClient
	}

	return provider{
		api: authAPI{
			baseURL: baseURL,
			prefix:  prefix,
			client:  client,
		},
		store:      store,
		category:   category,
		loginRoute: loginRoute,
	}
}

func (p provider) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	var data authData
	if err := p.api.post(ctx, p.api.client, PathLogin, creds, &data); err != nil {
		return session.Session{}, err
	}

	return p.save(ctx, data)
}

func (p provider) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	var data authData
	body := map[string]string{"refreshToken": refreshToken}
	if err := p.api.post(ctx, p.api.client, PathRefresh, body, &data); err != nil {
		return session.Tokens{}, err
	}

	return data.tokens(), nil
}

func (p provider) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}

	return p.api.post(ctx, p.api.client, PathLogout, body, nil)
}

func (p provider) Current() (session.User, bool) {
	s, ok := p.store.Get()
	return s.User, ok
}

func (p provider) LoginRoute() string {
	return p.loginRoute
}

func (p provider) Category() Category {
	return p.category
}

// save writes the session carried by data to the store.
func (p provider) save(ctx context.Context, data authData) (session.Session, error) {
	if data.User == nil {
		return session.Session{}, fmt.Errorf("%w: response carries no user", serviceerr.ErrInvalidSession)
	}

	s := session.Session{User: *data.User}.WithTokens(data.AccessToken, data.RefreshToken, data.ExpiresAt)

	err := p.store.Replace(ctx, s)
	switch {
	case errors.Is(err, serviceerr.ErrInvalidSession):
		return session.Session{}, err
	case err != nil:
		// The session is usable for this process even if it was not persisted.
		slogctx.Warn(ctx, "Session is not persisted", "error", err)
	}

	slogctx.Info(ctx, "Session stored", "user_id", s.User.ID, "category", p.category)

	return s, nil
}
