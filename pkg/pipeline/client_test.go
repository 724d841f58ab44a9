package pipeline_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/apierror"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/pipeline"
	"github.com/openkcm/session-client/pkg/session"
	sessionmock "github.com/openkcm/session-client/pkg/session/mock"
)

const tokenExpired = `{"success":false,"message":"token expired","errors":[{"code":"TOKEN_EXPIRED"}]}`

// apiServer accepts "access-two" only and hands it out on refresh.
type apiServer struct {
	*httptest.Server

	refreshStatus int
	alwaysReject  bool
	// beforeRefresh runs in the refresh handler before it answers.
	beforeRefresh func()

	ordersHits   atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32

	mu         sync.Mutex
	requestIDs map[string][]string
	bodies     []string
}

func startAPIServer(t *testing.T) *apiServer {
	t.Helper()

	s := &apiServer{
		refreshStatus: http.StatusOK,
		requestIDs:    make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		s.ordersHits.Add(1)

		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		id := r.Header.Get(pipeline.HeaderRequestID)
		s.requestIDs[id] = append(s.requestIDs[id], r.Header.Get(pipeline.HeaderAuthorization))
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if s.alwaysReject || r.Header.Get(pipeline.HeaderAuthorization) != "Bearer access-two" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(tokenExpired))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"order-1"}}`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":"UNAUTHORIZED","message":"invalid credentials"}]}`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if s.beforeRefresh != nil {
			s.beforeRefresh()
		}
		if s.refreshStatus != http.StatusOK {
			w.WriteHeader(s.refreshStatus)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"accessToken":"access-two","refreshToken":"refresh-two"}}`))
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		s.logoutCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

type navigations struct {
	mu     sync.Mutex
	routes []string
}

func (n *navigations) Navigate(_ context.Context, route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *navigations) get() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

type fixture struct {
	api       *apiServer
	store     *session.Store
	persister *sessionmock.Persister
	nav       *navigations
	client    *pipeline.Client
}

func newFixture(t *testing.T, withSession bool) *fixture {
	t.Helper()

	f := &fixture{
		api:       startAPIServer(t),
		persister: sessionmock.NewInMemPersister(nil, nil, nil),
		nav:       &navigations{},
	}
	f.store = session.NewStore(f.persister)
	if withSession {
		require.NoError(t, f.store.Replace(t.Context(), session.Session{
			User:         session.User{ID: "user-one", DisplayName: "User One"},
			AccessToken:  "access-one",
			RefreshToken: "refresh-one",
		}))
	}

	provider := credential.NewTenant(f.api.URL, f.api.Client(), f.store)

	client, err := pipeline.New(t.Context(), f.store, provider,
		pipeline.WithHTTPClient(f.api.Client()),
		pipeline.WithNavigator(f.nav),
		pipeline.WithBaseURL(f.api.URL),
	)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	f.client = client

	return f
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, error) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.api.URL+path, nil)
	require.NoError(t, err)

	return f.client.Do(req)
}

func TestClient_AttachesCredentials(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.store.Replace(t.Context(), session.Session{
		User:         session.User{ID: "user-one"},
		AccessToken:  "access-two",
		RefreshToken: "refresh-two",
	}))

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.api.URL+"/orders", nil)
	require.NoError(t, err)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Empty(t, req.Header.Get(pipeline.HeaderAuthorization), "the caller's request must not be modified")

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	require.Len(t, f.api.requestIDs, 1)
	for id, auths := range f.api.requestIDs {
		assert.NotEmpty(t, id)
		assert.Equal(t, []string{"Bearer access-two"}, auths)
	}
}

func TestClient_SingleFlight(t *testing.T) {
	const callers = 8

	f := newFixture(t, true)
	f.api.beforeRefresh = func() {
		deadline := time.Now().Add(5 * time.Second)
		for f.client.Coordinator().State().Pending() < callers-1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Go(func() {
			resp, err := f.get(t, "/orders")
			if err == nil {
				_ = resp.Body.Close()
			}
			errs[i] = err
		})
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
	assert.EqualValues(t, 2*callers, f.api.ordersHits.Load())
	assert.Empty(t, f.nav.get())

	s, ok := f.store.Get()
	require.True(t, ok)
	assert.Equal(t, "access-two", s.AccessToken)
	assert.Equal(t, "refresh-two", s.RefreshToken)

	// A request after the refresh uses the new token right away.
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, f.api.URL+"/orders", nil)
	require.NoError(t, err)
	req.Header.Set(pipeline.HeaderRequestID, "after-refresh")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.EqualValues(t, 1, f.api.refreshCalls.Load(), "the refreshed token needs no second refresh")

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	assert.Equal(t, []string{"Bearer access-two"}, f.api.requestIDs["after-refresh"])
	delete(f.api.requestIDs, "after-refresh")

	assert.Len(t, f.api.requestIDs, callers, "replays keep the request id of the original attempt")
	for _, auths := range f.api.requestIDs {
		assert.Equal(t, []string{"Bearer access-one", "Bearer access-two"}, auths)
	}
}

func TestClient_RefreshFailure(t *testing.T) {
	const callers = 4

	f := newFixture(t, true)
	f.api.refreshStatus = http.StatusInternalServerError
	f.api.beforeRefresh = func() {
		deadline := time.Now().Add(5 * time.Second)
		for f.client.Coordinator().State().Pending() < callers-1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Go(func() {
			_, errs[i] = f.get(t, "/orders")
		})
	}
	wg.Wait()
	f.client.Close()

	for _, err := range errs {
		assert.ErrorIs(t, err, serviceerr.ErrSessionExpired)
		assert.Equal(t, "session expired, please log in again", strings.SplitN(err.Error(), ":", 2)[0])
	}
	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
	assert.EqualValues(t, 1, f.api.logoutCalls.Load())
	assert.Equal(t, []string{"/login"}, f.nav.get())

	_, ok := f.store.Get()
	assert.False(t, ok)
	assert.Empty(t, f.persister.Snapshot())
}

func TestClient_NoRefreshToken(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.get(t, "/orders")
	f.client.Close()

	assert.ErrorIs(t, err, serviceerr.ErrSessionExpired)
	assert.Zero(t, f.api.refreshCalls.Load())
	assert.Zero(t, f.api.logoutCalls.Load(), "there was no session to end on the server")
	assert.Equal(t, []string{"/login"}, f.nav.get())
}

func TestClient_ReplayCap(t *testing.T) {
	f := newFixture(t, true)
	f.api.alwaysReject = true

	_, err := f.get(t, "/orders")

	assert.ErrorIs(t, err, pipeline.ErrReplayRejected)
	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.AuthFailure)
	assert.True(t, pipeline.Replayed(apiErr.Request))

	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
	assert.EqualValues(t, 2, f.api.ordersHits.Load())
}

func TestClient_ExcludedURL(t *testing.T) {
	f := newFixture(t, true)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.api.URL+"/auth/login", strings.NewReader(`{}`))
	require.NoError(t, err)

	_, err = f.client.Do(req)

	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.AuthFailure)
	assert.Equal(t, apierror.Code("UNAUTHORIZED"), apiErr.Code)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.Zero(t, f.api.refreshCalls.Load())

	_, ok := f.store.Get()
	assert.True(t, ok, "excluded failures must not end the session")
}

func TestClient_ApplicationError(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.get(t, "/missing")

	var apiErr *apierror.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.CodeNotFound, apiErr.Code)
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus)
	assert.False(t, apiErr.AuthFailure)
	assert.Zero(t, f.api.refreshCalls.Load())
}

func TestClient_TransportError(t *testing.T) {
	f := newFixture(t, true)
	url := f.api.URL
	f.api.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url+"/orders", nil)
	require.NoError(t, err)

	_, err = f.client.Do(req)

	require.Error(t, err)
	var apiErr *apierror.Error
	assert.False(t, errors.As(err, &apiErr), "transport errors are returned as they are")
	assert.Zero(t, f.api.refreshCalls.Load())
}

func TestClient_ReplaysBody(t *testing.T) {
	f := newFixture(t, true)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, f.api.URL+"/orders", io.NopCloser(strings.NewReader(`{"item":"aspirin"}`)))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	assert.Equal(t, []string{`{"item":"aspirin"}`, `{"item":"aspirin"}`}, f.api.bodies)
}

func TestClient_DoJSON(t *testing.T) {
	f := newFixture(t, true)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, f.client.DoJSON(t.Context(), http.MethodGet, "/orders", nil, &out))

	assert.Equal(t, "order-1", out.ID)
	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
}
