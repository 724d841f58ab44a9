// Package pipeline sends API requests with the current bearer token and
// recovers from authentication failures by refreshing and replaying, or by
// logging out when the session cannot be recovered.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/apierror"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/refresh"
	"github.com/openkcm/session-client/pkg/session"
)

// Excluded lists URL substrings whose failures are returned as they are.
var Excluded = []string{credential.PathLogin, credential.PathRefresh, credential.PathLogout}

type options struct {
	client    credential.Doer
	navigator Navigator
	baseURL   string
	meter     metric.Meter
	tracer    trace.Tracer
}

type Option func(*options)

// WithHTTPClient sets the client requests are executed with.
func WithHTTPClient(client credential.Doer) Option {
	return func(o *options) {
		o.client = client
	}
}

func WithNavigator(n Navigator) Option {
	return func(o *options) {
		o.navigator = n
	}
}

// WithBaseURL sets the URL relative paths of DoJSON are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// Client is the authenticated request pipeline.
type Client struct {
	store       *session.Store
	client      credential.Doer
	baseURL     *url.URL
	cascade     *Cascade
	coordinator *refresh.Coordinator
	replayer    *Replayer
}

// New composes the pipeline for provider on top of store.
func New(ctx context.Context, store *session.Store, provider credential.Provider, opts ...Option) (*Client, error) {
	o := options{
		client: http.DefaultClient,
		meter:  otel.Meter(instrumentationName),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}

	inst, err := newInstruments(ctx, o.meter)
	if err != nil {
		return nil, err
	}

	c := &Client{
		store:  store,
		client: o.client,
	}

	if o.baseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		c.baseURL = base
	}

	c.cascade = NewCascade(store, provider, o.navigator, inst.logouts)
	c.replayer = NewReplayer(c.execute, inst.replays)
	c.coordinator, err = refresh.NewCoordinator(ctx, store, provider, c.cascade,
		refresh.WithMeter(o.meter),
		refresh.WithTracer(o.tracer),
	)
	if err != nil {
		c.cascade.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) Store() *session.Store {
	return c.store
}

func (c *Client) Coordinator() *refresh.Coordinator {
	return c.coordinator
}

// Logout ends the session on behalf of the user.
func (c *Client) Logout(ctx context.Context) {
	c.cascade.Logout(ctx)
}

// Close waits for background server logouts and releases the store.
func (c *Client) Close() {
	c.cascade.Close()
}

// Do sends req with the current access token. Transport errors are returned
// as they are; an error status is returned as *apierror.Error. An auth
// failure outside the excluded URLs is recovered through the coordinator and
// replayed once.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	req, err := prepare(req)
	if err != nil {
		return nil, err
	}
	ctx := slogctx.With(req.Context(), "request_id", req.Header.Get(HeaderRequestID))

	var token string
	if s, ok := c.store.Get(); ok {
		token = s.AccessToken
	}
	setBearer(req, token)

	resp, err := c.execute(req)
	if err == nil {
		return resp, nil
	}

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		return nil, err
	}
	if !apiErr.AuthFailure || IsExcluded(req.URL) || Replayed(req) {
		return nil, apiErr
	}

	slogctx.Debug(ctx, "Request failed authentication", "method", req.Method, "path", req.URL.Path, "code", apiErr.Code)

	fresh, err := c.coordinator.Recover(ctx, req, token)
	if err != nil {
		return nil, err
	}

	return c.replayer.Replay(req, fresh)
}

// NewRequest builds a request for path, which is resolved against the base
// URL unless it is absolute.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	return http.NewRequestWithContext(ctx, method, target, body)
}

// DoJSON sends in as JSON to path and decodes the data member of the
// response envelope into out. in and out may be nil.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	var env apierror.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.Success {
		return apierror.FromEnvelope(env, resp.StatusCode, req)
	}

	return env.DecodeData(out)
}

func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parsing path: %w", err)
	}
	if c.baseURL == nil || ref.IsAbs() {
		return ref.String(), nil
	}

	return c.baseURL.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(ref.Path, "/"),
		RawQuery: ref.RawQuery,
	}).String(), nil
}

func (c *Client) execute(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apierror.FromResponse(resp, req)
	}

	return resp, nil
}

// IsExcluded reports whether failures of u bypass recovery.
func IsExcluded(u *url.URL) bool {
	for _, sub := range Excluded {
		if strings.Contains(u.Path, sub) {
			return true
		}
	}

	return false
}

// prepare returns a copy of req that can be sent more than once and carries
// a request id.
func prepare(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		payload, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
		out.Body, _ = out.GetBody()
	}

	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.NewString())
	}

	return out, nil
}
