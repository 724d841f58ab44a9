package pipeline

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
)

// NewHTTPClient returns the client used for API and auth calls. A nil
// tlsConfig uses the default transport settings.
func NewHTTPClient(timeout time.Duration, tlsConfig *tls.Config, userAgent string) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		base.TLSClientConfig = tlsConfig
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &headerRoundTripper{
			userAgent: userAgent,
			next:      otelhttp.NewTransport(base),
		},
	}
}

// headerRoundTripper adds the headers every call carries.
type headerRoundTripper struct {
	userAgent string
	next      http.RoundTripper
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	missingID := req.Header.Get(HeaderRequestID) == ""
	missingUA := t.userAgent != "" && req.Header.Get("User-Agent") == ""
	if !missingID && !missingUA {
		return t.next.RoundTrip(req)
	}

	// A RoundTripper must not modify the caller's request.
	req = req.Clone(req.Context())
	if missingID {
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}
	if missingUA {
		req.Header.Set("User-Agent", t.userAgent)
	}

	return t.next.RoundTrip(req)
}

func setBearer(req *http.Request, token string) {
	if token == "" {
		req.Header.Del(HeaderAuthorization)
		return
	}
	req.Header.Set(HeaderAuthorization, "Bearer "+token)
}
