package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/openkcm/session-client/pkg/apierror"
	"github.com/openkcm/session-client/pkg/session"
)

// Doer executes HTTP requests. *http.Client and the authenticated pipeline
// both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Endpoint paths relative to the category prefix. The pipeline never runs
// recovery for URLs containing them.
const (
	PathLogin          = "auth/login"
	PathRefresh        = "auth/refresh"
	PathLogout         = "auth/logout"
	PathSwitchPharmacy = "auth/switch-pharmacy"
)

// authData is the data member of login, refresh and switch responses.
type authData struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    time.Time     `json:"expiresAt,omitzero"`
	User         *session.User `json:"user,omitempty"`
}

func (d authData) tokens() session.Tokens {
	return session.Tokens{
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		ExpiresAt:    d.ExpiresAt,
	}
}

// authAPI calls the auth endpoints of one user category.
type authAPI struct {
	baseURL string
	prefix  string
	client  Doer
}

func (a authAPI) url(path string) (string, error) {
	u, err := url.JoinPath(a.baseURL, a.prefix+path)
	if err != nil {
		return "", fmt.Errorf("making %s path: %w", path, err)
	}

	return u, nil
}

// post sends body as JSON to path through client and decodes the data member
// of a successful envelope into out. A nil out ignores the response body.
// Failures are returned as *apierror.Error.
func (a authAPI) post(ctx context.Context, client Doer, path string, body, out any) error {
	endpoint, err := a.url(path)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return apierror.Normalize(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return apierror.FromResponse(resp, req)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	var env apierror.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	if !env.Success {
		return apierror.FromEnvelope(env, resp.StatusCode, req)
	}

	if err := env.DecodeData(out); err != nil {
		return fmt.Errorf("decoding %s data: %w", path, err)
	}

	return nil
}
