package business

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/config"
	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/session"
)

// PasswordEnv is read by LoginMain when no password is given.
const PasswordEnv = "SESSION_CLIENT_PASSWORD"

var errMissingCredentials = errors.New("email and password are required")

// LoginMain logs in with the given credentials and stores the session.
func LoginMain(ctx context.Context, cfg *config.Config, out io.Writer, creds credential.Credentials) error {
	if creds.Password == "" {
		creds.Password = os.Getenv(PasswordEnv)
	}
	if creds.Email == "" || creds.Password == "" {
		return errMissingCredentials
	}

	a, err := initApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.provider.Login(ctx, creds)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	slogctx.Info(ctx, "Logged in", "user_id", s.User.ID, "category", a.provider.Category())
	_, _ = fmt.Fprintf(out, "Logged in as %s (%s)\n", displayName(s.User), s.User.ID)

	return nil
}

// LogoutMain ends the stored session locally and on the server.
func LogoutMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := initApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.store.Get(); !ok {
		_, _ = fmt.Fprintln(out, "Not logged in")
		return nil
	}

	a.client.Logout(ctx)
	_, _ = fmt.Fprintln(out, "Logged out")

	return nil
}

// WhoAmIMain prints the stored user and the actions granted to it.
func WhoAmIMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := initApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	s, ok := a.store.Get()
	if !ok {
		return fmt.Errorf("%w: not logged in", serviceerr.ErrNotFound)
	}

	_, _ = fmt.Fprintf(out, "User:     %s (%s)\n", displayName(s.User), s.User.ID)
	_, _ = fmt.Fprintf(out, "Category: %s\n", a.provider.Category())
	if s.User.PharmacyID != "" {
		_, _ = fmt.Fprintf(out, "Pharmacy: %s\n", s.User.PharmacyID)
	}
	if !s.ExpiresAt.IsZero() {
		_, _ = fmt.Fprintf(out, "Expires:  %s\n", s.ExpiresAt.Format(time.RFC3339))
	}

	resources := make([]string, 0, len(s.User.Permissions))
	for resource := range s.User.Permissions {
		resources = append(resources, resource)
	}
	slices.Sort(resources)

	for _, resource := range resources {
		actions := a.mapper.Actions(s.User.Permissions[resource])
		names := make([]string, 0, len(actions))
		for _, action := range actions {
			names = append(names, string(action))
		}
		_, _ = fmt.Fprintf(out, "  %s: %s\n", resource, strings.Join(names, ", "))
	}

	return nil
}

// SwitchPharmacyMain moves a tenant session to another pharmacy.
func SwitchPharmacyMain(ctx context.Context, cfg *config.Config, out io.Writer, pharmacyID string) error {
	a, err := initApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant, ok := a.provider.(*credential.Tenant)
	if !ok {
		return fmt.Errorf("%w: switching pharmacy requires a tenant user, got %s", serviceerr.ErrUnknownUserCategory, a.provider.Category())
	}

	s, err := tenant.SwitchPharmacy(ctx, a.client, pharmacyID)
	if err != nil {
		return fmt.Errorf("switching pharmacy: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Switched to pharmacy %s\n", s.User.PharmacyID)

	return nil
}

// RequestMain sends one authenticated request and prints the response.
func RequestMain(ctx context.Context, cfg *config.Config, out io.Writer, method, path, body string) error {
	a, err := initApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := a.client.NewRequest(ctx, method, path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	_, _ = fmt.Fprintln(out, resp.Status)

	var indented bytes.Buffer
	if json.Indent(&indented, payload, "", "  ") == nil {
		payload = indented.Bytes()
	}
	if len(payload) > 0 {
		_, _ = out.Write(payload)
		_, _ = fmt.Fprintln(out)
	}

	return nil
}

// KeepAliveMain refreshes the stored session ahead of its expiry until ctx
// is done or the session ends.
func KeepAliveMain(ctx context.Context, cfg *config.Config, out io.Writer) error {
	a, err := initApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := cfg.KeepAlive.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	c := time.Tick(interval)
	for {
		err := a.keepAlive(ctx, cfg.KeepAlive.RefreshBefore)
		if errors.Is(err, serviceerr.ErrSessionExpired) || errors.Is(err, serviceerr.ErrNotFound) {
			return err
		}
		if err != nil {
			slogctx.Error(ctx, "Error during session keep-alive", "error", err)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}

// keepAlive refreshes the session when it expires within refreshBefore.
func (a *app) keepAlive(ctx context.Context, refreshBefore time.Duration) error {
	s, ok := a.store.Get()
	if !ok {
		return fmt.Errorf("%w: not logged in", serviceerr.ErrNotFound)
	}

	if s.ExpiresAt.IsZero() || time.Until(s.ExpiresAt) > refreshBefore {
		slogctx.Debug(ctx, "Session does not need a refresh yet", "expires_at", s.ExpiresAt)
		return nil
	}

	_, err := a.client.Coordinator().Recover(ctx, nil, s.AccessToken)
	if err != nil {
		return err
	}

	if next, ok := a.store.Get(); ok {
		slogctx.Info(ctx, "Kept the session alive", "expires_at", next.ExpiresAt)
	}

	return nil
}

func displayName(u session.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}

	return u.ID
}
