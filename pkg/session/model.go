package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// Keys under which a session is persisted. They are always written and
// deleted together.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyCurrentUser  = "current_user"
)

// Keys lists every persisted key of a session.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyCurrentUser}

// User is the identity the session belongs to.
type User struct {
	ID          string              `json:"id"`          // User ID in the backend
	DisplayName string              `json:"displayName"` // Name shown in the UI
	Email       string              `json:"email,omitempty"`
	PharmacyID  string              `json:"pharmacyId,omitempty"`  // Active pharmacy context for tenant users
	Permissions map[string][]string `json:"permissions,omitempty"` // Backend grants keyed by resource
}

// Session represents the authenticated state of the client.
type Session struct {
	User         User
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // Zero when unknown
}

// Tokens is a credential pair as issued by the login and refresh endpoints.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"`
}

// Validate reports whether the session can be stored: a user and both tokens.
func (s Session) Validate() error {
	if s.User.ID == "" {
		return fmt.Errorf("%w: missing user id", serviceerr.ErrInvalidSession)
	}
	if s.AccessToken == "" || s.RefreshToken == "" {
		return fmt.Errorf("%w: access and refresh token must both be present", serviceerr.ErrInvalidSession)
	}

	return nil
}

// Expired reports whether the access token is known to be expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// WithTokens returns a copy of the session carrying the given token pair.
func (s Session) WithTokens(accessToken, refreshToken string, expiresAt time.Time) Session {
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	s.ExpiresAt = expiresAt
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = ExpiryFromToken(accessToken)
	}

	return s
}

type persistedUser struct {
	User
	ExpiresAt time.Time `json:"expiresAt"`
}

// encode flattens the session into its persisted key/value form.
func encode(s Session) (map[string]string, error) {
	user, err := json.Marshal(persistedUser{User: s.User, ExpiresAt: s.ExpiresAt})
	if err != nil {
		return nil, fmt.Errorf("marshaling user: %w", err)
	}

	return map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyCurrentUser:  string(user),
	}, nil
}

// decode is the inverse of encode. It fails on any structurally invalid value.
func decode(values map[string]string) (Session, error) {
	var pu persistedUser
	if err := json.Unmarshal([]byte(values[KeyCurrentUser]), &pu); err != nil {
		return Session{}, fmt.Errorf("%w: decoding user: %w", serviceerr.ErrInvalidSession, err)
	}

	s := Session{
		User:         pu.User,
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		ExpiresAt:    pu.ExpiresAt,
	}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}

	return s, nil
}
