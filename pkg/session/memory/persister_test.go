package sessionmemory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
	sessionmemory "github.com/openkcm/session-client/pkg/session/memory"
)

func TestPersister(t *testing.T) {
	p := sessionmemory.NewPersister(0)

	_, err := p.Load(t.Context(), session.KeyAccessToken)
	require.ErrorIs(t, err, serviceerr.ErrNotFound)

	require.NoError(t, p.Save(t.Context(), map[string]string{
		session.KeyAccessToken:  "access-token",
		session.KeyRefreshToken: "refresh-token",
	}))

	got, err := p.Load(t.Context(), session.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", got)

	require.NoError(t, p.Delete(t.Context(), session.Keys...))
	_, err = p.Load(t.Context(), session.KeyAccessToken)
	assert.ErrorIs(t, err, serviceerr.ErrNotFound)
}

func TestPersister_Expiry(t *testing.T) {
	p := sessionmemory.NewPersister(50 * time.Millisecond)

	require.NoError(t, p.Save(t.Context(), map[string]string{session.KeyAccessToken: "access-token"}))

	assert.Eventually(t, func() bool {
		_, err := p.Load(t.Context(), session.KeyAccessToken)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}
