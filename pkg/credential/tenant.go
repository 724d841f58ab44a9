package credential

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

const tenantLoginRoute = "/login"

// Tenant authenticates pharmacy staff. Their session is bound to one
// pharmacy at a time.
type Tenant struct {
	provider
}

func NewTenant(baseURL string, client Doer, store *session.Store) *Tenant {
	return &Tenant{
		provider: newProvider(CategoryTenant, "", tenantLoginRoute, baseURL, client, store),
	}
}

// SwitchPharmacy moves the session to pharmacyID. The call is authenticated,
// so api is expected to be the pipeline; the returned token pair and user
// replace the stored session.
func (t *Tenant) SwitchPharmacy(ctx context.Context, api Doer, pharmacyID string) (session.Session, error) {
	if _, ok := t.store.Get(); !ok {
		return session.Session{}, fmt.Errorf("%w: not logged in", serviceerr.ErrNotFound)
	}

	ctx = slogctx.With(ctx, "pharmacy_id", pharmacyID)

	var data authData
	body := map[string]string{"pharmacyId": pharmacyID}
	if err := t.api.post(ctx, api, PathSwitchPharmacy, body, &data); err != nil {
		return session.Session{}, err
	}

	if data.User == nil {
		// Responses without a user record keep the current one.
		current, _ := t.store.Get()
		user := current.User
		user.PharmacyID = pharmacyID
		data.User = &user
	}

	return t.save(ctx, data)
}
