package credential

import "github.com/openkcm/session-client/pkg/session"

const (
	adminPrefix     = "platform/"
	adminLoginRoute = "/platform/login"
)

// Admin authenticates platform administrators against the platform/ auth
// endpoints.
type Admin struct {
	provider
}

func NewAdmin(baseURL string, client Doer, store *session.Store) *Admin {
	return &Admin{
		provider: newProvider(CategoryAdmin, adminPrefix, adminLoginRoute, baseURL, client, store),
	}
}
