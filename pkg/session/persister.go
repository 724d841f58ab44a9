package session

import "context"

// Persister is the durable storage behind a Store. Load returns
// serviceerr.ErrNotFound for a key that was never saved or was deleted.
type Persister interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}
