// Package sessionmemory keeps the session keys in process memory. Entries
// expire after the configured TTL, which bounds how long an idle process
// keeps a session around.
package sessionmemory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/session-client/internal/serviceerr"
)

type Persister struct {
	// mu makes multi-key saves and deletes atomic for readers.
	mu    sync.RWMutex
	cache *cache.Cache
}

// NewPersister returns a persister whose entries expire after ttl. A ttl of
// zero or less keeps entries until they are deleted.
func NewPersister(ttl time.Duration) *Persister {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	return &Persister{
		cache: cache.New(ttl, time.Minute),
	}
}

func (p *Persister) Load(_ context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.cache.Get(key)
	if !ok {
		return "", serviceerr.ErrNotFound
	}

	//nolint:forcetypeassert
	return v.(string), nil
}

func (p *Persister) Save(_ context.Context, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, value := range values {
		p.cache.Set(key, value, cache.DefaultExpiration)
	}

	return nil
}

func (p *Persister) Delete(_ context.Context, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range keys {
		p.cache.Delete(key)
	}

	return nil
}
