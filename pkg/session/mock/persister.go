package sessionmock

import (
	"context"
	"maps"
	"sync"

	"github.com/openkcm/session-client/internal/serviceerr"
)

type Persister struct {
	mu     sync.Mutex
	Values map[string]string

	// Saves and Deletes count the calls that reached the persister.
	Saves   int
	Deletes int

	loadErr, saveErr, deleteErr error
}

func NewInMemPersister(loadErr, saveErr, deleteErr error) *Persister {
	return &Persister{
		Values:    make(map[string]string),
		loadErr:   loadErr,
		saveErr:   saveErr,
		deleteErr: deleteErr,
	}
}

func (p *Persister) Load(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loadErr != nil {
		return "", p.loadErr
	}

	if v, ok := p.Values[key]; ok {
		return v, nil
	}

	return "", serviceerr.ErrNotFound
}

func (p *Persister) Save(ctx context.Context, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Saves++
	if p.saveErr != nil {
		return p.saveErr
	}

	maps.Copy(p.Values, values)

	return nil
}

func (p *Persister) Delete(ctx context.Context, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Deletes++
	if p.deleteErr != nil {
		return p.deleteErr
	}

	for _, key := range keys {
		delete(p.Values, key)
	}

	return nil
}

// Snapshot returns a copy of the persisted values.
func (p *Persister) Snapshot() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return maps.Clone(p.Values)
}
