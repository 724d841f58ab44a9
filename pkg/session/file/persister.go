// Package sessionfile persists the session keys as a JSON document on disk,
// readable only by the owning user.
package sessionfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/openkcm/session-client/internal/serviceerr"
)

const fileMode = 0o600

type Persister struct {
	mu   sync.Mutex
	path string
}

func NewPersister(path string) *Persister {
	return &Persister{path: path}
}

func (p *Persister) Load(_ context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.read()
	if err != nil {
		return "", err
	}

	v, ok := values[key]
	if !ok {
		return "", serviceerr.ErrNotFound
	}

	return v, nil
}

func (p *Persister) Save(_ context.Context, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.read()
	if errors.Is(err, serviceerr.ErrInvalidSession) {
		current = map[string]string{}
	} else if err != nil {
		return err
	}
	maps.Copy(current, values)

	return p.write(current)
}

func (p *Persister) Delete(_ context.Context, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.read()
	if errors.Is(err, serviceerr.ErrInvalidSession) {
		current = map[string]string{}
	} else if err != nil {
		return err
	}
	for _, key := range keys {
		delete(current, key)
	}

	if len(current) == 0 {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing session file: %w", err)
		}

		return nil
	}

	return p.write(current)
}

func (p *Persister) read() (map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: decoding session file: %w", serviceerr.ErrInvalidSession, err)
	}

	return values, nil
}

// write replaces the file atomically through a temporary file in the same directory.
func (p *Persister) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}

	return nil
}
