package sessionvalkey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// Persister stores the session keys of one client namespace in ValKey.
// Keys share a hash tag so multi-key commands stay within one cluster slot.
type Persister struct {
	valkey    valkey.Client
	prefix    string
	namespace string
}

func NewPersister(valkeyClient valkey.Client, prefix, namespace string) *Persister {
	return &Persister{
		valkey:    valkeyClient,
		prefix:    strings.TrimSuffix(prefix, ":"),
		namespace: namespace,
	}
}

func (p *Persister) Load(ctx context.Context, key string) (string, error) {
	value, err := p.valkey.Do(ctx, p.valkey.B().Get().Key(p.key(key)).Build()).ToString()
	if err != nil {
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return "", errors.Join(valkeyErr, serviceerr.ErrNotFound)
		}

		return "", fmt.Errorf("executing get command: %w", err)
	}

	return value, nil
}

func (p *Persister) Save(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	cmd := p.valkey.B().Mset().KeyValue()
	for key, value := range values {
		cmd = cmd.KeyValue(p.key(key), value)
	}

	if err := p.valkey.Do(ctx, cmd.Build()).Error(); err != nil {
		return fmt.Errorf("executing mset command: %w", err)
	}

	return nil
}

func (p *Persister) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, p.key(key))
	}

	if err := p.valkey.Do(ctx, p.valkey.B().Del().Key(full...).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (p *Persister) key(name string) string {
	return fmt.Sprintf("%s:{%s}:%s", p.prefix, p.namespace, name)
}
