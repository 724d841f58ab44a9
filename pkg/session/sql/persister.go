package sessionsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// Persister stores the session keys of one client namespace in the
// client_sessions table.
type Persister struct {
	db        *pgxpool.Pool
	namespace string
}

func NewPersister(db *pgxpool.Pool, namespace string) *Persister {
	return &Persister{
		db:        db,
		namespace: namespace,
	}
}

func (p *Persister) Load(ctx context.Context, key string) (value string, _ error) {
	if err := p.db.QueryRow(ctx, `SELECT value
FROM client_sessions
WHERE namespace = $1
	AND key = $2;`,
		p.namespace, key,
	).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", serviceerr.ErrNotFound
		}

		return "", fmt.Errorf("selecting from client_sessions: %w", err)
	}

	return value, nil
}

func (p *Persister) Save(ctx context.Context, values map[string]string) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range values {
		if _, err := tx.Exec(ctx, `INSERT INTO client_sessions (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
	ON CONFLICT (namespace, key)
	DO UPDATE SET (value, updated_at) = (EXCLUDED.value, EXCLUDED.updated_at);`,
			p.namespace, key, value,
		); err != nil {
			return fmt.Errorf("inserting into client_sessions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}

func (p *Persister) Delete(ctx context.Context, keys ...string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM client_sessions
WHERE namespace = $1
	AND key = ANY($2);`,
		p.namespace, keys,
	); err != nil {
		return fmt.Errorf("deleting from client_sessions: %w", err)
	}

	return nil
}
