package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/internal/serviceerr"
)

// Listener is notified after every change of the stored session. ok is false
// when the session was cleared. Listeners may read the store but must not
// modify it.
type Listener func(s Session, ok bool)

// Store holds the current session of the client. The in-memory value is
// authoritative; the Persister mirrors it so it survives restarts.
type Store struct {
	persister Persister

	// writeMu serialises mutations together with their notification.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current Session
	present bool

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

func NewStore(persister Persister) *Store {
	return &Store{
		persister: persister,
		listeners: make(map[int]Listener),
	}
}

// Get returns the current session, if any.
func (s *Store) Get() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current, s.present
}

// Replace overwrites the stored session and notifies listeners. A persistence
// failure is returned but the in-memory session is replaced regardless.
func (s *Store) Replace(ctx context.Context, sess Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	values, err := encode(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.current = sess
	s.present = true
	s.mu.Unlock()

	persistErr := s.persister.Save(ctx, values)

	s.notify(sess, true)

	if persistErr != nil {
		slogctx.Warn(ctx, "Could not persist the session", "user_id", sess.User.ID, "error", persistErr)
		return fmt.Errorf("saving session: %w", persistErr)
	}

	return nil
}

// Clear removes the session and reports whether one was present. Clearing an
// empty store neither touches the persister nor notifies listeners.
func (s *Store) Clear(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.present {
		s.mu.Unlock()
		return false, nil
	}
	s.current = Session{}
	s.present = false
	s.mu.Unlock()

	persistErr := s.persister.Delete(ctx, Keys...)

	s.notify(Session{}, false)

	if persistErr != nil {
		slogctx.Warn(ctx, "Could not delete the persisted session", "error", persistErr)
		return true, fmt.Errorf("deleting session: %w", persistErr)
	}

	return true, nil
}

// Hydrate loads the persisted session. A structurally invalid value, or a
// persister reporting serviceerr.ErrInvalidSession, is discarded and removed
// from the persister; only other persister failures are returned.
func (s *Store) Hydrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	values := make(map[string]string, len(Keys))
	for _, key := range Keys {
		v, err := s.persister.Load(ctx, key)
		if errors.Is(err, serviceerr.ErrNotFound) {
			continue
		}
		if errors.Is(err, serviceerr.ErrInvalidSession) {
			return s.discard(ctx, err)
		}
		if err != nil {
			return fmt.Errorf("loading %s: %w", key, err)
		}
		values[key] = v
	}

	if len(values) == 0 {
		return nil
	}

	sess, err := decode(values)
	if err != nil {
		return s.discard(ctx, err)
	}

	s.mu.Lock()
	s.current = sess
	s.present = true
	s.mu.Unlock()

	s.notify(sess, true)

	return nil
}

// discard removes an invalid persisted session. The caller holds writeMu.
func (s *Store) discard(ctx context.Context, reason error) error {
	slogctx.Debug(ctx, "Discarding invalid persisted session", "error", reason)
	if err := s.persister.Delete(ctx, Keys...); err != nil {
		return fmt.Errorf("deleting invalid session: %w", err)
	}

	return nil
}

// Subscribe registers l and returns a function removing it again.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(sess Session, ok bool) {
	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(sess, ok)
	}
}
