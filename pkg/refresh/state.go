package refresh

import (
	"context"
	"net/http"
	"sync"
)

// Outcome is the single result of one refresh cycle. It is either a success
// carrying the new token pair or a failure carrying the reason.
type Outcome struct {
	accessToken  string
	refreshToken string
	err          error
}

func Success(accessToken, refreshToken string) Outcome {
	return Outcome{accessToken: accessToken, refreshToken: refreshToken}
}

func Failure(err error) Outcome {
	return Outcome{err: err}
}

func (o Outcome) AccessToken() string  { return o.accessToken }
func (o Outcome) RefreshToken() string { return o.refreshToken }
func (o Outcome) Err() error           { return o.err }

// Waiter is a caller suspended until the running refresh cycle ends.
type Waiter struct {
	Request *http.Request

	done chan Outcome
}

func NewWaiter(req *http.Request) *Waiter {
	return &Waiter{
		Request: req,
		done:    make(chan Outcome, 1),
	}
}

// Wait blocks until the waiter is resolved or ctx is done.
func (w *Waiter) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o := <-w.done:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// State is the bookkeeping of a coordinator: whether a refresh is in flight
// and who waits for it. The waiter queue is only ever non-empty while
// refreshing is true.
type State struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []*Waiter
}

// TryEnterRefresh marks a refresh as in flight. It returns false when one
// already is, in which case the caller must not refresh.
func (s *State) TryEnterRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshing {
		return false
	}
	s.refreshing = true

	return true
}

// EnqueueWaiter appends w to the queue of the running cycle. It returns false
// when no refresh is in flight and w was not queued.
func (s *State) EnqueueWaiter(w *Waiter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.refreshing {
		return false
	}
	s.waiters = append(s.waiters, w)

	return true
}

// ResolveAll hands o to every queued waiter in the order they were queued,
// empties the queue and returns to idle. It returns the number of waiters
// resolved and never blocks. Each waiter then replays on its own goroutine,
// so replays are not issued in queue order.
func (s *State) ResolveAll(o Outcome) int {
	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.refreshing = false
	s.mu.Unlock()

	for _, w := range waiters {
		w.done <- o
	}

	return len(waiters)
}

func (s *State) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshing
}

// Pending returns the number of queued waiters.
func (s *State) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.waiters)
}
