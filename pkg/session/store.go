// Package session keeps per-session conversation history in memory.
//
// Sessions are keyed by an opaque id chosen by the client and created on
// first reference. The store holds at most a fixed number of sessions; when
// it is full the least recently used one is dropped. Each session also
// carries a turn lock so that two turns for the same id never interleave.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role Role
	Text string
}

// ErrSessionBusy is returned by Lock when the session stayed locked until
// the caller's context ended.
var ErrSessionBusy = errors.New("session: turn already in progress")

// DefaultCapacity is used when NewStore is given a non-positive capacity.
const DefaultCapacity = 1000

// history is the state of one session.
type history struct {
	mu    sync.Mutex
	turns []Turn

	// turn is a one-slot semaphore held for the duration of a turn.
	turn chan struct{}
}

func newHistory() *history {
	return &history{turn: make(chan struct{}, 1)}
}

// Store is an LRU-bounded map of session id to history.
// It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *history]
	onEvict func(id string, turns int)
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithOnEvict registers fn to run whenever a session leaves the store,
// through LRU eviction or Delete. fn must not call back into the Store.
func WithOnEvict(fn func(id string, turns int)) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store holding at most capacity sessions.
func NewStore(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session.store")

	cache, err := lru.NewWithEvict[string, *history](capacity, s.evicted)
	if err != nil {
		// Only reachable with a non-positive size, excluded above.
		panic(fmt.Sprintf("session: create cache: %v", err))
	}
	s.cache = cache
	return s
}

func (s *Store) evicted(id string, h *history) {
	h.mu.Lock()
	n := len(h.turns)
	h.mu.Unlock()

	s.logger.Debug("session dropped", "session_id", id, "turns", n)
	if s.onEvict != nil {
		s.onEvict(id, n)
	}
}

func (h *history) snapshot() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *history) append(turn Turn) {
	h.mu.Lock()
	h.turns = append(h.turns, turn)
	h.mu.Unlock()
}

func (h *history) removeLastIfRole(role Role) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.turns)
	if n == 0 || h.turns[n-1].Role != role {
		return false
	}
	h.turns[n-1] = Turn{}
	h.turns = h.turns[:n-1]
	return true
}

func (h *history) lastOfRole(role Role) (Turn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == role {
			return h.turns[i], true
		}
	}
	return Turn{}, false
}

// entry returns the history for id, creating it if needed. Stored keys are
// cloned; callers may pass ids that alias reused request buffers.
func (s *Store) entry(id string) *history {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.cache.Get(id); ok {
		return h
	}
	h := newHistory()
	s.cache.Add(strings.Clone(id), h)
	return h
}

// restore puts h back under id if it was evicted while a turn held it.
// A session created under id since then is left alone.
func (s *Store) restore(id string, h *history) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(id); ok {
		return
	}
	s.cache.Add(id, h)
}

// Get returns a copy of the session's history, creating an empty session
// if id is unknown.
func (s *Store) Get(id string) []Turn {
	return s.entry(id).snapshot()
}

// Append adds turn to the end of the session's history.
func (s *Store) Append(id string, turn Turn) {
	s.entry(id).append(turn)
}

// RemoveLastIfRole drops the newest turn when it has the given role and
// reports whether it did.
func (s *Store) RemoveLastIfRole(id string, role Role) bool {
	return s.entry(id).removeLastIfRole(role)
}

// LastOfRole returns the newest turn with the given role.
func (s *Store) LastOfRole(id string, role Role) (Turn, bool) {
	return s.entry(id).lastOfRole(role)
}

// Lock acquires the session's turn lock, waiting until ctx ends.
func (s *Store) Lock(ctx context.Context, id string) (*Lease, error) {
	h := s.entry(id)

	select {
	case h.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrSessionBusy, ctx.Err())
	}
	return &Lease{store: s, id: strings.Clone(id), h: h}, nil
}

// Lease is a held turn lock. Its methods act on the history that was
// locked, so a turn stays consistent even if the session is evicted while
// it runs; Append puts an evicted session back.
type Lease struct {
	store *Store
	id    string
	h     *history
	once  sync.Once
}

// Turns returns a copy of the locked history.
func (l *Lease) Turns() []Turn {
	return l.h.snapshot()
}

// Append adds turn to the locked history.
func (l *Lease) Append(turn Turn) {
	l.h.append(turn)
	l.store.restore(l.id, l.h)
}

// RemoveLastIfRole drops the newest turn of the locked history when it has
// the given role.
func (l *Lease) RemoveLastIfRole(role Role) bool {
	return l.h.removeLastIfRole(role)
}

// Unlock releases the turn lock. It may be called more than once.
func (l *Lease) Unlock() {
	l.once.Do(func() { <-l.h.turn })
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Delete drops a session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Remove(id)
}
