package session

import (
	"sync"
	"time"

	"carbonledger.org/internal/ids"
)

const defaultTTL = 12 * time.Hour

type entry struct {
	sess     Session
	expireAt time.Time
}

// Store keeps server-side session state in memory, keyed by an opaque id
// handed to the client in a cookie. Expired entries are swept by a janitor
// goroutine.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStoreClock overrides the time source (useful for tests).
func WithStoreClock(fn func() time.Time) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewStore constructs a Store and starts its sweep goroutine.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]entry),
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.janitor()
	return s
}

// Create persists the session under a fresh opaque id and returns that id.
func (s *Store) Create(sess Session) string {
	id := ids.New()
	sess.ID = id
	s.mu.Lock()
	s.entries[id] = entry{sess: sess, expireAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return id
}

// Get returns the session for id. Expired or unknown ids miss.
func (s *Store) Get(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Session{}, false
	}
	if s.now().After(e.expireAt) {
		delete(s.entries, id)
		return Session{}, false
	}
	return e.sess, true
}

// Delete drops the session, e.g. on logout.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len reports the number of live entries (expired ones may linger until the
// next sweep).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.sweep()
	}
}

func (s *Store) sweep() {
	now := s.now()
	s.mu.Lock()
	for id, e := range s.entries {
		if now.After(e.expireAt) {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
}
