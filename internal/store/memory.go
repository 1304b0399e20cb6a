package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/air-quality-map/internal/widget"
)

var (
	// ErrNotFound is returned when no session exists for a given id.
	ErrNotFound = errors.New("no map session with that id")
	// ErrFull is returned when the store holds its maximum number of sessions.
	ErrFull = errors.New("too many map sessions")
)

// Session is a widget mounted on behalf of a REST client.
type Session struct {
	ID        string         `json:"id"`
	Widget    *widget.Widget `json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
	LastSeen  time.Time      `json:"lastSeen"`
}

// MemoryStore is a concurrency-safe in-memory registry of map sessions.
type MemoryStore struct {
	mu sync.RWMutex

	// key: session id
	data map[string]*Session

	// retention configuration
	maxSessions int           // max number of live sessions
	maxAge      time.Duration // sessions not seen for maxAge expire

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxSessions is <= 0, it is treated as unlimited; so is maxAge.
func NewMemoryStore(maxSessions int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:        make(map[string]*Session),
		maxSessions: maxSessions,
		maxAge:      maxAge,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Save registers w under a fresh id.
func (s *MemoryStore) Save(w *widget.Widget) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.data) >= s.maxSessions {
		return Session{}, ErrFull
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Widget:    w,
		CreatedAt: now,
		LastSeen:  now,
	}
	s.data[sess.ID] = sess
	return *sess, nil
}

// Get returns the session and marks it as seen.
func (s *MemoryStore) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.data[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	sess.LastSeen = s.now()
	return *sess, nil
}

// Delete removes the session and returns it so the caller can unmount it.
func (s *MemoryStore) Delete(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.data[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	delete(s.data, id)
	return *sess, nil
}

// Expired removes and returns every session not seen within maxAge.
func (s *MemoryStore) Expired() []Session {
	if s.maxAge <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.maxAge)
	var out []Session
	for id, sess := range s.data {
		if sess.LastSeen.Before(cutoff) {
			out = append(out, *sess)
			delete(s.data, id)
		}
	}
	return out
}

// Drain removes and returns every session.
func (s *MemoryStore) Drain() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.data))
	for id, sess := range s.data {
		out = append(out, *sess)
		delete(s.data, id)
	}
	return out
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
