// Package store provides storage backends for conversation sessions.
//
// This file implements the in-memory store used in tests and DSN-less
// development runs.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

type memorySession struct {
	session   models.Session
	expiresAt time.Time
}

type memoryArchive struct {
	session    models.Session
	archivedAt time.Time
	expiresAt  time.Time
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

// InMemoryStore keeps all state in process memory. The clock is injectable so
// TTL behavior can be tested without sleeping.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]memorySession
	archives map[int64][]memoryArchive
	counters map[string]memoryCounter
	now      func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithClock(time.Now)
}

// NewInMemoryStoreWithClock creates an in-memory store using the given clock.
func NewInMemoryStoreWithClock(now func() time.Time) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[int64]memorySession),
		archives: make(map[int64][]memoryArchive),
		counters: make(map[string]memoryCounter),
		now:      now,
	}
}

// SaveSession inserts or replaces the user's live session.
func (s *InMemoryStore) SaveSession(sess models.Session, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = memorySession{session: sess, expiresAt: expiresAt}
	return nil
}

// GetSession returns the user's live session, or nil if absent or expired.
func (s *InMemoryStore) GetSession(userID int64) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[userID]
	if !ok || !entry.expiresAt.After(s.now()) {
		return nil, nil
	}
	sess := entry.session
	return &sess, nil
}

// DeleteSession removes the user's live session.
func (s *InMemoryStore) DeleteSession(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// ListSessions returns every unexpired live session.
func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var sessions []models.Session
	for _, entry := range s.sessions {
		if entry.expiresAt.After(now) {
			sessions = append(sessions, entry.session)
		}
	}
	return sessions, nil
}

// ArchiveSession writes a finished session to the archive.
func (s *InMemoryStore) ArchiveSession(sess models.Session, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[sess.UserID] = append(s.archives[sess.UserID], memoryArchive{
		session:    sess,
		archivedAt: s.now(),
		expiresAt:  expiresAt,
	})
	return nil
}

// GetLatestArchive returns the user's most recent unexpired archive entry.
func (s *InMemoryStore) GetLatestArchive(userID int64) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.archives[userID]
	now := s.now()
	var latest *memoryArchive
	for i := range entries {
		e := &entries[i]
		if !e.expiresAt.After(now) {
			continue
		}
		// Ties go to the later entry; archives are appended in order.
		if latest == nil || !e.archivedAt.Before(latest.archivedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	sess := latest.session
	return &sess, nil
}

// IncrCounter increments a windowed counter, creating it with the given TTL
// when absent or expired.
func (s *InMemoryStore) IncrCounter(key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c, ok := s.counters[key]
	if !ok || !c.expiresAt.After(now) {
		c = memoryCounter{value: 0, expiresAt: now.Add(ttl)}
	}
	c.value++
	s.counters[key] = c
	return c.value, nil
}

// GetCounter returns the current counter value, 0 if absent or expired.
func (s *InMemoryStore) GetCounter(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[key]
	if !ok || !c.expiresAt.After(s.now()) {
		return 0, nil
	}
	return c.value, nil
}

// CleanupExpired removes expired sessions, archives, and counters.
func (s *InMemoryStore) CleanupExpired() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, entry := range s.sessions {
		if !entry.expiresAt.After(now) {
			delete(s.sessions, id)
		}
	}
	for id, entries := range s.archives {
		kept := entries[:0]
		for _, e := range entries {
			if e.expiresAt.After(now) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(s.archives, id)
		} else {
			sort.Slice(kept, func(i, j int) bool { return kept[i].archivedAt.Before(kept[j].archivedAt) })
			s.archives[id] = kept
		}
	}
	for key, c := range s.counters {
		if !c.expiresAt.After(now) {
			delete(s.counters, key)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
