package session

import (
	"sync"
	"time"

	"github.com/depotrun/artifactcore/pkg/logging"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

// entry pairs a session with its own mutex, so the store-wide lock only
// ever guards the map itself — never the (potentially adapter-I/O-bound)
// body of a Mutate call — mirroring pkg/progress/registry.go's per-record
// locking.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// Store is the in-memory map session_id → *entry. Thread-safety
// discipline: the goroutine handling a given upload stream is the sole
// writer to that session; Store serializes access to the map itself via
// its own lock, and access to one session's fields via that session's own
// entry lock, so distinct sessions never contend with one another.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	idleTimeout time.Duration
	log         *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewStore constructs a Store with the given idle eviction timeout.
func NewStore(idleTimeout time.Duration) *Store {
	s := &Store{
		sessions:    make(map[string]*entry),
		idleTimeout: idleTimeout,
		log:         logging.GetGlobalLogger().WithComponent("session_store"),
		stopCh:      make(chan struct{}),
	}
	return s
}

// Put inserts a newly created session.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = &entry{sess: sess}
}

// Get returns a read-consistent clone of the session, or false if unknown.
func (s *Store) Get(sessionID string) (*Session, bool) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), true
}

func (s *Store) lookup(sessionID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}

// Mutate runs fn against the live session object under that session's own
// lock only, for use by the single writer goroutine for that session. The
// store-wide lock is held just long enough to look up the entry, so one
// session's adapter I/O (part flush, commit, abort) never blocks chunk
// ingest, commit, abort, or reads for any other session. It returns
// taxonomy NotFound if the session is unknown.
func (s *Store) Mutate(sessionID string, fn func(*Session) error) error {
	e, ok := s.lookup(sessionID)
	if !ok {
		return taxonomy.New(taxonomy.NotFound, "unknown session: "+sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

// Delete removes a session from the store (called once it reaches a
// terminal status and any retained audit window has elapsed).
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// RunEvictionLoop periodically aborts sessions idle for longer than the
// store's idle timeout, invoking onIdleAbort (typically the Transfer
// Service's abort path, so the adapter's multipart state is released)
// for each one. It blocks until Stop is called, so callers run it in its
// own goroutine.
func (s *Store) RunEvictionLoop(interval time.Duration, onIdleAbort func(sessionID, reason string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evictIdle(onIdleAbort)
		}
	}
}

func (s *Store) evictIdle(onIdleAbort func(sessionID, reason string)) {
	now := time.Now()

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.sessions))
	ids := make([]string, 0, len(s.sessions))
	for id, e := range s.sessions {
		entries = append(entries, e)
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var idle []string
	for i, e := range entries {
		e.mu.Lock()
		stale := !e.sess.Status.Terminal() && now.Sub(e.sess.LastActivityAt) > s.idleTimeout
		e.mu.Unlock()
		if stale {
			idle = append(idle, ids[i])
		}
	}

	for _, id := range idle {
		s.log.WithSession(id).Warn("session idle timeout, aborting")
		onIdleAbort(id, "idle_timeout")
	}
}

// Stop halts the eviction loop.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
