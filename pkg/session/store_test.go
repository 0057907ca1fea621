package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotrun/artifactcore/pkg/coordinate"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

const mutateBlockWindow = 200 * time.Millisecond

func newTestSession(id string) *Session {
	now := time.Now()
	return &Session{
		SessionID:      id,
		Coordinate:     coordinate.Coordinate{App: "a", Version: "1.0.0", Platform: "linux", Filename: "a.bin"},
		Mode:           ModeDirect,
		Status:         StatusOpen,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func TestStorePutGet(t *testing.T) {
	s := NewStore(30 * time.Minute)
	s.Put(newTestSession("s1"))

	got, ok := s.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", got.SessionID)
}

func TestStoreGetUnknownReturnsFalse(t *testing.T) {
	s := NewStore(30 * time.Minute)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStoreMutateUnknownReturnsNotFound(t *testing.T) {
	s := NewStore(30 * time.Minute)
	err := s.Mutate("missing", func(*Session) error { return nil })
	require.Error(t, err)
	assert.Equal(t, taxonomy.NotFound, taxonomy.KindOf(err))
}

func TestStoreEvictsIdleSessions(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	sess := newTestSession("idle")
	sess.LastActivityAt = time.Now().Add(-time.Hour)
	s.Put(sess)

	var aborted []string
	s.evictIdle(func(id, reason string) {
		aborted = append(aborted, id)
		assert.Equal(t, "idle_timeout", reason)
	})

	assert.Equal(t, []string{"idle"}, aborted)
}

func TestStoreDoesNotEvictTerminalSessions(t *testing.T) {
	s := NewStore(10 * time.Millisecond)
	sess := newTestSession("done")
	sess.Status = StatusCommitted
	sess.LastActivityAt = time.Now().Add(-time.Hour)
	s.Put(sess)

	var aborted []string
	s.evictIdle(func(id, reason string) { aborted = append(aborted, id) })
	assert.Empty(t, aborted)
}

// TestStoreMutateDoesNotSerializeAcrossSessions proves a long-running
// Mutate call for one session (standing in for adapter I/O such as
// flushPart/PutStream/CompleteMultipart) never blocks a concurrent
// Mutate call for a different session.
func TestStoreMutateDoesNotSerializeAcrossSessions(t *testing.T) {
	s := NewStore(30 * time.Minute)
	s.Put(newTestSession("slow"))
	s.Put(newTestSession("fast"))

	blocking := make(chan struct{})
	releaseBlocking := make(chan struct{})
	go func() {
		_ = s.Mutate("slow", func(*Session) error {
			close(blocking)
			<-releaseBlocking
			return nil
		})
	}()

	<-blocking
	defer close(releaseBlocking)

	done := make(chan struct{})
	go func() {
		_ = s.Mutate("fast", func(*Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(mutateBlockWindow):
		t.Fatal("Mutate on a distinct session blocked on a concurrent session's in-flight Mutate")
	}
}
