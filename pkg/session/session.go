// Package session implements the Session Store: short-lived in-memory
// state for in-flight upload sessions.
package session

import (
	"hash"
	"time"

	"github.com/depotrun/artifactcore/pkg/coordinate"
)

// Status is the upload session's lifecycle state. Transitions are
// monotonic: New→Open→Committing→Committed on the happy path;
// Open|Committing→Failed on error; Open→Aborted on explicit cancel or
// idle timeout. A session in a terminal status (Committed, Aborted,
// Failed) MUST NOT be mutated further.
type Status string

const (
	StatusOpen       Status = "open"
	StatusCommitting Status = "committing"
	StatusCommitted  Status = "committed"
	StatusAborted    Status = "aborted"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusAborted || s == StatusFailed
}

// Mode selects the upload strategy chosen at Initiate time.
type Mode string

const (
	ModeDirect    Mode = "direct"
	ModeMultipart Mode = "multipart"
)

// Part records one flushed multipart part.
type Part struct {
	PartIndex int
	ETag      string
	ByteCount int64
}

// Session is the server-side in-flight state for one upload. The
// goroutine handling a given upload stream is the sole writer; other
// accessors read a consistent snapshot via Store.Get, which returns a
// copy.
type Session struct {
	SessionID      string
	Coordinate     coordinate.Coordinate
	DeclaredSize   int64
	ContentType    string
	ExpectedDigest string
	Mode           Mode
	Status         Status

	// Multipart state.
	UploadID string
	Parts    []Part

	// Direct-mode accumulation buffer.
	Buffer []byte

	LastAcceptedSequence int64
	BytesReceived        int64

	// Digest is updated incrementally on the ingest path regardless of
	// mode, per spec.md §9's re-architecture note, so commit-time digest
	// comparison never requires re-reading the accumulated bytes.
	Digest hash.Hash

	StartedAt      time.Time
	LastActivityAt time.Time
}

// Clone returns a deep-enough copy for safe read access outside the
// owning writer goroutine.
func (s *Session) Clone() *Session {
	c := *s
	c.Parts = append([]Part(nil), s.Parts...)
	c.Buffer = append([]byte(nil), s.Buffer...)
	return &c
}
