// Package transfer implements the Transfer Service: the upload and
// download state machines built on top of the Object Store Adapter, the
// Progress Registry, and the Session Store.
package transfer

import (
	"time"

	"github.com/depotrun/artifactcore/pkg/coordinate"
)

// Config is the subset of pkg/config.TransferConfig the service needs,
// kept as its own type so the package has no import-time dependency on
// the config package's JSON/env-loading concerns.
type Config struct {
	MultipartThresholdBytes int64
	MaxChunkBytes           int64
	RecommendedChunkBytes   int64
	DownloadReadChunkBytes  int64
	MultipartMinPartBytes   int64
	MaxAccumulatedBytes     int64
}

// Chunk is one inbound chunk message of an upload stream.
type Chunk struct {
	SessionID       string
	SequenceNumber  int64
	Payload         []byte
	IsFinal         bool
	OptionalChecksum string
}

// SessionDescriptor is returned by Initiate.
type SessionDescriptor struct {
	SessionID           string
	RecommendedChunkSize int64
	Multipart           bool
}

// ChunkSummary is returned after a chunk stream has been processed.
type ChunkSummary struct {
	SessionID     string
	ChunksAccepted int64
	BytesReceived int64
}

// CommitResult is returned by Commit.
type CommitResult struct {
	Location string
	ETag     string
}

// DownloadFrame is one outbound frame of a download stream.
type DownloadFrame struct {
	Payload        []byte
	SequenceNumber int64
	TotalSize      int64
	IsFinal        bool
}

// InitiateRequest carries the parameters of Initiate.
type InitiateRequest struct {
	Coordinate     coordinate.Coordinate
	DeclaredSize   int64
	ContentType    string
	ExpectedDigest string
	ResumeSessionID string
}

// DownloadRequest carries the parameters of StreamDownload.
type DownloadRequest struct {
	Coordinate coordinate.Coordinate
	Range      *ByteRange
}

// ByteRange mirrors storage.ByteRange at the transfer-service boundary so
// this package does not need to import storage's range type directly in
// its public request shapes.
type ByteRange struct {
	Start int64
	End   int64
}

// SignedURLResult is returned by PresignedDownload.
type SignedURLResult struct {
	URL       string
	ExpiresAt time.Time
}

// HeadResult is returned by Head.
type HeadResult struct {
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
}

// ListResult is returned by List.
type ListResult struct {
	Entries    []ListEntry
	NextCursor string
}

// ListEntry is one entry of a ListResult.
type ListEntry struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
	ETag      string
}
