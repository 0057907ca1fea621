// Package storage defines the Object Store Adapter boundary: a uniform
// interface over a remote blob store consumed by the transfer service.
// The core never assumes which remote service backs a Backend.
package storage

import (
	"context"
	"io"
	"time"
)

// ByteRange is a half-open byte interval [Start, End) requested from a
// stored object. End of zero means "to the end of the object".
type ByteRange struct {
	Start int64
	End   int64
}

// ObjectInfo describes a stored object's metadata, as returned by Head.
type ObjectInfo struct {
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
}

// ListEntry is one entry returned by List.
type ListEntry struct {
	Key         string
	Size        int64
	UpdatedAt   time.Time
	ETag        string
}

// ListPage is one page of a List call.
type ListPage struct {
	Entries    []ListEntry
	NextCursor string
}

// Backend is the uniform interface every object store implementation
// satisfies. Every method returns errors classified into the taxonomy
// package's abstract kinds: NotFound, PermissionDenied,
// TransientUnavailable, Invalid, Unknown. Transient failures are the only
// retryable class.
type Backend interface {
	// PutStream consumes reader and stores it under key atomically: on
	// any error the partial object MUST NOT be observable.
	PutStream(ctx context.Context, key string, reader io.Reader, size int64, contentType string, userMetadata map[string]string) (location string, etag string, err error)

	// GetStream opens a readable byte stream for key, honoring rng if
	// non-nil. The caller must Close the returned reader.
	GetStream(ctx context.Context, key string, rng *ByteRange) (io.ReadCloser, *ObjectInfo, error)

	// Head returns metadata for key, failing with NotFound if absent.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// SignedURL returns a presigned read URL for key, valid for ttl
	// (bounded to at most 7 days by callers).
	SignedURL(ctx context.Context, key string, ttl time.Duration) (url string, expiresAt time.Time, err error)

	// List returns entries under prefix in lexicographic key order,
	// paging via cursor.
	List(ctx context.Context, prefix string, cursor string, limit int) (*ListPage, error)

	// Delete removes key, returning false if it was already absent.
	Delete(ctx context.Context, key string) (bool, error)

	// EnsureContainer idempotently creates the backing container/bucket
	// if missing.
	EnsureContainer(ctx context.Context) error

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
}

// MultipartBackend is implemented by backends capable of streaming
// incremental part flushing instead of whole-object materialization, used
// by the Transfer Service's multipart upload mode (spec §9's re-architecture
// note: never materialize the whole artifact in multipart mode).
type MultipartBackend interface {
	Backend

	// BeginMultipart starts a multipart upload for key, returning an
	// opaque upload handle the caller threads through subsequent calls.
	BeginMultipart(ctx context.Context, key string, contentType string) (uploadID string, err error)

	// UploadPart flushes one part of size len(data) to the in-progress
	// multipart upload, returning its ETag.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (etag string, err error)

	// CompleteMultipart finalizes the upload given parts in ascending
	// part-number order.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) (location string, etag string, err error)

	// AbortMultipart releases any server-side state for an in-progress
	// multipart upload. Best-effort: callers do not treat its failure as
	// fatal.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

// CompletedPart identifies one flushed part of a multipart upload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}
