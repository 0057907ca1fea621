// Package cache wraps a storage.Backend with a probabilistic existence
// cache so that Head calls for coordinates known not to exist never reach
// the backend.
package cache

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/depotrun/artifactcore/pkg/storage"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

// ExistenceCache wraps a Backend, maintaining a bloom filter of keys known
// to exist. Head consults the filter first: a negative result means the
// key definitely does not exist and Head returns NotFound without calling
// through; a positive result only means "maybe", so the call always falls
// through to the backend — the filter never produces a false negative,
// grounded on the teacher's bloom_exchange.go usage of
// github.com/bits-and-blooms/bloom/v3 for block-existence hints,
// generalized here from peer-exchanged block hints to a single
// backend-fronting existence cache.
type ExistenceCache struct {
	backend   storage.Backend
	multipart storage.MultipartBackend // nil if backend does not support it

	mu     sync.RWMutex
	filter *bloom.BloomFilter
	warmed bool
}

// NewExistenceCache wraps backend with a bloom filter sized for
// expectedKeys entries at the given false-positive rate.
func NewExistenceCache(backend storage.Backend, expectedKeys uint, falsePositiveRate float64) *ExistenceCache {
	var mp storage.MultipartBackend
	if m, ok := backend.(storage.MultipartBackend); ok {
		mp = m
	}
	return &ExistenceCache{
		backend:   backend,
		multipart: mp,
		filter:    bloom.NewWithEstimates(expectedKeys, falsePositiveRate),
	}
}

// MarkExists records that key is now known to exist, called after a
// successful PutStream/CompleteMultipart.
func (c *ExistenceCache) MarkExists(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.AddString(key)
}

func (c *ExistenceCache) mayExist(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.TestString(key)
}

// PutStream implements storage.Backend.
func (c *ExistenceCache) PutStream(ctx context.Context, key string, reader io.Reader, size int64, contentType string, userMetadata map[string]string) (string, string, error) {
	location, etag, err := c.backend.PutStream(ctx, key, reader, size, contentType, userMetadata)
	if err == nil {
		c.MarkExists(key)
	}
	return location, etag, err
}

// GetStream implements storage.Backend.
func (c *ExistenceCache) GetStream(ctx context.Context, key string, rng *storage.ByteRange) (io.ReadCloser, *storage.ObjectInfo, error) {
	return c.backend.GetStream(ctx, key, rng)
}

// Head implements storage.Backend. Once the cache has been warmed (see
// WarmFromList), a negative filter test short-circuits with NotFound
// without calling through; before warming, every call falls through to
// the backend since an unwarmed filter has observed no keys and would
// otherwise reject everything.
func (c *ExistenceCache) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	if c.warmedAndAbsent(key) {
		return nil, taxonomy.New(taxonomy.NotFound, "object not found")
	}
	return c.backend.Head(ctx, key)
}

func (c *ExistenceCache) warmedAndAbsent(key string) bool {
	c.mu.RLock()
	warmed := c.warmed
	c.mu.RUnlock()
	return warmed && !c.mayExist(key)
}

// SignedURL implements storage.Backend.
func (c *ExistenceCache) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	return c.backend.SignedURL(ctx, key, ttl)
}

// List implements storage.Backend.
func (c *ExistenceCache) List(ctx context.Context, prefix string, cursor string, limit int) (*storage.ListPage, error) {
	return c.backend.List(ctx, prefix, cursor, limit)
}

// Delete implements storage.Backend, evicting the key from the filter's
// positive set is impossible (bloom filters do not support removal), so a
// deleted key may still report "maybe exists" until the filter is rebuilt;
// Head always confirms against the backend in that case, so this never
// produces an incorrect NotFound, only a missed short-circuit.
func (c *ExistenceCache) Delete(ctx context.Context, key string) (bool, error) {
	return c.backend.Delete(ctx, key)
}

// EnsureContainer implements storage.Backend.
func (c *ExistenceCache) EnsureContainer(ctx context.Context) error {
	return c.backend.EnsureContainer(ctx)
}

// Health implements storage.Backend.
func (c *ExistenceCache) Health(ctx context.Context) error {
	return c.backend.Health(ctx)
}

// WarmFromList seeds the filter from an existing backend's key space so a
// freshly started process does not treat everything as possibly-absent.
func (c *ExistenceCache) WarmFromList(ctx context.Context, prefix string) error {
	cursor := ""
	for {
		page, err := c.backend.List(ctx, prefix, cursor, 1000)
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			c.MarkExists(e.Key)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	c.mu.Lock()
	c.warmed = true
	c.mu.Unlock()
	return nil
}

// BeginMultipart implements storage.MultipartBackend by delegating to the
// wrapped backend. The cache itself unconditionally satisfies the
// interface, so transfer.NewService treats a cached backend as
// multipart-capable whatever it wraps. When the wrapped backend does not
// support multipart upload, these methods return Invalid.
func (c *ExistenceCache) BeginMultipart(ctx context.Context, key string, contentType string) (string, error) {
	if c.multipart == nil {
		return "", taxonomy.New(taxonomy.Invalid, "backend does not support multipart upload")
	}
	return c.multipart.BeginMultipart(ctx, key, contentType)
}

// UploadPart implements storage.MultipartBackend.
func (c *ExistenceCache) UploadPart(ctx context.Context, key, uploadID string, partIndex int, payload []byte) (string, error) {
	if c.multipart == nil {
		return "", taxonomy.New(taxonomy.Invalid, "backend does not support multipart upload")
	}
	return c.multipart.UploadPart(ctx, key, uploadID, partIndex, payload)
}

// CompleteMultipart implements storage.MultipartBackend.
func (c *ExistenceCache) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) (string, string, error) {
	if c.multipart == nil {
		return "", "", taxonomy.New(taxonomy.Invalid, "backend does not support multipart upload")
	}
	location, etag, err := c.multipart.CompleteMultipart(ctx, key, uploadID, parts)
	if err == nil {
		c.MarkExists(key)
	}
	return location, etag, err
}

// AbortMultipart implements storage.MultipartBackend.
func (c *ExistenceCache) AbortMultipart(ctx context.Context, key, uploadID string) error {
	if c.multipart == nil {
		return taxonomy.New(taxonomy.Invalid, "backend does not support multipart upload")
	}
	return c.multipart.AbortMultipart(ctx, key, uploadID)
}

var (
	_ storage.Backend          = (*ExistenceCache)(nil)
	_ storage.MultipartBackend = (*ExistenceCache)(nil)
)
