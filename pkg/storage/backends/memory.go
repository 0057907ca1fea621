// Package backends holds concrete Backend implementations.
package backends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/depotrun/artifactcore/pkg/storage"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

type memoryObject struct {
	data        []byte
	contentType string
	etag        string
	updatedAt   time.Time
}

type memoryUpload struct {
	key         string
	contentType string
	parts       map[int][]byte
}

// Memory is an in-process map-backed Backend, used for tests and as the
// default local development server, grounded on the teacher's
// backends/mock.go map+mutex pattern generalized from block addresses to
// object keys.
type Memory struct {
	mu       sync.RWMutex
	objects  map[string]*memoryObject
	uploads  map[string]*memoryUpload
	nextETag int64
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]*memoryObject),
		uploads: make(map[string]*memoryUpload),
	}
}

func (m *Memory) etag() string {
	m.nextETag++
	return fmt.Sprintf("etag-%d", m.nextETag)
}

// PutStream implements storage.Backend.
func (m *Memory) PutStream(ctx context.Context, key string, reader io.Reader, size int64, contentType string, userMetadata map[string]string) (string, string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", "", taxonomy.Wrap(taxonomy.Unknown, "failed to read upload stream", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	et := m.etag()
	m.objects[key] = &memoryObject{
		data:        data,
		contentType: contentType,
		etag:        et,
		updatedAt:   time.Now(),
	}
	return key, et, nil
}

// GetStream implements storage.Backend.
func (m *Memory) GetStream(ctx context.Context, key string, rng *storage.ByteRange) (io.ReadCloser, *storage.ObjectInfo, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, taxonomy.New(taxonomy.NotFound, "object not found: "+key)
	}

	data := obj.data
	if rng != nil {
		end := rng.End
		if end == 0 || end > int64(len(data)) {
			end = int64(len(data))
		}
		if rng.Start < 0 || rng.Start > end {
			return nil, nil, taxonomy.New(taxonomy.Invalid, "range outside object")
		}
		data = data[rng.Start:end]
	}

	info := &storage.ObjectInfo{
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
		ETag:        obj.etag,
	}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

// Head implements storage.Backend.
func (m *Memory) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, taxonomy.New(taxonomy.NotFound, "object not found: "+key)
	}
	return &storage.ObjectInfo{
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
		ETag:        obj.etag,
	}, nil
}

// SignedURL implements storage.Backend. The in-memory backend has no
// out-of-band transport, so it synthesizes a memory:// URL purely for
// interface-compatibility in tests and local dev.
func (m *Memory) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", time.Time{}, taxonomy.New(taxonomy.NotFound, "object not found: "+key)
	}
	expires := time.Now().Add(ttl)
	return "memory://" + key + "?expires=" + expires.Format(time.RFC3339), expires, nil
}

// List implements storage.Backend.
func (m *Memory) List(ctx context.Context, prefix string, cursor string, limit int) (*storage.ListPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if cursor != "" {
		for i, k := range keys {
			if k > cursor {
				start = i
				break
			}
		}
	}

	end := start + limit
	if limit <= 0 || end > len(keys) {
		end = len(keys)
	}

	page := &storage.ListPage{}
	for _, k := range keys[start:end] {
		obj := m.objects[k]
		page.Entries = append(page.Entries, storage.ListEntry{
			Key:       k,
			Size:      int64(len(obj.data)),
			UpdatedAt: obj.updatedAt,
			ETag:      obj.etag,
		})
	}
	if end < len(keys) {
		page.NextCursor = keys[end-1]
	}
	return page, nil
}

// Delete implements storage.Backend.
func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.objects[key]
	delete(m.objects, key)
	return existed, nil
}

// EnsureContainer implements storage.Backend; the in-memory backend has
// no container concept.
func (m *Memory) EnsureContainer(ctx context.Context) error { return nil }

// Health implements storage.Backend; the in-memory backend is always
// reachable.
func (m *Memory) Health(ctx context.Context) error { return nil }

// BeginMultipart implements storage.MultipartBackend.
func (m *Memory) BeginMultipart(ctx context.Context, key string, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uploadID := fmt.Sprintf("upload-%d-%s", time.Now().UnixNano(), key)
	m.uploads[uploadID] = &memoryUpload{
		key:         key,
		contentType: contentType,
		parts:       make(map[int][]byte),
	}
	return uploadID, nil
}

// UploadPart implements storage.MultipartBackend.
func (m *Memory) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.uploads[uploadID]
	if !ok {
		return "", taxonomy.New(taxonomy.Invalid, "unknown multipart upload: "+uploadID)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	up.parts[partNumber] = buf
	return fmt.Sprintf("part-%d", partNumber), nil
}

// CompleteMultipart implements storage.MultipartBackend.
func (m *Memory) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.uploads[uploadID]
	if !ok {
		return "", "", taxonomy.New(taxonomy.Invalid, "unknown multipart upload: "+uploadID)
	}

	var buf bytes.Buffer
	for _, p := range parts {
		data, ok := up.parts[p.PartNumber]
		if !ok {
			return "", "", taxonomy.New(taxonomy.Invalid, fmt.Sprintf("missing part %d", p.PartNumber))
		}
		buf.Write(data)
	}

	et := m.etag()
	m.objects[key] = &memoryObject{
		data:        buf.Bytes(),
		contentType: up.contentType,
		etag:        et,
		updatedAt:   time.Now(),
	}
	delete(m.uploads, uploadID)
	return key, et, nil
}

// AbortMultipart implements storage.MultipartBackend.
func (m *Memory) AbortMultipart(ctx context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	return nil
}

var _ storage.MultipartBackend = (*Memory)(nil)
