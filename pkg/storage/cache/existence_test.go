package cache

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotrun/artifactcore/pkg/storage"
	"github.com/depotrun/artifactcore/pkg/storage/backends"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

func TestHeadFallsThroughBeforeWarm(t *testing.T) {
	mem := backends.NewMemory()
	ctx := context.Background()
	_, _, err := mem.PutStream(ctx, "a", bytes.NewReader([]byte("hi")), 2, "text/plain", nil)
	require.NoError(t, err)

	c := NewExistenceCache(mem, 100, 0.01)
	info, err := c.Head(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size)
}

func TestHeadShortCircuitsAfterWarm(t *testing.T) {
	mem := backends.NewMemory()
	ctx := context.Background()
	_, _, err := mem.PutStream(ctx, "exists", bytes.NewReader([]byte("hi")), 2, "text/plain", nil)
	require.NoError(t, err)

	c := NewExistenceCache(mem, 100, 0.01)
	require.NoError(t, c.WarmFromList(ctx, ""))

	_, err = c.Head(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, taxonomy.NotFound, taxonomy.KindOf(err))

	info, err := c.Head(ctx, "exists")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size)
}

func TestPutStreamMarksExists(t *testing.T) {
	mem := backends.NewMemory()
	ctx := context.Background()
	c := NewExistenceCache(mem, 100, 0.01)
	require.NoError(t, c.WarmFromList(ctx, ""))

	_, _, err := c.PutStream(ctx, "new-key", bytes.NewReader([]byte("hi")), 2, "text/plain", nil)
	require.NoError(t, err)

	info, err := c.Head(ctx, "new-key")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size)
}

func TestMultipartDelegation(t *testing.T) {
	mem := backends.NewMemory()
	ctx := context.Background()
	c := NewExistenceCache(mem, 100, 0.01)

	uploadID, err := c.BeginMultipart(ctx, "k", "application/octet-stream")
	require.NoError(t, err)

	etag, err := c.UploadPart(ctx, "k", uploadID, 1, []byte("part1"))
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	_, _, err = c.CompleteMultipart(ctx, "k", uploadID, []storage.CompletedPart{{PartNumber: 1, ETag: etag}})
	require.NoError(t, err)

	require.NoError(t, c.WarmFromList(ctx, ""))
	info, err := c.Head(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
}
