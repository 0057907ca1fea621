//go:build integration

package backends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/depotrun/artifactcore/pkg/storage"
)

// setupTestIPFSContainer starts a kubo node and returns the host:port of
// its HTTP API, in the same request/wait/teardown shape as the teacher's
// compliance/storage/postgres testutils.go setupTestContainer.
func setupTestIPFSContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "ipfs/kubo:v0.29.0",
		ExposedPorts: []string{"5001/tcp"},
		WaitingFor:   wait.ForLog("Daemon is ready").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5001")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestIPFSBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	endpoint := setupTestIPFSContainer(t, ctx)

	backend, err := NewIPFS(endpoint, "http://127.0.0.1:8080")
	require.NoError(t, err)
	require.NoError(t, backend.EnsureContainer(ctx))

	payload := []byte("artifact bytes routed through a real ipfs node")
	_, etag, err := backend.PutStream(ctx, "app/1.0/linux/bin", bytes.NewReader(payload), int64(len(payload)), "application/octet-stream", nil)
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	info, err := backend.Head(ctx, "app/1.0/linux/bin")
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), info.Size)

	reader, _, err := backend.GetStream(ctx, "app/1.0/linux/bin", nil)
	require.NoError(t, err)
	defer reader.Close()
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	deleted, err := backend.Delete(ctx, "app/1.0/linux/bin")
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestIPFSBackendMultipartRoundTrip(t *testing.T) {
	ctx := context.Background()
	endpoint := setupTestIPFSContainer(t, ctx)

	backend, err := NewIPFS(endpoint, "http://127.0.0.1:8080")
	require.NoError(t, err)
	require.NoError(t, backend.EnsureContainer(ctx))

	uploadID, err := backend.BeginMultipart(ctx, "app/1.0/linux/bigbin", "application/octet-stream")
	require.NoError(t, err)

	etag1, err := backend.UploadPart(ctx, "app/1.0/linux/bigbin", uploadID, 1, []byte("part-one-"))
	require.NoError(t, err)
	etag2, err := backend.UploadPart(ctx, "app/1.0/linux/bigbin", uploadID, 2, []byte("part-two"))
	require.NoError(t, err)

	_, _, err = backend.CompleteMultipart(ctx, "app/1.0/linux/bigbin", uploadID, []storage.CompletedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	})
	require.NoError(t, err)

	info, err := backend.Head(ctx, "app/1.0/linux/bigbin")
	require.NoError(t, err)
	require.Equal(t, int64(len("part-one-part-two")), info.Size)
}
