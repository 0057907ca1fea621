package rpcfront

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/depotrun/artifactcore/pkg/progress"
	"github.com/depotrun/artifactcore/pkg/session"
	"github.com/depotrun/artifactcore/pkg/storage/backends"
	"github.com/depotrun/artifactcore/pkg/transfer"
)

func newTestFront(t *testing.T) *httptest.Server {
	backend := backends.NewMemory()
	registry := progress.NewRegistry(time.Millisecond, 120*time.Second, 16)
	store := session.NewStore(30 * time.Minute)
	t.Cleanup(store.Stop)

	var counter int
	idGen := func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}

	cfg := transfer.Config{
		MultipartThresholdBytes: 1 << 20,
		MaxChunkBytes:           1 << 20,
		RecommendedChunkBytes:   256,
		DownloadReadChunkBytes:  64,
		MultipartMinPartBytes:   512,
		MaxAccumulatedBytes:     1 << 20,
	}

	svc := transfer.NewService(backend, registry, store, cfg, idGen)
	front := NewFront(svc, registry, cfg.MaxChunkBytes)

	srv := httptest.NewServer(front.Router())
	t.Cleanup(srv.Close)
	return srv
}

func encodeFrame(seq int64, payload []byte, isFinal bool) []byte {
	return encodeFrameWithChecksum(seq, payload, isFinal, nil)
}

func encodeFrameWithChecksum(seq int64, payload []byte, isFinal bool, checksum []byte) []byte {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint64(header[0:8], uint64(seq))
	if isFinal {
		header[8] = 1
	}
	if checksum != nil {
		header[9] = 1
		copy(header[10:10+checksumSize], checksum)
	}
	binary.BigEndian.PutUint32(header[10+checksumSize:frameHeaderSize], uint32(len(payload)))
	return append(header[:], payload...)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv := newTestFront(t)

	body, _ := json.Marshal(map[string]interface{}{
		"app": "app", "version": "1.0.0", "platform": "linux-x86_64", "filename": "a.bin",
		"declared_size": 5,
	})
	resp, err := http.Post(srv.URL+"/v1/uploads", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var desc transfer.SessionDescriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))

	frame := encodeFrame(1, []byte("hello"), true)
	req, err := http.NewRequest("PUT", srv.URL+"/v1/uploads/"+desc.SessionID+"/chunks", bytes.NewReader(frame))
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Post(srv.URL+"/v1/uploads/"+desc.SessionID+"/commit", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)

	resp4, err := http.Get(srv.URL + "/v1/artifacts/app/1.0.0/linux-x86_64/a.bin")
	require.NoError(t, err)
	defer resp4.Body.Close()
	data, err := io.ReadAll(resp4.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestHeadUnknownArtifactReturns404(t *testing.T) {
	srv := newTestFront(t)

	req, err := http.NewRequest("HEAD", srv.URL+"/v1/artifacts/app/1.0.0/linux-x86_64/missing.bin", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadChunkWithMatchingChecksumSucceeds(t *testing.T) {
	srv := newTestFront(t)

	body, _ := json.Marshal(map[string]interface{}{
		"app": "app", "version": "1.0.0", "platform": "linux-x86_64", "filename": "c.bin",
		"declared_size": 5,
	})
	resp, err := http.Post(srv.URL+"/v1/uploads", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var desc transfer.SessionDescriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))
	resp.Body.Close()

	payload := []byte("hello")
	sum := sha256.Sum256(payload)
	frame := encodeFrameWithChecksum(1, payload, true, sum[:])
	req, err := http.NewRequest("PUT", srv.URL+"/v1/uploads/"+desc.SessionID+"/chunks", bytes.NewReader(frame))
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestUploadChunkWithMismatchedChecksumIsRejected(t *testing.T) {
	srv := newTestFront(t)

	body, _ := json.Marshal(map[string]interface{}{
		"app": "app", "version": "1.0.0", "platform": "linux-x86_64", "filename": "d.bin",
		"declared_size": 5,
	})
	resp, err := http.Post(srv.URL+"/v1/uploads", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var desc transfer.SessionDescriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))
	resp.Body.Close()

	wrongSum := sha256.Sum256([]byte("not the payload"))
	frame := encodeFrameWithChecksum(1, []byte("hello"), true, wrongSum[:])
	req, err := http.NewRequest("PUT", srv.URL+"/v1/uploads/"+desc.SessionID+"/chunks", bytes.NewReader(frame))
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestAbortThenChunkConflict(t *testing.T) {
	srv := newTestFront(t)

	body, _ := json.Marshal(map[string]interface{}{
		"app": "app", "version": "1.0.0", "platform": "linux-x86_64", "filename": "b.bin",
		"declared_size": 5,
	})
	resp, err := http.Post(srv.URL+"/v1/uploads", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var desc transfer.SessionDescriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))
	resp.Body.Close()

	resp2, err := http.Post(srv.URL+"/v1/uploads/"+desc.SessionID+"/abort", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	frame := encodeFrame(1, []byte("x"), true)
	req, err := http.NewRequest("PUT", srv.URL+"/v1/uploads/"+desc.SessionID+"/chunks", bytes.NewReader(frame))
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusConflict, resp3.StatusCode)
}
