package transfer

import (
	"context"
	"io"

	"github.com/depotrun/artifactcore/pkg/progress"
	"github.com/depotrun/artifactcore/pkg/storage"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

// StreamDownload opens a download operation and returns a channel of
// frames strictly ordered by sequence number, plus the operation id used
// as the progress key. The returned channel is closed after the terminal
// frame (IsFinal true). On a read error or cancellation it is closed
// without a terminal frame and no error frame is sent; the error is
// recorded only as the failed progress record. Callers that stop
// reading early (client cancellation) should call ctx's cancel function,
// which this method observes between chunks to release the adapter
// reader promptly.
func (s *Service) StreamDownload(ctx context.Context, req DownloadRequest) (string, <-chan DownloadFrame, error) {
	if err := req.Coordinate.Validate(); err != nil {
		return "", nil, taxonomy.Wrap(taxonomy.Invalid, "invalid coordinate", err)
	}

	key := req.Coordinate.Key()
	info, err := s.backend.Head(ctx, key)
	if err != nil {
		return "", nil, s.classifier.Classify(err)
	}

	var rng *storage.ByteRange
	total := info.Size
	if req.Range != nil {
		rng = &storage.ByteRange{Start: req.Range.Start, End: req.Range.End}
		total = req.Range.End - req.Range.Start
	}

	reader, _, err := s.backend.GetStream(ctx, key, rng)
	if err != nil {
		return "", nil, s.classifier.Classify(err)
	}

	operationID := s.idGen()
	handle := s.registry.Open(operationID, total)

	out := make(chan DownloadFrame, 4)
	go s.pumpDownload(ctx, reader, handle, operationID, total, out)

	return operationID, out, nil
}

func (s *Service) pumpDownload(ctx context.Context, reader io.ReadCloser, handle progress.Handle, operationID string, total int64, out chan<- DownloadFrame) {
	defer close(out)
	defer reader.Close()

	buf := make([]byte, s.cfg.DownloadReadChunkBytes)
	var seq int64
	var sent int64

	for {
		select {
		case <-ctx.Done():
			s.registry.Fail(handle, "cancelled")
			return
		default:
		}

		n, err := reader.Read(buf)
		if n > 0 {
			seq++
			payload := make([]byte, n)
			copy(payload, buf[:n])
			sent += int64(n)

			select {
			case out <- DownloadFrame{Payload: payload, SequenceNumber: seq, TotalSize: total, IsFinal: false}:
			case <-ctx.Done():
				s.registry.Fail(handle, "cancelled")
				return
			}
			s.registry.Advance(handle, int64(n), "")
		}

		if err == io.EOF {
			seq++
			select {
			case out <- DownloadFrame{SequenceNumber: seq, TotalSize: total, IsFinal: true}:
			case <-ctx.Done():
			}
			s.registry.Complete(handle, "downloaded")
			s.log.WithOperation(operationID).Info("download completed")
			return
		}
		if err != nil {
			s.registry.Fail(handle, "read_error")
			s.log.WithOperation(operationID).Errorf("download read error: %v", err)
			return
		}
	}
}

// PresignedDownload returns an adapter-signed URL for out-of-band
// download; bytes bypass the core so no progress record is created.
func (s *Service) PresignedDownload(ctx context.Context, coord DownloadRequest, ttlSeconds int64) (*SignedURLResult, error) {
	const maxTTLSeconds = 7 * 24 * 60 * 60
	if ttlSeconds > maxTTLSeconds {
		ttlSeconds = maxTTLSeconds
	}
	url, expiresAt, err := s.backend.SignedURL(ctx, coord.Coordinate.Key(), secondsToDuration(ttlSeconds))
	if err != nil {
		return nil, s.classifier.Classify(err)
	}
	return &SignedURLResult{URL: url, ExpiresAt: expiresAt}, nil
}
