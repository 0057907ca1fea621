package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/depotrun/artifactcore/pkg/progress"
	"github.com/depotrun/artifactcore/pkg/session"
	"github.com/depotrun/artifactcore/pkg/storage"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

// Initiate allocates a session, chooses its mode from declared_size
// versus the multipart threshold, and for multipart sessions begins the
// adapter-side multipart upload.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*SessionDescriptor, error) {
	if req.ResumeSessionID != "" {
		// session_id is always server-generated; resuming a prior id is
		// rejected so callers never assume durable resumability
		// (spec.md Non-goals; SPEC_FULL.md's supplemented resume-hint
		// boundary).
		return nil, taxonomy.New(taxonomy.Invalid, "session_id is server-generated and cannot be resumed")
	}
	if err := req.Coordinate.Validate(); err != nil {
		return nil, taxonomy.Wrap(taxonomy.Invalid, "invalid coordinate", err)
	}

	mode := session.ModeDirect
	if req.DeclaredSize > s.cfg.MultipartThresholdBytes && s.multipart != nil {
		mode = session.ModeMultipart
	}

	sessionID := s.idGen()
	now := time.Now()

	sess := &session.Session{
		SessionID:      sessionID,
		Coordinate:     req.Coordinate,
		DeclaredSize:   req.DeclaredSize,
		ContentType:    req.ContentType,
		ExpectedDigest: req.ExpectedDigest,
		Mode:           mode,
		Status:         session.StatusOpen,
		Digest:         sha256.New(),
		StartedAt:      now,
		LastActivityAt: now,
	}

	if mode == session.ModeMultipart {
		uploadID, err := s.multipart.BeginMultipart(ctx, req.Coordinate.Key(), req.ContentType)
		if err != nil {
			return nil, s.classifier.Classify(err)
		}
		sess.UploadID = uploadID
	}

	s.sessions.Put(sess)
	s.registry.Open(sessionID, req.DeclaredSize)

	s.log.WithSession(sessionID).Infof("upload initiated: mode=%s coordinate=%s", mode, req.Coordinate)

	return &SessionDescriptor{
		SessionID:            sessionID,
		RecommendedChunkSize: s.cfg.RecommendedChunkBytes,
		Multipart:            mode == session.ModeMultipart,
	}, nil
}

// ProcessChunk ingests one chunk of an upload stream. The caller (the RPC
// front's request-body reader) is the sole writer for a given session, so
// chunks for one session MUST be passed to ProcessChunk strictly in
// arrival order. This method enforces sequence and state invariants;
// concurrent callers for the same session are serialized by the session
// store's per-session lock, but their order is not controlled here.
func (s *Service) ProcessChunk(ctx context.Context, chunk Chunk) error {
	return s.sessions.Mutate(chunk.SessionID, func(sess *session.Session) error {
		if sess.Status != session.StatusOpen {
			return taxonomy.New(taxonomy.Conflict, "chunk received outside open state")
		}

		expected := sess.LastAcceptedSequence + 1
		if chunk.SequenceNumber != expected {
			return taxonomy.New(taxonomy.Invalid, fmt.Sprintf("sequence gap: expected %d got %d", expected, chunk.SequenceNumber))
		}

		if int64(len(chunk.Payload)) > s.cfg.MaxChunkBytes {
			return taxonomy.New(taxonomy.Invalid, "chunk exceeds max chunk size")
		}

		if chunk.OptionalChecksum != "" {
			sum := sha256.Sum256(chunk.Payload)
			if hex.EncodeToString(sum[:]) != chunk.OptionalChecksum {
				return taxonomy.New(taxonomy.Invalid, "chunk checksum mismatch")
			}
		}

		sess.Digest.Write(chunk.Payload)

		switch sess.Mode {
		case session.ModeMultipart:
			sess.Buffer = append(sess.Buffer, chunk.Payload...)
			if int64(len(sess.Buffer)) >= s.cfg.MultipartMinPartBytes {
				if err := s.flushPart(ctx, sess); err != nil {
					return err
				}
			}
		default:
			maxBuf := sess.DeclaredSize + sess.DeclaredSize/10 + s.cfg.RecommendedChunkBytes
			if sess.DeclaredSize == 0 {
				maxBuf = s.cfg.MaxAccumulatedBytes
			}
			if int64(len(sess.Buffer)+len(chunk.Payload)) > maxBuf {
				return taxonomy.New(taxonomy.ResourceExhausted, "accumulated bytes exceed session cap")
			}
			sess.Buffer = append(sess.Buffer, chunk.Payload...)
		}

		sess.Digest.Write(chunk.Payload)
		sess.LastAcceptedSequence = chunk.SequenceNumber
		sess.BytesReceived += int64(len(chunk.Payload))
		sess.LastActivityAt = time.Now()

		handle := progress.HandleFor(sess.SessionID)
		s.registry.Advance(handle, int64(len(chunk.Payload)), "")

		return nil
	})
}

func (s *Service) flushPart(ctx context.Context, sess *session.Session) error {
	partIndex := len(sess.Parts) + 1
	etag, err := s.multipart.UploadPart(ctx, sess.Coordinate.Key(), sess.UploadID, partIndex, sess.Buffer)
	if err != nil {
		return s.classifier.Classify(err)
	}
	sess.Parts = append(sess.Parts, session.Part{
		PartIndex: partIndex,
		ETag:      etag,
		ByteCount: int64(len(sess.Buffer)),
	})
	sess.Buffer = nil
	return nil
}

// Commit finalizes an upload session: it flushes any residual bytes,
// stores the object (direct mode) or completes the multipart upload, and
// verifies the digest if the caller supplied one.
func (s *Service) Commit(ctx context.Context, sessionID string, expectedDigest string) (*CommitResult, error) {
	var result *CommitResult
	var terminalErr *taxonomy.Error

	err := s.sessions.Mutate(sessionID, func(sess *session.Session) error {
		if sess.Status != session.StatusOpen {
			return taxonomy.New(taxonomy.Conflict, "commit received outside open state")
		}
		sess.Status = session.StatusCommitting

		digest := expectedDigest
		if digest == "" {
			digest = sess.ExpectedDigest
		}
		computed := hex.EncodeToString(sess.Digest.Sum(nil))
		if digest != "" && digest != computed {
			sess.Status = session.StatusFailed
			terminalErr = taxonomy.New(taxonomy.Integrity, "digest_mismatch")
			return terminalErr
		}

		var (
			location, etag string
			commitErr      error
		)

		switch sess.Mode {
		case session.ModeMultipart:
			if len(sess.Buffer) > 0 {
				if err := s.flushPart(ctx, sess); err != nil {
					commitErr = err
				}
			}
			if commitErr == nil {
				parts := make([]storage.CompletedPart, len(sess.Parts))
				for i, p := range sess.Parts {
					parts[i] = storage.CompletedPart{PartNumber: p.PartIndex, ETag: p.ETag}
				}
				location, etag, commitErr = s.multipart.CompleteMultipart(ctx, sess.Coordinate.Key(), sess.UploadID, parts)
			}
		default:
			location, etag, commitErr = s.backend.PutStream(ctx, sess.Coordinate.Key(), newBufferReader(sess.Buffer), int64(len(sess.Buffer)), sess.ContentType, nil)
		}

		if commitErr != nil {
			sess.Status = session.StatusFailed
			terminalErr = s.classifier.Classify(commitErr)
			return terminalErr
		}

		sess.Status = session.StatusCommitted
		result = &CommitResult{Location: location, ETag: etag}
		return nil
	})

	handle := progress.HandleFor(sessionID)
	if err != nil {
		s.registry.Fail(handle, errorLabel(err))
		if sess, ok := s.sessions.Get(sessionID); ok && sess.Mode == session.ModeMultipart && sess.UploadID != "" {
			_ = s.multipart.AbortMultipart(ctx, sess.Coordinate.Key(), sess.UploadID)
		}
		return nil, err
	}

	s.registry.Complete(handle, "committed")
	s.log.WithSession(sessionID).Info("upload committed")
	return result, nil
}

// Abort cancels a session in Open or Committing, best-effort releasing
// any adapter-side multipart state.
func (s *Service) Abort(ctx context.Context, sessionID, reason string) error {
	var uploadID, key string
	var mode session.Mode

	err := s.sessions.Mutate(sessionID, func(sess *session.Session) error {
		if sess.Status != session.StatusOpen && sess.Status != session.StatusCommitting {
			return taxonomy.New(taxonomy.Conflict, "abort received outside open/committing state")
		}
		sess.Status = session.StatusAborted
		uploadID = sess.UploadID
		key = sess.Coordinate.Key()
		mode = sess.Mode
		return nil
	})
	if err != nil {
		return err
	}

	if mode == session.ModeMultipart && uploadID != "" && s.multipart != nil {
		_ = s.multipart.AbortMultipart(ctx, key, uploadID)
	}

	s.registry.Fail(progress.HandleFor(sessionID), reason)
	s.log.WithSession(sessionID).Warnf("upload aborted: %s", reason)
	return nil
}

func errorLabel(err error) string {
	if te, ok := err.(*taxonomy.Error); ok {
		return te.Message
	}
	return "error"
}
