package rpcfront

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/depotrun/artifactcore/pkg/transfer"
)

// Wire framing for PUT /v1/uploads/{session_id}/chunks: each frame is a
// fixed 46-byte header followed by its payload, carrying every field of
// spec.md §3's inbound chunk message (session_id is supplied out-of-band
// by the URL path, the rest travel per frame).
//
//	sequence_number  uint64    (big endian)
//	is_final         uint8     (0 or 1)
//	checksum_present uint8     (0 or 1)
//	checksum         [32]byte  (sha256 of payload; ignored if checksum_present is 0)
//	payload_length   uint32    (big endian)
//	payload          [payload_length]byte

const (
	checksumSize    = 32
	frameHeaderSize = 8 + 1 + 1 + checksumSize + 4
)

func readChunkFrame(r io.Reader, sessionID string, maxPayload int64) (transfer.Chunk, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return transfer.Chunk{}, err
	}

	seq := binary.BigEndian.Uint64(header[0:8])
	isFinal := header[8] != 0
	checksumPresent := header[9] != 0
	checksum := header[10 : 10+checksumSize]
	payloadLen := binary.BigEndian.Uint32(header[10+checksumSize : frameHeaderSize])

	if int64(payloadLen) > maxPayload {
		return transfer.Chunk{}, fmt.Errorf("frame payload length %d exceeds max chunk size", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return transfer.Chunk{}, err
		}
	}

	var optionalChecksum string
	if checksumPresent {
		optionalChecksum = hex.EncodeToString(checksum)
	}

	return transfer.Chunk{
		SessionID:        sessionID,
		SequenceNumber:   int64(seq),
		Payload:          payload,
		IsFinal:          isFinal,
		OptionalChecksum: optionalChecksum,
	}, nil
}
