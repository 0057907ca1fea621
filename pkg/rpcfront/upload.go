package rpcfront

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/depotrun/artifactcore/pkg/coordinate"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
	"github.com/depotrun/artifactcore/pkg/transfer"
)

type initiateRequestBody struct {
	App            string `json:"app"`
	Version        string `json:"version"`
	Platform       string `json:"platform"`
	Filename       string `json:"filename"`
	DeclaredSize   int64  `json:"declared_size"`
	ContentType    string `json:"content_type"`
	ExpectedDigest string `json:"expected_digest"`
}

func (f *Front) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var body initiateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, taxonomy.Wrap(taxonomy.Invalid, "malformed request body", err))
		return
	}

	desc, err := f.transfer.Initiate(r.Context(), transfer.InitiateRequest{
		Coordinate: coordinate.Coordinate{
			App:      body.App,
			Version:  body.Version,
			Platform: body.Platform,
			Filename: body.Filename,
		},
		DeclaredSize:   body.DeclaredSize,
		ContentType:    body.ContentType,
		ExpectedDigest: body.ExpectedDigest,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, desc)
}

// handleUploadChunks consumes the request body as a sequence of
// length-prefixed frames (see frame.go), feeding each to the transfer
// service in arrival order — the one invariant ProcessChunk relies on for
// a given session.
func (f *Front) handleUploadChunks(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	var accepted, received int64
	for {
		chunk, err := readChunkFrame(r.Body, sessionID, f.maxChunkBytes)
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, taxonomy.Wrap(taxonomy.Invalid, "malformed chunk frame", err))
			return
		}

		if err := f.transfer.ProcessChunk(r.Context(), chunk); err != nil {
			writeError(w, err)
			return
		}

		accepted++
		received += int64(len(chunk.Payload))
		if chunk.IsFinal {
			break
		}
	}

	writeJSON(w, http.StatusOK, transfer.ChunkSummary{
		SessionID:      sessionID,
		ChunksAccepted: accepted,
		BytesReceived:  received,
	})
}

type commitRequestBody struct {
	ExpectedDigest string `json:"expected_digest"`
}

func (f *Front) handleCommit(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	var body commitRequestBody
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	result, err := f.transfer.Commit(r.Context(), sessionID, body.ExpectedDigest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type abortRequestBody struct {
	Reason string `json:"reason"`
}

func (f *Front) handleAbort(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	var body abortRequestBody
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Reason == "" {
		body.Reason = "client_requested"
	}

	if err := f.transfer.Abort(r.Context(), sessionID, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}
