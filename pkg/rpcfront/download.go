package rpcfront

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/depotrun/artifactcore/pkg/coordinate"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
	"github.com/depotrun/artifactcore/pkg/transfer"
)

func coordinateFromVars(r *http.Request) coordinate.Coordinate {
	vars := mux.Vars(r)
	return coordinate.Coordinate{
		App:      vars["app"],
		Version:  vars["version"],
		Platform: vars["platform"],
		Filename: vars["filename"],
	}
}

// parseRangeHeader parses a single-range "bytes=start-end" or "bytes=start-"
// header, grounded on the teacher's handleStream Range parsing in
// cmd/noisefs-webui/main.go.
func parseRangeHeader(header string, size int64) (*transfer.ByteRange, error) {
	if header == "" {
		return nil, nil
	}

	var start, end int64
	if _, err := fmt.Sscanf(header, "bytes=%d-%d", &start, &end); err != nil {
		if _, err := fmt.Sscanf(header, "bytes=%d-", &start); err != nil {
			return nil, fmt.Errorf("invalid range header")
		}
		end = size
	} else {
		end++ // header end is inclusive; ByteRange.End is exclusive
	}

	if start < 0 || start >= size || end > size || start >= end {
		return nil, fmt.Errorf("unsatisfiable range")
	}
	return &transfer.ByteRange{Start: start, End: end}, nil
}

func (f *Front) handleDownload(w http.ResponseWriter, r *http.Request) {
	coord := coordinateFromVars(r)

	head, err := f.transfer.Head(r.Context(), coord)
	if err != nil {
		writeError(w, err)
		return
	}

	rng, err := parseRangeHeader(r.Header.Get("Range"), head.Size)
	if err != nil {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	_, frames, err := f.transfer.StreamDownload(r.Context(), transfer.DownloadRequest{Coordinate: coord, Range: rng})
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := head.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if rng != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End-1, head.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(rng.End-rng.Start, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(head.Size, 10))
		w.WriteHeader(http.StatusOK)
	}

	flusher, _ := w.(http.Flusher)
	for frame := range frames {
		if len(frame.Payload) == 0 {
			continue
		}
		if _, err := w.Write(frame.Payload); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (f *Front) handleHead(w http.ResponseWriter, r *http.Request) {
	coord := coordinateFromVars(r)
	head, err := f.transfer.Head(r.Context(), coord)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := head.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(head.Size, 10))
	w.Header().Set("ETag", head.ETag)
	w.WriteHeader(http.StatusOK)
}

func (f *Front) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	coord := coordinateFromVars(r)

	ttl := int64(900)
	if raw := r.URL.Query().Get("ttl_seconds"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	result, err := f.transfer.PresignedDownload(r.Context(), transfer.DownloadRequest{Coordinate: coord}, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (f *Front) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	prefix := query.Get("prefix")
	cursor := query.Get("cursor")

	limit := 100
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	result, err := f.transfer.List(r.Context(), prefix, cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (f *Front) handleDelete(w http.ResponseWriter, r *http.Request) {
	coord := coordinateFromVars(r)
	deleted, err := f.transfer.Delete(r.Context(), coord)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, taxonomy.New(taxonomy.NotFound, "object not found"))
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}
