package rpcfront

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// handleSubscribeProgress serves SubscribeProgress as chunked NDJSON, for
// RPC clients that don't use the duplex websocket gateway.
func (f *Front) handleSubscribeProgress(w http.ResponseWriter, r *http.Request) {
	operationID := mux.Vars(r)["operation_id"]

	sub := f.registry.Subscribe(operationID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	for {
		select {
		case snap, open := <-sub.Stream():
			if !open {
				return
			}
			if err := encoder.Encode(snap); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			f.registry.Unsubscribe(operationID, sub)
			return
		}
	}
}
