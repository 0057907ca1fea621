// Package rpcfront is the thin HTTP transport binding of spec.md §6.1,
// mapping each RPC 1:1 onto a route. It carries no business logic; every
// handler decodes its request, calls into the Transfer Service or the
// Progress Registry, and maps taxonomy errors onto HTTP status codes.
package rpcfront

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/depotrun/artifactcore/pkg/logging"
	"github.com/depotrun/artifactcore/pkg/progress"
	"github.com/depotrun/artifactcore/pkg/transfer"
)

// Front wires the Transfer Service and Progress Registry onto an HTTP
// route table, grounded on the teacher's cmd/noisefs-webui/main.go
// mux.NewRouter()/PathPrefix/Subrouter layout.
type Front struct {
	transfer      *transfer.Service
	registry      *progress.Registry
	maxChunkBytes int64
	log           *logging.Logger
}

// NewFront constructs a Front. maxChunkBytes bounds a single upload
// frame's declared payload length before any bytes are read for it.
func NewFront(svc *transfer.Service, registry *progress.Registry, maxChunkBytes int64) *Front {
	return &Front{
		transfer:      svc,
		registry:      registry,
		maxChunkBytes: maxChunkBytes,
		log:           logging.GetGlobalLogger().WithComponent("rpc_front"),
	}
}

// Router builds the gorilla/mux route table of SPEC_FULL.md §F.
func (f *Front) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/v1/uploads", f.handleInitiate).Methods("POST")
	router.HandleFunc("/v1/uploads/{session_id}/chunks", f.handleUploadChunks).Methods("PUT")
	router.HandleFunc("/v1/uploads/{session_id}/commit", f.handleCommit).Methods("POST")
	router.HandleFunc("/v1/uploads/{session_id}/abort", f.handleAbort).Methods("POST")

	artifact := "/v1/artifacts/{app}/{version}/{platform}/{filename}"
	router.HandleFunc(artifact, f.handleDownload).Methods("GET")
	router.HandleFunc(artifact+"/signed-url", f.handleSignedURL).Methods("GET")
	router.HandleFunc(artifact, f.handleHead).Methods("HEAD")
	router.HandleFunc(artifact, f.handleDelete).Methods("DELETE")
	router.HandleFunc("/v1/artifacts", f.handleList).Methods("GET")

	router.HandleFunc("/v1/progress/{operation_id}", f.handleSubscribeProgress).Methods("GET")

	return router
}

// Server builds an *http.Server serving the route table over h2c, so the
// client-streaming upload route and the server-streaming download/progress
// routes multiplex on a single connection without TLS.
func (f *Front) Server(addr string) *http.Server {
	h2s := &http2.Server{}
	handler := h2c.NewHandler(f.Router(), h2s)

	return &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return context.Background()
		},
	}
}
