package transfer

import (
	"github.com/depotrun/artifactcore/pkg/logging"
	"github.com/depotrun/artifactcore/pkg/progress"
	"github.com/depotrun/artifactcore/pkg/session"
	"github.com/depotrun/artifactcore/pkg/storage"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

// Service implements the upload and download state machines of spec.md
// §4.D on top of a Backend, a Progress Registry, and a Session Store.
// Dependencies are unidirectional: Service depends on all three; none of
// them depend back on Service (spec.md §9's cyclic-reference
// re-architecture note).
type Service struct {
	backend    storage.Backend
	multipart  storage.MultipartBackend // nil if backend does not support it
	registry   *progress.Registry
	sessions   *session.Store
	classifier *taxonomy.Classifier
	cfg        Config
	log        *logging.Logger

	idGen func() string
}

// NewService constructs a Service. If backend does not implement
// storage.MultipartBackend, Initiate never selects multipart mode
// regardless of declared_size.
func NewService(backend storage.Backend, registry *progress.Registry, sessions *session.Store, cfg Config, idGen func() string) *Service {
	var mp storage.MultipartBackend
	if m, ok := backend.(storage.MultipartBackend); ok {
		mp = m
	}

	return &Service{
		backend:    backend,
		multipart:  mp,
		registry:   registry,
		sessions:   sessions,
		classifier: taxonomy.NewClassifier(),
		cfg:        cfg,
		log:        logging.GetGlobalLogger().WithComponent("transfer_service"),
		idGen:      idGen,
	}
}
