// Command artifactcored runs the artifact distribution core: the
// Transfer Service, the Progress Registry, the Subscription Gateway, and
// the RPC Front, wired onto an object store adapter chosen by
// configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/depotrun/artifactcore/pkg/config"
	"github.com/depotrun/artifactcore/pkg/gateway"
	"github.com/depotrun/artifactcore/pkg/logging"
	"github.com/depotrun/artifactcore/pkg/progress"
	"github.com/depotrun/artifactcore/pkg/rpcfront"
	"github.com/depotrun/artifactcore/pkg/session"
	"github.com/depotrun/artifactcore/pkg/storage"
	"github.com/depotrun/artifactcore/pkg/storage/backends"
	"github.com/depotrun/artifactcore/pkg/storage/cache"
	"github.com/depotrun/artifactcore/pkg/transfer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.artifactcore/config.json)")
	watch := flag.Bool("watch-config", false, "watch the config file and log when it changes (changes take effect after a restart)")
	flag.Parse()

	path := *configPath
	if path == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err != nil {
			log.Fatalf("failed to resolve default config path: %v", err)
		}
		path = defaultPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	format := logging.TextFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	logging.InitGlobalLogger(&logging.Config{
		Level:  level,
		Format: format,
		Output: os.Stdout,
	})
	logger := logging.GetGlobalLogger()

	backend, err := buildBackend(cfg)
	if err != nil {
		log.Fatalf("failed to initialize object store adapter: %v", err)
	}

	registry := progress.NewRegistry(cfg.Progress.CoalesceInterval, cfg.Progress.RetentionAfterTerminal, cfg.Progress.SubscriberBufferCapacity)
	sessions := session.NewStore(cfg.Session.IdleTimeout)

	svc := transfer.NewService(backend, registry, sessions, transfer.Config{
		MultipartThresholdBytes: cfg.Transfer.MultipartThresholdBytes,
		MaxChunkBytes:           cfg.Transfer.MaxChunkBytes,
		RecommendedChunkBytes:   cfg.Transfer.RecommendedChunkBytes,
		DownloadReadChunkBytes:  cfg.Transfer.DownloadReadChunkBytes,
		MultipartMinPartBytes:   cfg.Transfer.MultipartMinPartBytes,
		MaxAccumulatedBytes:     cfg.Transfer.MaxAccumulatedBytes,
	}, func() string { return uuid.NewString() })

	go sessions.RunEvictionLoop(time.Minute, func(sessionID, reason string) {
		_ = svc.Abort(context.Background(), sessionID, reason)
	})

	gw := gateway.NewGateway(registry)
	front := rpcfront.NewFront(svc, registry, cfg.Transfer.MaxChunkBytes)

	router := front.Router()
	router.Handle("/v1/progress-stream", gw)

	if *watch {
		w, err := config.NewWatcher(path, func(*config.Config) {
			logger.Warn("configuration file changed; restart required to apply changes")
		})
		if err != nil {
			logger.Warnf("config file watching disabled: %v", err)
		} else {
			defer w.Stop()
		}
	}

	logger.Infof("artifactcored listening on %s (h2c=%v)", cfg.RPCFront.ListenAddr, cfg.RPCFront.EnableH2C)

	if cfg.RPCFront.EnableH2C {
		srv := &http.Server{
			Addr:    cfg.RPCFront.ListenAddr,
			Handler: h2c.NewHandler(router, &http2.Server{}),
		}
		log.Fatal(srv.ListenAndServe())
	} else {
		log.Fatal(http.ListenAndServe(cfg.RPCFront.ListenAddr, router))
	}
}

func buildBackend(cfg *config.Config) (storage.Backend, error) {
	var backend storage.Backend

	switch cfg.Adapter.Backend {
	case "ipfs":
		ipfsBackend, err := backends.NewIPFS(cfg.Adapter.Endpoint, cfg.Adapter.GatewayURL)
		if err != nil {
			return nil, fmt.Errorf("ipfs backend: %w", err)
		}
		backend = ipfsBackend
	case "memory", "":
		backend = backends.NewMemory()
	default:
		return nil, fmt.Errorf("unknown adapter backend %q", cfg.Adapter.Backend)
	}

	return cache.NewExistenceCache(backend, 1_000_000, 0.01), nil
}
