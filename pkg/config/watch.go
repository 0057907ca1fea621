package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/depotrun/artifactcore/pkg/logging"
)

// Watcher reloads a Config from disk whenever its backing file changes,
// grounded on the teacher's pkg/sync.FileWatcher (an fsnotify.Watcher plus
// a debounce timer per path, since editors commonly emit several rapid
// write events for one save).
type Watcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	onReload   func(*Config)
	log        *logging.Logger

	mu           sync.Mutex
	debounce     *time.Timer
	debounceWait time.Duration

	stopCh chan struct{}
}

// NewWatcher starts watching configPath's parent directory (fsnotify
// cannot watch a single file reliably across editors that replace it via
// rename-on-save) and calls onReload with the freshly validated Config
// after each debounced change.
func NewWatcher(configPath string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(configPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		configPath:   configPath,
		watcher:      fsw,
		onReload:     onReload,
		log:          logging.GetGlobalLogger().WithComponent("config_watcher"),
		debounceWait: 300 * time.Millisecond,
		stopCh:       make(chan struct{}),
	}

	go w.eventLoop()
	return w, nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Errorf("config watcher error: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.debounceWait, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		w.log.Errorf("config reload failed, keeping previous configuration: %v", err)
		return
	}
	w.log.Info("configuration reloaded")
	w.onReload(cfg)
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}
