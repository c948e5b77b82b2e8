package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"autotrader/infrastructure/logger"
)

// WatcherConfig controls reload pacing.
type WatcherConfig struct {
	Cooldown time.Duration // minimum gap between applied reloads
}

// DefaultWatcherConfig debounces editor write bursts.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{Cooldown: 5 * time.Second}
}

// Watcher reloads the config file on change and hands the validated result
// to the reload handler. Invalid files are skipped; the running config stays
// in effect.
type Watcher struct {
	path     string
	cfg      WatcherConfig
	watcher  *fsnotify.Watcher
	onReload func(AppConfig) error
	log      *logger.Logger

	mu         sync.Mutex
	lastReload time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatcher builds a Watcher over path. onReload receives each config that
// passes validation; its error is logged but does not stop watching. log may
// be nil.
func NewWatcher(path string, cfg WatcherConfig, log *logger.Logger, onReload func(AppConfig) error) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{
		path:     path,
		cfg:      cfg,
		watcher:  fsw,
		onReload: onReload,
		log:      log,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start begins watching until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.path); err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the loop to exit. Safe to call more than
// once, including concurrently.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.maybeReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) maybeReload() {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.cfg.Cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		// Invalid intermediate writes are expected while a file is edited.
		return
	}
	if w.onReload != nil {
		if err := w.onReload(cfg); err != nil {
			w.log.Warn("config reload handler failed", zap.Error(err))
		}
	}
}
