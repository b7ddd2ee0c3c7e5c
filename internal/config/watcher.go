package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/kpi"
	"github.com/nadmax/opskpi/internal/metrics"
)

// Watcher serves the KPI engine built from the latest valid rules in the config file.
type Watcher struct {
	path   string
	engine atomic.Pointer[kpi.Engine]
	logger *zap.Logger
}

func NewWatcher(path string, rules kpi.Rules, logger *zap.Logger) *Watcher {
	w := &Watcher{path: path, logger: logger}
	w.engine.Store(kpi.New(rules))
	return w
}

func (w *Watcher) Engine() *kpi.Engine {
	return w.engine.Load()
}

// Reload re-reads the file. Invalid rules leave the current engine in place.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		metrics.RecordRulesReload(metrics.OutcomeError)
		return err
	}

	w.engine.Store(kpi.New(cfg.Rules))
	metrics.RecordRulesReload(metrics.OutcomeOK)
	return nil
}

// Run watches the config file's directory until ctx is cancelled. Editors that replace the
// file on save emit Create rather than Write, so both trigger a reload.
func (w *Watcher) Run(ctx context.Context) error {
	if w.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.Warn("rules reload rejected", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("rules reloaded", zap.String("path", w.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}
