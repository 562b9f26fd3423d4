package filewatcher

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/0xcro3dile/shodobot-go/internal/config"
	"github.com/0xcro3dile/shodobot-go/internal/domain/ports"
	"github.com/0xcro3dile/shodobot-go/internal/domain/router"
)

// KeywordReloader swaps router keywords whenever their file changes.
type KeywordReloader struct {
	path    string
	router  *router.Router
	watcher ports.FileWatcher
	logger  *zap.Logger
}

// NewKeywordReloader watches path with an fsnotify watcher.
func NewKeywordReloader(path string, r *router.Router, logger *zap.Logger) (*KeywordReloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := NewFSNotifyWatcher([]string{filepath.Base(path)}, logger)
	if err != nil {
		return nil, err
	}
	return &KeywordReloader{path: path, router: r, watcher: w, logger: logger}, nil
}

// Run blocks until ctx is done. The parent directory is watched so editors
// that replace the file atomically are still picked up. A file that fails
// to parse leaves the active keywords untouched.
func (k *KeywordReloader) Run(ctx context.Context) error {
	events, err := k.watcher.Watch(ctx, filepath.Dir(k.path))
	if err != nil {
		return err
	}
	defer k.watcher.Stop()

	for ev := range events {
		if ev.Operation == ports.FileDeleted {
			k.logger.Warn("keyword file removed, keeping active keywords", zap.String("path", ev.Path))
			continue
		}
		k.Reload()
	}
	return nil
}

// Reload re-reads the file and reports whether the keywords were replaced.
func (k *KeywordReloader) Reload() bool {
	kw, err := config.LoadKeywords(k.path)
	if err != nil {
		k.logger.Warn("keyword reload failed", zap.String("path", k.path), zap.Error(err))
		return false
	}
	prev := k.router.Swap(kw)
	k.logger.Info("router keywords reloaded",
		zap.Int("from_version", prev.Version),
		zap.Int("to_version", kw.Version))
	return true
}

// Stop releases the underlying watcher. Safe to call after Run returns.
func (k *KeywordReloader) Stop() error {
	return k.watcher.Stop()
}
