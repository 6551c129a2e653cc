package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/shellmon/shellmon/internal/config"
	"github.com/shellmon/shellmon/internal/domain"
	"github.com/shellmon/shellmon/internal/supervisor"
)

// WatcherConfig holds watch daemon configuration.
type WatcherConfig struct {
	EnsureInterval time.Duration // How often to re-ensure the worker
	RepairDelay    time.Duration // Settle time after an rc-file event before repair
}

// DefaultWatcherConfig returns default watch daemon configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		EnsureInterval: 60 * time.Second,
		RepairDelay:    500 * time.Millisecond,
	}
}

// Watcher keeps the installation intact while no shell session is active:
// it watches the rc file for tampering and re-injects the managed block,
// and re-ensures the worker on a schedule.
type Watcher struct {
	wcfg   WatcherConfig
	cfg    config.Config
	blocks domain.BlockManager
	sup    *supervisor.Supervisor
	body   string
	logger *zap.Logger
}

// NewWatcher creates a watch daemon. body is the rendered block body to
// re-inject when the tagged region disappears.
func NewWatcher(
	wcfg WatcherConfig,
	cfg config.Config,
	blocks domain.BlockManager,
	sup *supervisor.Supervisor,
	body string,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		wcfg:   wcfg,
		cfg:    cfg,
		blocks: blocks,
		sup:    sup,
		body:   body,
		logger: logger,
	}
}

// Run starts the watch loop. This blocks until context is canceled.
//
// The watch is registered on the rc file's directory, not the file itself:
// editors and our own block manager replace the file by rename, which
// would silently drop a watch on the old inode.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	rcDir := filepath.Dir(w.cfg.RCFile)
	if err := fw.Add(rcDir); err != nil {
		return err
	}

	w.logger.Info("watch daemon started",
		zap.String("rc_file", w.cfg.RCFile),
		zap.Duration("ensure_interval", w.wcfg.EnsureInterval))

	ticker := time.NewTicker(w.wcfg.EnsureInterval)
	defer ticker.Stop()

	// Initial pass so a freshly spawned daemon converges immediately.
	w.repairBlock()
	w.sup.EnsureRunning(w.cfg.Descriptor())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch daemon stopping")
			return ctx.Err()

		case <-ticker.C:
			w.sup.EnsureRunning(w.cfg.Descriptor())

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.cfg.RCFile) {
				continue
			}
			// Let a rename-replace sequence finish before inspecting.
			time.Sleep(w.wcfg.RepairDelay)
			w.repairBlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rc-file watch error", zap.Error(err))
		}
	}
}

// repairBlock re-injects the managed block when the tagged region is gone.
// A missing rc file is left alone: re-creating it is the installer's job,
// not the daemon's.
func (w *Watcher) repairBlock() {
	present, err := w.blocks.HasBlock(w.cfg.RCFile, w.cfg.BlockTag)
	if err != nil {
		w.logger.Debug("cannot inspect rc file", zap.Error(err))
		return
	}
	if present {
		return
	}

	w.logger.Info("managed block missing, re-injecting", zap.String("rc_file", w.cfg.RCFile))
	if err := w.blocks.ReplaceBlock(w.cfg.RCFile, w.cfg.BlockTag, w.body); err != nil {
		w.logger.Warn("failed to re-inject block", zap.Error(err))
	}
}
