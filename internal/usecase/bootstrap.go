// Package usecase orchestrates install and uninstall flows.
package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shellmon/shellmon/internal/config"
	"github.com/shellmon/shellmon/internal/daemon"
	"github.com/shellmon/shellmon/internal/domain"
	"github.com/shellmon/shellmon/internal/supervisor"
)

// PayloadInstaller is the installer surface the bootstrap needs.
type PayloadInstaller interface {
	Install(ctx context.Context, job domain.DownloadJob) error
}

// CommandFinder locates a live process by command-line substrings.
// Used to avoid spawning a second watch daemon.
type CommandFinder interface {
	FindCommand(substrings ...string) (int32, bool)
}

// Bootstrap wires the full install flow: optional payload download, block
// injection, one immediate worker ensure, then a detached watch daemon.
type Bootstrap struct {
	cfg        config.Config
	executable string
	installer  PayloadInstaller
	blocks     domain.BlockManager
	sup        *supervisor.Supervisor
	spawner    domain.Spawner
	finder     CommandFinder
	pm         domain.ProcessManager
	logger     *zap.Logger
}

// NewBootstrap creates the orchestrator. executable is this binary's own
// path, referenced from the injected block and the watch-daemon spawn.
func NewBootstrap(
	cfg config.Config,
	executable string,
	installer PayloadInstaller,
	blocks domain.BlockManager,
	sup *supervisor.Supervisor,
	spawner domain.Spawner,
	finder CommandFinder,
	pm domain.ProcessManager,
	logger *zap.Logger,
) *Bootstrap {
	return &Bootstrap{
		cfg:        cfg,
		executable: executable,
		installer:  installer,
		blocks:     blocks,
		sup:        sup,
		spawner:    spawner,
		finder:     finder,
		pm:         pm,
		logger:     logger,
	}
}

// Install performs the full install. Download and block injection surface
// fatal errors to the caller; the worker ensure and the watch-daemon spawn
// are fire-and-forget by design.
func (b *Bootstrap) Install(ctx context.Context) error {
	if b.cfg.SourceURL != "" {
		job := domain.DownloadJob{
			SourceURL:       b.cfg.SourceURL,
			DestinationPath: b.cfg.PayloadPath,
		}
		if err := b.installer.Install(ctx, job); err != nil {
			return err
		}
	} else {
		b.logger.Debug("no source URL configured, skipping download")
	}

	body := RenderBlock(b.executable)
	if err := b.blocks.ReplaceBlock(b.cfg.RCFile, b.cfg.BlockTag, body); err != nil {
		return err
	}

	b.sup.EnsureRunning(b.cfg.Descriptor())
	b.startWatchDaemon()
	return nil
}

// Uninstall removes only the tagged region. The worker and the payload are
// untouched; a file with no tagged region is a successful no-op. The watch
// daemon is asked to stop first, so it cannot re-inject the block that was
// just removed.
func (b *Bootstrap) Uninstall() error {
	b.stopWatchDaemon()
	return b.blocks.RemoveBlock(b.cfg.RCFile, b.cfg.BlockTag)
}

// How long stopWatchDaemon waits for a terminated daemon to exit. The
// daemon's pending rc-file repair must not race the removal that follows.
const (
	stopWatchTimeout = 2 * time.Second
	stopWatchPoll    = 25 * time.Millisecond
)

// stopWatchDaemon terminates a live watch daemon and waits for it to exit.
// Best-effort: a daemon that cannot be signaled is logged and left behind.
func (b *Bootstrap) stopWatchDaemon() {
	pid, ok := b.finder.FindCommand(b.executable, daemon.WatchCommand)
	if !ok || !b.pm.IsRunning(pid) {
		return
	}
	if err := b.pm.Terminate(pid); err != nil {
		b.logger.Warn("failed to stop watch daemon", zap.Int32("pid", pid), zap.Error(err))
		return
	}

	deadline := time.Now().Add(stopWatchTimeout)
	for time.Now().Before(deadline) {
		if !b.pm.IsRunning(pid) {
			return
		}
		time.Sleep(stopWatchPoll)
	}
	b.logger.Warn("watch daemon still running after terminate", zap.Int32("pid", pid))
}

// startWatchDaemon spawns the watch daemon unless one is already live.
// Failures are absorbed: the daemon is a resilience layer, not a
// precondition for a successful install.
func (b *Bootstrap) startWatchDaemon() {
	if pid, ok := b.finder.FindCommand(b.executable, daemon.WatchCommand); ok && b.pm.IsRunning(pid) {
		b.logger.Debug("watch daemon already running", zap.Int32("pid", pid))
		return
	}

	if err := daemon.StartWatchDaemon(b.spawner); err != nil {
		b.logger.Debug("watch daemon spawn failed", zap.Error(err))
	}
}
