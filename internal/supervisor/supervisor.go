// Package supervisor keeps the worker process alive across shell sessions.
package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shellmon/shellmon/internal/domain"
)

// Supervisor composes worker detection with a detached-spawn primitive.
//
// EnsureRunning never reports failure to the caller: a launch that did not
// happen this time will be attempted again on the next invocation. Multiple
// shell sessions may call it concurrently without a lock; the race window
// where two sessions both miss a not-yet-started worker is accepted, so
// duplicate suppression is best-effort.
type Supervisor struct {
	finder   domain.WorkerFinder
	pm       domain.ProcessManager
	spawner  domain.Spawner
	lookPath func(string) (string, error)
	logger   *zap.Logger
}

// New creates a supervisor.
func New(finder domain.WorkerFinder, pm domain.ProcessManager, spawner domain.Spawner, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		finder:   finder,
		pm:       pm,
		spawner:  spawner,
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// EnsureRunning launches the worker unless one is already live.
//
// Preconditions short-circuit on first failure, each a silent no-op rather
// than an error: they represent valid "not configured" states.
func (s *Supervisor) EnsureRunning(desc domain.WorkerDescriptor) {
	if !desc.Autostart {
		s.logger.Debug("autostart disabled")
		return
	}

	interp, err := s.lookPath(desc.Interpreter)
	if err != nil {
		s.logger.Debug("interpreter not resolvable", zap.String("interpreter", desc.Interpreter))
		return
	}

	if !filepath.IsAbs(desc.PayloadPath) || !readable(desc.PayloadPath) {
		s.logger.Debug("payload not usable", zap.String("payload", desc.PayloadPath))
		return
	}

	if pid, ok := s.finder.FindWorker(desc); ok && s.pm.IsRunning(pid) {
		s.logger.Debug("worker already running", zap.Int32("pid", pid))
		return
	}

	// Fire and forget: the handle is discarded, the worker never awaited.
	if err := s.spawner.SpawnDetached(interp, []string{interp, desc.PayloadPath}); err != nil {
		s.logger.Debug("worker spawn failed", zap.Error(err))
	}
}

// readable reports whether the payload exists and can be opened for reading.
func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
