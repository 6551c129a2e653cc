package infra

import (
	"fmt"
	"os"
	"syscall"

	"github.com/shellmon/shellmon/internal/domain"
)

// DetachedSpawner implements domain.Spawner with syscall.ForkExec.
//
// The child is placed in a new session (Setsid) with stdin, stdout and
// stderr redirected to /dev/null, so it has no controlling terminal and
// survives termination of the caller. The child pid is discarded: the
// process is fire-and-forget, never awaited or tracked.
type DetachedSpawner struct{}

// NewDetachedSpawner creates a new detached spawner.
func NewDetachedSpawner() domain.Spawner {
	return &DetachedSpawner{}
}

// SpawnDetached starts path with argv fully detached from the caller.
func (s *DetachedSpawner) SpawnDetached(path string, argv []string) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	attr := &syscall.ProcAttr{
		Dir:   "/",
		Env:   os.Environ(),
		Files: []uintptr{devNull.Fd(), devNull.Fd(), devNull.Fd()}, // stdin, stdout, stderr -> /dev/null
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	_, err = syscall.ForkExec(path, argv, attr)
	return err
}

// Ensure DetachedSpawner implements domain.Spawner.
var _ domain.Spawner = (*DetachedSpawner)(nil)
