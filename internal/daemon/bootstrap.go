// Package daemon implements the rc-file watch daemon.
package daemon

import (
	"os"

	"github.com/shellmon/shellmon/internal/domain"
)

// WatchCommand is the hidden subcommand the daemon self-execs with.
const WatchCommand = "watch"

// StartWatchDaemon spawns a new watch daemon detached from the caller.
// The daemon re-injects the managed rc block if it disappears and
// periodically re-ensures the worker. The spawn is fire-and-forget.
func StartWatchDaemon(spawner domain.Spawner) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}

	return spawner.SpawnDetached(executable, []string{executable, WatchCommand})
}
