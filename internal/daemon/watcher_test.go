package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shellmon/shellmon/internal/config"
	"github.com/shellmon/shellmon/internal/domain"
	"github.com/shellmon/shellmon/internal/infra"
	"github.com/shellmon/shellmon/internal/supervisor"
)

type stubFinder struct{}

func (stubFinder) FindWorker(domain.WorkerDescriptor) (int32, bool) { return 0, false }

type stubPM struct{}

func (stubPM) IsRunning(int32) bool  { return false }
func (stubPM) Terminate(int32) error { return nil }

type stubSpawner struct{}

func (stubSpawner) SpawnDetached(string, []string) error { return nil }

func testWatcher(t *testing.T, rcContent string) (*Watcher, string) {
	t.Helper()
	rcFile := filepath.Join(t.TempDir(), ".bashrc")
	require.NoError(t, os.WriteFile(rcFile, []byte(rcContent), 0644))

	cfg := config.Config{
		RCFile:      rcFile,
		PayloadPath: "/nonexistent/worker.py",
		Interpreter: "python",
		Autostart:   false, // keep the supervisor inert
		BlockTag:    config.DefaultBlockTag,
	}

	sup := supervisor.New(stubFinder{}, stubPM{}, stubSpawner{}, zap.NewNop())
	wcfg := WatcherConfig{
		EnsureInterval: time.Hour, // never fires during the test
		RepairDelay:    10 * time.Millisecond,
	}

	w := NewWatcher(wcfg, cfg, infra.NewRCFileManager(), sup, "managed body line", zap.NewNop())
	return w, rcFile
}

func blockPresent(t *testing.T, w *Watcher) bool {
	t.Helper()
	present, err := w.blocks.HasBlock(w.cfg.RCFile, w.cfg.BlockTag)
	require.NoError(t, err)
	return present
}

// TestRepairBlock_ReinjectsMissingBlock verifies the tamper-repair path.
func TestRepairBlock_ReinjectsMissingBlock(t *testing.T) {
	w, rcFile := testWatcher(t, "export FOO=bar\n")

	require.False(t, blockPresent(t, w))
	w.repairBlock()
	assert.True(t, blockPresent(t, w))

	data, err := os.ReadFile(rcFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "managed body line")
	assert.Contains(t, string(data), "export FOO=bar")
}

// TestRepairBlock_LeavesIntactBlockAlone verifies no write happens while
// the tagged region is present.
func TestRepairBlock_LeavesIntactBlockAlone(t *testing.T) {
	w, rcFile := testWatcher(t, "x\n")
	w.repairBlock()

	before, err := os.Stat(rcFile)
	require.NoError(t, err)

	w.repairBlock()

	after, err := os.Stat(rcFile)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

// TestRun_RepairsAfterTampering verifies the fsnotify path end to end: a
// rewrite dropping the managed region gets repaired.
func TestRun_RepairsAfterTampering(t *testing.T) {
	w, rcFile := testWatcher(t, "keep\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait until the initial pass injected the block.
	require.Eventually(t, func() bool { return blockPresent(t, w) },
		2*time.Second, 20*time.Millisecond)

	// Tamper: rewrite the rc file without the managed region.
	require.NoError(t, os.WriteFile(rcFile, []byte("keep\n"), 0644))

	assert.Eventually(t, func() bool { return blockPresent(t, w) },
		5*time.Second, 20*time.Millisecond, "watcher should re-inject the block")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}
