package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shellmon/shellmon/internal/config"
	"github.com/shellmon/shellmon/internal/infra"
)

// TestRunRoot_UninstallRemovesManagedBlock verifies --uninstall is routed
// through the orchestrator and strips the tagged region from the rc file.
func TestRunRoot_UninstallRemovesManagedBlock(t *testing.T) {
	dir := t.TempDir()
	rc := filepath.Join(dir, ".bashrc")
	require.NoError(t, os.WriteFile(rc, []byte("export PATH=$PATH:/usr/local/bin\n"), 0o644))

	blocks := infra.NewRCFileManager()
	require.NoError(t, blocks.ReplaceBlock(rc, config.DefaultBlockTag, "echo managed"))

	t.Setenv(config.EnvRCFile, rc)
	t.Setenv(config.EnvPayload, filepath.Join(dir, "worker.py"))
	t.Setenv(config.EnvAutostart, "0")
	t.Setenv(config.EnvSourceURL, "")
	t.Setenv(config.EnvBlockTag, "")

	uninstallFlag = true
	defer func() { uninstallFlag = false }()

	require.NoError(t, runRoot(rootCmd, nil))

	present, err := blocks.HasBlock(rc, config.DefaultBlockTag)
	require.NoError(t, err)
	assert.False(t, present, "tagged region must be gone after --uninstall")

	data, err := os.ReadFile(rc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "export PATH", "unmanaged lines must survive")
}
