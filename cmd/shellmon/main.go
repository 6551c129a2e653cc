// Package main is the CLI entry point for shellmon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shellmon/shellmon/internal/config"
	"github.com/shellmon/shellmon/internal/daemon"
	"github.com/shellmon/shellmon/internal/guard"
	"github.com/shellmon/shellmon/internal/infra"
	"github.com/shellmon/shellmon/internal/supervisor"
	"github.com/shellmon/shellmon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shellmon: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shellmon",
	Short: "Keeps a background worker alive across shell sessions",
	Long: `shellmon bootstraps a background worker so that it survives across
interactive shell sessions without a system service manager.

Run without arguments to install: the payload is downloaded when a source
URL is configured, a managed block is injected into the shell
initialization file, and the worker is started once immediately.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker and installation status",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

// Hidden guard command - the dispatch target for the wrapped commands
// defined in the injected rc block.
var guardCmd = &cobra.Command{
	Use:                "guard <command> [args...]",
	Hidden:             true,
	DisableFlagParsing: true,
	Args:               cobra.MinimumNArgs(1),
	Run:                runGuard,
}

// Hidden ensure command - invoked from the rc block triggers.
var ensureCmd = &cobra.Command{
	Use:    "ensure",
	Hidden: true,
	RunE:   runEnsure,
}

// Hidden watch command - the detached watch daemon self-execs into this.
var watchCmd = &cobra.Command{
	Use:    daemon.WatchCommand,
	Hidden: true,
	RunE:   runWatch,
}

var (
	uninstallFlag bool
	verboseFlag   bool
	jsonOutput    bool
)

func init() {
	rootCmd.Flags().BoolVar(&uninstallFlag, "uninstall", false, "Remove the managed block from the rc file and exit")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(ensureCmd)
	rootCmd.AddCommand(watchCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger := cliLogger()
	defer func() { _ = logger.Sync() }()

	boot, err := buildBootstrap(cfg, logger)
	if err != nil {
		return err
	}

	// Uninstall goes through the orchestrator too: a live watch daemon has
	// to be stopped before the block is removed, or it re-injects it.
	if uninstallFlag {
		return boot.Uninstall()
	}

	if err := boot.Install(cmd.Context()); err != nil {
		return err
	}

	fmt.Printf("Installed block %q into %s\n", cfg.BlockTag, cfg.RCFile)
	return nil
}

// buildBootstrap wires the production dependency graph for the root command.
func buildBootstrap(cfg config.Config, logger *zap.Logger) (*usecase.Bootstrap, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	blocks := infra.NewRCFileManager()
	scanner := infra.NewProcessScanner()
	matcher := infra.NewMatcher(scanner)
	pm := infra.NewProcessManager()
	spawner := infra.NewDetachedSpawner()
	sup := supervisor.New(matcher, pm, spawner, logger)
	installer := infra.NewInstaller(
		infra.NewHTTPFetcher(),
		infra.NewPyCompileValidator(cfg.Interpreter),
		logger,
	)

	return usecase.NewBootstrap(cfg, executable, installer, blocks, sup, spawner, matcher, pm, logger), nil
}

func runEnsure(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		// "Not configured" is a valid state; ensure is always a no-op then.
		return nil
	}
	logger := cliLogger()
	defer func() { _ = logger.Sync() }()

	scanner := infra.NewProcessScanner()
	sup := supervisor.New(infra.NewMatcher(scanner), infra.NewProcessManager(), infra.NewDetachedSpawner(), logger)
	sup.EnsureRunning(cfg.Descriptor())
	return nil
}

func runGuard(cmd *cobra.Command, args []string) {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shellmon: %v\n", err)
		os.Exit(1)
	}

	table := guard.NewTable(cfg.RCFile, cliLogger())
	os.Exit(table.Run(args[0], args[1:]))
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	executable, err := os.Executable()
	if err != nil {
		return err
	}

	logger := daemonLogger()
	defer func() { _ = logger.Sync() }()

	scanner := infra.NewProcessScanner()
	sup := supervisor.New(infra.NewMatcher(scanner), infra.NewProcessManager(), infra.NewDetachedSpawner(), logger)
	blocks := infra.NewRCFileManager()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	watcher := daemon.NewWatcher(
		daemon.DefaultWatcherConfig(),
		cfg,
		blocks,
		sup,
		usecase.RenderBlock(executable),
		logger,
	)
	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger := cliLogger()
	defer func() { _ = logger.Sync() }()

	scanner := infra.NewProcessScanner()
	matcher := infra.NewMatcher(scanner)
	pm := infra.NewProcessManager()
	blocks := infra.NewRCFileManager()

	fmt.Println("=== shellmon Status ===")

	if pid, ok := matcher.FindWorker(cfg.Descriptor()); ok && pm.IsRunning(pid) {
		fmt.Printf("Worker: RUNNING (pid %d)\n", pid)
	} else {
		fmt.Println("Worker: NOT RUNNING")
	}

	present, err := blocks.HasBlock(cfg.RCFile, cfg.BlockTag)
	switch {
	case err != nil:
		fmt.Printf("Block: UNKNOWN (%v)\n", err)
	case present:
		fmt.Printf("Block: present in %s\n", cfg.RCFile)
	default:
		fmt.Printf("Block: absent from %s\n", cfg.RCFile)
	}

	if sum, err := infra.FileChecksum(cfg.PayloadPath); err == nil {
		fmt.Printf("Payload: %s (sha256 %s)\n", cfg.PayloadPath, sum[:12])
	} else {
		fmt.Printf("Payload: not installed at %s\n", cfg.PayloadPath)
	}

	executable, err := os.Executable()
	if err == nil {
		if pid, ok := matcher.FindCommand(executable, daemon.WatchCommand); ok && pm.IsRunning(pid) {
			fmt.Printf("Watch daemon: RUNNING (pid %d)\n", pid)
		} else {
			fmt.Println("Watch daemon: NOT RUNNING")
		}
	}

	fmt.Println("=======================")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("shellmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// cliLogger discards output unless --verbose is set.
func cliLogger() *zap.Logger {
	if !verboseFlag {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// daemonLogger writes structured logs to a file in the temp directory.
func daemonLogger() *zap.Logger {
	logPath := filepath.Join(os.TempDir(), "shellmon.log")

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to no-op if file logging fails
		return zap.NewNop()
	}
	return logger
}
