// Package guard intercepts a fixed set of file-inspection commands and
// denies them access to the protected initialization file.
package guard

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// GuardedCommands is the fixed set of wrapped command names: file viewers,
// pagers, editors and stream/text-processing tools. Commands that read
// only standard input are not covered - the protection is argument-based
// and cannot enumerate every indirect way to reach the file's content.
// That gap is accepted, not hidden.
var GuardedCommands = []string{
	"cat", "tac", "less", "more", "head", "tail",
	"vi", "vim", "nano", "ed",
	"grep", "sed", "awk", "cut", "sort", "strings", "xxd", "od",
}

// DenialMessage is the fixed message emitted when an operation is refused.
const DenialMessage = "Permission denied"

// Table is the capability-dispatch table: command name -> handler. It is
// populated once at startup; callers look up and invoke, instead of
// relying on name-based interception at the shell level.
type Table struct {
	protected     string // canonical form of the protected path
	protectedBase string
	commands      map[string]bool
	stderr        io.Writer
	delegate      func(name string, args []string) int
	logger        *zap.Logger
}

// NewTable builds the dispatch table guarding protectedPath.
func NewTable(protectedPath string, logger *zap.Logger) *Table {
	commands := make(map[string]bool, len(GuardedCommands))
	for _, name := range GuardedCommands {
		commands[name] = true
	}

	canonical := canonicalize(protectedPath)
	return &Table{
		protected:     canonical,
		protectedBase: filepath.Base(canonical),
		commands:      commands,
		stderr:        os.Stderr,
		delegate:      runReal,
		logger:        logger,
	}
}

// Run executes the wrapped command name with args.
//
// Every argument that looks like a file-path candidate is resolved to
// canonical absolute form; if any resolves to the protected path, or
// shares its base filename, the operation is refused with a non-zero
// status and the real command is never invoked. Otherwise the call
// delegates transparently, propagating the real command's exit status.
func (t *Table) Run(name string, args []string) int {
	if !t.commands[name] {
		fmt.Fprintf(t.stderr, "shellmon: %s: not a guarded command\n", name)
		return 1
	}

	for _, arg := range args {
		if !pathCandidate(arg) {
			continue
		}
		if t.denies(arg) {
			t.logger.Debug("denied access to protected path",
				zap.String("command", name),
				zap.String("argument", arg))
			fmt.Fprintf(t.stderr, "%s: %s: %s\n", name, arg, DenialMessage)
			return 1
		}
	}

	return t.delegate(name, args)
}

// denies reports whether arg resolves to the protected path.
//
// Callers may reach the file through arbitrary working directories,
// relative arguments or symbolic links, so the comparison normalizes to a
// canonical absolute form and additionally matches on base filename alone
// as a fallback.
func (t *Table) denies(arg string) bool {
	resolved := canonicalize(arg)
	if resolved == t.protected {
		return true
	}
	return filepath.Base(resolved) == t.protectedBase
}

// pathCandidate filters arguments worth resolving. Flags are never paths.
func pathCandidate(arg string) bool {
	return arg != "" && !strings.HasPrefix(arg, "-")
}

// canonicalize resolves arg to absolute form, following symbolic links
// where possible and falling back to a cleaned path constructed from the
// current working directory otherwise.
func canonicalize(arg string) string {
	p := arg
	if !filepath.IsAbs(p) {
		cwd, err := os.Getwd()
		if err != nil {
			return filepath.Clean(p)
		}
		p = filepath.Join(cwd, p)
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}

// runReal delegates to the underlying command with inherited stdio and
// returns its exit status.
func runReal(name string, args []string) int {
	real, err := exec.LookPath(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shellmon: %s: command not found\n", name)
		return 127
	}

	cmd := exec.Command(real, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "shellmon: %s: %v\n", name, err)
		return 1
	}
	return 0
}
