// Package infra implements infrastructure concerns (process, transport, filesystem).
package infra

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/shellmon/shellmon/internal/domain"
)

// GopsutilScanner implements domain.ProcessScanner using gopsutil.
type GopsutilScanner struct{}

// NewProcessScanner creates a new process scanner.
func NewProcessScanner() domain.ProcessScanner {
	return &GopsutilScanner{}
}

// Snapshot enumerates processes owned by the current user, fresh on every
// call. Processes that exit mid-scan are skipped.
func (s *GopsutilScanner) Snapshot() ([]domain.ProcessRecord, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	uid := int32(os.Getuid())
	var records []domain.ProcessRecord

	for _, p := range procs {
		uids, err := p.Uids()
		if err != nil {
			continue // Process may have exited
		}
		if len(uids) > 0 && uids[0] != uid {
			continue
		}

		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}

		records = append(records, domain.ProcessRecord{
			PID:         p.Pid,
			CommandLine: cmdline,
		})
	}

	return records, nil
}

// Ensure GopsutilScanner implements domain.ProcessScanner.
var _ domain.ProcessScanner = (*GopsutilScanner)(nil)

// Matcher locates the worker in a process-table snapshot.
//
// Matching is literal substring containment over command-line text, never
// regex: the two-pass fallback relies on loose substring semantics to stay
// resilient against relative launch paths and argument reordering.
type Matcher struct {
	scanner domain.ProcessScanner
}

// NewMatcher creates a matcher over the given scanner.
func NewMatcher(scanner domain.ProcessScanner) *Matcher {
	return &Matcher{scanner: scanner}
}

// FindWorker returns the pid of a live process referencing the worker.
//
// First pass: the command line contains the full payload path. Second pass,
// only when the first finds nothing: the command line contains both the
// interpreter's base name and the payload's base filename. The fallback can
// misidentify an unrelated process that happens to carry both substrings;
// that imprecision is accepted because the result only suppresses a
// duplicate launch, it never targets a signal.
func (m *Matcher) FindWorker(desc domain.WorkerDescriptor) (int32, bool) {
	records, err := m.scanner.Snapshot()
	if err != nil {
		return 0, false
	}

	for _, r := range records {
		if strings.Contains(r.CommandLine, desc.PayloadPath) {
			return r.PID, true
		}
	}

	interp := filepath.Base(desc.Interpreter)
	base := filepath.Base(desc.PayloadPath)
	for _, r := range records {
		if strings.Contains(r.CommandLine, interp) && strings.Contains(r.CommandLine, base) {
			return r.PID, true
		}
	}

	return 0, false
}

// FindCommand returns the pid of the first live process, other than the
// caller, whose command line contains every given substring. Used for
// duplicate suppression of the watch daemon.
func (m *Matcher) FindCommand(substrings ...string) (int32, bool) {
	records, err := m.scanner.Snapshot()
	if err != nil {
		return 0, false
	}

	self := int32(os.Getpid())
	for _, r := range records {
		if r.PID == self {
			continue
		}
		all := true
		for _, sub := range substrings {
			if !strings.Contains(r.CommandLine, sub) {
				all = false
				break
			}
		}
		if all {
			return r.PID, true
		}
	}
	return 0, false
}

// Ensure Matcher implements domain.WorkerFinder.
var _ domain.WorkerFinder = (*Matcher)(nil)

// ProcessManagerImpl implements domain.ProcessManager.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int32) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// Terminate sends SIGTERM.
func (pm *ProcessManagerImpl) Terminate(pid int32) error {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
