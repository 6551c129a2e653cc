package domain

import (
	"context"
	"io"
)

// ProcessScanner takes a fresh snapshot of the current user's processes.
// Implementation: uses gopsutil. Results are never cached between calls.
type ProcessScanner interface {
	// Snapshot returns the live process table filtered to the current user.
	Snapshot() ([]ProcessRecord, error)
}

// ProcessManager handles OS process liveness operations.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running (signal 0 probe).
	IsRunning(pid int32) bool

	// Terminate asks a process to shut down (SIGTERM).
	Terminate(pid int32) error
}

// Spawner launches a fully detached process: new session, /dev/null stdio,
// never awaited. The spawned process survives termination of the caller.
// No handle is returned; the worker is launched, never tracked or reaped.
type Spawner interface {
	// SpawnDetached starts path with argv (argv[0] included) detached from
	// the calling process group.
	SpawnDetached(path string, argv []string) error
}

// Fetcher transfers a remote resource into w.
// A nil Fetcher means no transport mechanism is available at all, which is
// the installer's only fatal condition.
type Fetcher interface {
	// Fetch downloads url into w and returns the number of bytes written.
	Fetch(ctx context.Context, url string, w io.Writer) (int64, error)
}

// PayloadValidator checks a fetched payload before it is committed.
// Validation is best-effort: implementations skip silently when no
// suitable checker is available on the host.
type PayloadValidator interface {
	Validate(path string) error
}

// WorkerFinder locates a live worker process for a descriptor.
type WorkerFinder interface {
	// FindWorker returns the pid of a process whose command line references
	// the descriptor's payload, or false when no match is live.
	FindWorker(desc WorkerDescriptor) (int32, bool)
}

// BlockManager edits marker-delimited regions inside a text file.
type BlockManager interface {
	// ReplaceBlock removes every region carrying tag and appends body once,
	// atomically, verifying the begin marker after the write.
	ReplaceBlock(path, tag, body string) error

	// RemoveBlock deletes every region carrying tag. A file with no such
	// region is left byte-for-byte unchanged.
	RemoveBlock(path, tag string) error

	// HasBlock reports whether the tagged region is present.
	HasBlock(path, tag string) (bool, error)
}
