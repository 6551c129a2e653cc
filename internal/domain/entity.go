// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

// WorkerDescriptor describes the worker process the supervisor keeps alive.
// It is rebuilt from configuration on every invocation; configuration may
// change between shell sessions, so nothing here is cached.
type WorkerDescriptor struct {
	PayloadPath string // Absolute path to the worker payload script
	Interpreter string // Interpreter binary name or path (e.g. "python")
	Autostart   bool   // When false, EnsureRunning is a no-op
}

// ProcessRecord is a live snapshot of one process from the OS process table.
// Records are sourced fresh on every detection call - the previous worker
// may have exited, so stale records are never reused.
type ProcessRecord struct {
	PID         int32
	CommandLine string
}

// DownloadJob describes one payload installation.
// A job is satisfied when the destination's checksum already equals the
// fetched content (no-op) or when a fetched candidate has been atomically
// moved into place.
type DownloadJob struct {
	SourceURL       string
	DestinationPath string
}

// MarkerBlock is a tagged, marker-delimited region inside a text file.
// At most one contiguous region per tag may exist in the target file;
// re-injection removes all prior occurrences before appending a fresh one.
type MarkerBlock struct {
	Tag  string
	Body string
}

// BeginMarker returns the line that opens the tagged region.
func (b MarkerBlock) BeginMarker() string {
	return "# >>> " + b.Tag + " >>>"
}

// EndMarker returns the line that closes the tagged region.
func (b MarkerBlock) EndMarker() string {
	return "# <<< " + b.Tag + " <<<"
}
