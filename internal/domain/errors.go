package domain

import "errors"

// Fatal conditions. Everything else in the installer and block manager is
// recoverable and retried with a fixed delay; these surface immediately to
// the caller and terminate the process non-zero.
var (
	// ErrNoTransport means no download mechanism is available at all.
	ErrNoTransport = errors.New("no transport mechanism available")

	// ErrRCFileMissing means the initialization file to edit does not exist.
	ErrRCFileMissing = errors.New("initialization file not found")

	// ErrVerifyFailed means a post-write re-read did not find the begin
	// marker: the block injection did not take effect.
	ErrVerifyFailed = errors.New("post-write verification failed: begin marker absent")
)
