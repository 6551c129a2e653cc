package infra

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shellmon/shellmon/internal/domain"
)

const (
	// DefaultRetryDelay is the fixed wait between recoverable failures.
	// There is no backoff cap: the loop favors eventual success over fast
	// failure, which suits an unattended installer.
	DefaultRetryDelay = 5 * time.Second

	// PayloadMode is the destination's final permission bits.
	PayloadMode os.FileMode = 0700

	shmDir = "/dev/shm"
)

// Installer downloads a payload and atomically installs it.
//
// The loop runs fetch -> validate -> deduplicate -> commit until success.
// Every failure except a missing transport is recoverable and retried
// after a fixed delay. The caller bounds the loop externally through ctx;
// the installer itself never gives up.
type Installer struct {
	fetcher    domain.Fetcher
	validator  domain.PayloadValidator
	retryDelay time.Duration
	scratchDir string
	logger     *zap.Logger
}

// NewInstaller creates an installer. fetcher may be nil, in which case
// Install fails fast with domain.ErrNoTransport.
func NewInstaller(fetcher domain.Fetcher, validator domain.PayloadValidator, logger *zap.Logger) *Installer {
	return &Installer{
		fetcher:    fetcher,
		validator:  validator,
		retryDelay: DefaultRetryDelay,
		scratchDir: scratchDir(),
		logger:     logger,
	}
}

// scratchDir prefers a memory-backed location for the download scratch
// file, falling back to the generic temporary directory.
func scratchDir() string {
	if info, err := os.Stat(shmDir); err == nil && info.IsDir() {
		return shmDir
	}
	return os.TempDir()
}

// Install runs the install loop for job until success or a fatal condition.
func (i *Installer) Install(ctx context.Context, job domain.DownloadJob) error {
	if i.fetcher == nil {
		return domain.ErrNoTransport
	}

	for {
		err := i.attempt(ctx, job)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		i.logger.Warn("install attempt failed, retrying",
			zap.String("url", job.SourceURL),
			zap.Duration("delay", i.retryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.retryDelay):
		}
	}
}

// attempt performs one pass of the loop. The scratch file never survives:
// cleanup is registered immediately after creation and disarmed only when
// ownership transfers to the destination via rename.
func (i *Installer) attempt(ctx context.Context, job domain.DownloadJob) error {
	scratch, err := os.CreateTemp(i.scratchDir, ".shellmon-fetch-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	scratchPath := scratch.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(scratchPath)
		}
	}()

	// Fetch
	n, err := i.fetcher.Fetch(ctx, job.SourceURL, scratch)
	if cerr := scratch.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("fetched payload is empty")
	}

	// Validate (best-effort; a nil validator skips the step)
	if i.validator != nil {
		if err := i.validator.Validate(scratchPath); err != nil {
			return err
		}
	}

	// Deduplicate: identical content already installed means zero writes.
	same, err := sameChecksum(scratchPath, job.DestinationPath)
	if err != nil {
		return err
	}
	if same {
		i.logger.Info("payload unchanged, skipping install",
			zap.String("destination", job.DestinationPath))
		return nil
	}

	// Commit
	if err := os.MkdirAll(filepath.Dir(job.DestinationPath), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Chmod(scratchPath, PayloadMode); err != nil {
		return fmt.Errorf("failed to set payload mode: %w", err)
	}
	if err := os.Rename(scratchPath, job.DestinationPath); err != nil {
		if !isCrossDevice(err) {
			return fmt.Errorf("failed to commit payload: %w", err)
		}
		// Scratch lives on a different filesystem (memory-backed dir).
		// Re-stage next to the destination so the final rename is atomic.
		if err := renameAcrossFilesystems(scratchPath, job.DestinationPath); err != nil {
			return fmt.Errorf("failed to commit payload across filesystems: %w", err)
		}
	}
	committed = true

	i.logger.Info("payload installed",
		zap.String("destination", job.DestinationPath),
		zap.Int64("bytes", n))
	return nil
}

// sameChecksum reports whether both files exist and hash identically.
// A missing destination is not an error: it simply means the job is not
// yet satisfied.
func sameChecksum(candidate, destination string) (bool, error) {
	dst, err := FileChecksum(destination)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	cand, err := FileChecksum(candidate)
	if err != nil {
		return false, err
	}
	return cand == dst, nil
}

// FileChecksum returns the hex sha256 of a file's content.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isCrossDevice reports whether a rename failed with EXDEV.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}

// renameAcrossFilesystems copies src into a temp file in dst's directory,
// syncs it, then renames within that filesystem. The copy step itself is
// not atomic, but the destination is only ever replaced by the rename.
func renameAcrossFilesystems(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	staged, err := os.CreateTemp(filepath.Dir(dst), ".shellmon-stage-*")
	if err != nil {
		return err
	}
	stagedPath := staged.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(stagedPath)
		}
	}()

	if _, err := io.Copy(staged, in); err != nil {
		staged.Close()
		return err
	}
	if err := staged.Sync(); err != nil {
		staged.Close()
		return err
	}
	if err := staged.Close(); err != nil {
		return err
	}
	if err := os.Chmod(stagedPath, PayloadMode); err != nil {
		return err
	}
	if err := os.Rename(stagedPath, dst); err != nil {
		return err
	}

	success = true
	os.Remove(src)
	return nil
}
