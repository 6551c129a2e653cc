package infra

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shellmon/shellmon/internal/domain"
)

// RCFileManager implements domain.BlockManager over a shell initialization
// file. Edits are atomic to readers: the new content is written to a
// scratch file in the same directory and renamed over the original.
type RCFileManager struct{}

// NewRCFileManager creates a new rc-file block manager.
func NewRCFileManager() domain.BlockManager {
	return &RCFileManager{}
}

// ReplaceBlock strips every region carrying tag and appends body once at
// the end of the file. After the write the file is re-read; a missing
// begin marker is a fatal integrity failure, distinct from the installer's
// recoverable retries.
func (m *RCFileManager) ReplaceBlock(path, tag, body string) error {
	block := domain.MarkerBlock{Tag: tag, Body: body}

	kept, _, err := stripRegions(path, block)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	out.Write(kept)
	if out.Len() > 0 && !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
		out.WriteByte('\n')
	}
	out.WriteString(block.BeginMarker() + "\n")
	out.WriteString(strings.TrimRight(body, "\n") + "\n")
	out.WriteString(block.EndMarker() + "\n")

	if err := writeAtomic(path, out.Bytes()); err != nil {
		return err
	}

	// Post-write verification
	written, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVerifyFailed, err)
	}
	if !containsLine(written, block.BeginMarker()) {
		return domain.ErrVerifyFailed
	}
	return nil
}

// RemoveBlock strips every region carrying tag. When no region exists the
// file is left byte-for-byte untouched - no write, no mtime change.
func (m *RCFileManager) RemoveBlock(path, tag string) error {
	block := domain.MarkerBlock{Tag: tag}

	kept, found, err := stripRegions(path, block)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return writeAtomic(path, kept)
}

// HasBlock reports whether the tagged region's begin marker is present.
func (m *RCFileManager) HasBlock(path, tag string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("%w: %s", domain.ErrRCFileMissing, path)
		}
		return false, err
	}
	return containsLine(data, domain.MarkerBlock{Tag: tag}.BeginMarker()), nil
}

// stripRegions returns the file content with every tagged region removed,
// from each begin-marker line through its end-marker line inclusive. An
// unterminated region is dropped through end of file: prior partial
// injections must never survive a rewrite.
func stripRegions(path string, block domain.MarkerBlock) (kept []byte, found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, fmt.Errorf("%w: %s", domain.ErrRCFileMissing, path)
		}
		return nil, false, err
	}
	defer f.Close()

	begin := block.BeginMarker()
	end := block.EndMarker()

	var out bytes.Buffer
	inRegion := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case !inRegion && strings.TrimSpace(line) == begin:
			inRegion = true
			found = true
		case inRegion && strings.TrimSpace(line) == end:
			inRegion = false
		case !inRegion:
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	return out.Bytes(), found, nil
}

// writeAtomic replaces path's content via scratch file + same-directory
// rename, preserving the original file mode.
func writeAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	scratch, err := os.CreateTemp(filepath.Dir(path), ".shellmon-rc-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	scratchPath := scratch.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(scratchPath)
		}
	}()

	if _, err := scratch.Write(data); err != nil {
		scratch.Close()
		return err
	}
	if err := scratch.Sync(); err != nil {
		scratch.Close()
		return err
	}
	if err := scratch.Close(); err != nil {
		return err
	}
	if err := os.Chmod(scratchPath, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Rename(scratchPath, path); err != nil {
		return err
	}

	success = true
	return nil
}

// containsLine reports whether data has a line equal to want after
// trimming surrounding whitespace.
func containsLine(data []byte, want string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == want {
			return true
		}
	}
	return false
}

// Ensure RCFileManager implements domain.BlockManager.
var _ domain.BlockManager = (*RCFileManager)(nil)
