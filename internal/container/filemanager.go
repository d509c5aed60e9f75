package container

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"

	"github.com/tracewell-dev/tracewell/internal/types"
)

// FileManager assigns stable FileIDs to source paths as the session
// encounters them, and captures a read-once content snapshot of each file
// for the footer's File Manager table (§3, §6). A file is read at most
// once regardless of how many events reference it.
type FileManager struct {
	mu      sync.Mutex
	byPath  map[string]types.FileID
	entries []types.FileEntry
	nextID  types.FileID
	baseDir string
}

// NewFileManager creates a FileManager. baseDir (source_base_dir, §6) is
// kept on the manager but not applied: recorded paths, including those in
// the footer's file table, are exactly as the event source reported them.
func NewFileManager(baseDir string) *FileManager {
	return &FileManager{
		byPath:  make(map[string]types.FileID),
		baseDir: baseDir,
		nextID:  1,
	}
}

// IDFor returns the stable FileID for path, assigning and snapshotting it
// on first sight. A read failure does not fail the call: the entry is kept
// with empty content and a zero hash, and the error is returned for the
// caller to log as a diagnostic (tracing continues without the snapshot).
func (m *FileManager) IDFor(path string) (types.FileID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPath[path]; ok {
		return id, nil
	}

	id := m.nextID
	m.nextID++
	m.byPath[path] = id

	content, err := os.ReadFile(path)
	entry := types.FileEntry{FileID: id, Path: path}
	if err == nil {
		entry.Content = content
		entry.ContentHash = sha256.Sum256(content)
	}
	m.entries = append(m.entries, entry)

	if err != nil {
		return id, fmt.Errorf("container: snapshot source file %s: %w", path, err)
	}
	return id, nil
}

// Entries returns the File Manager table accumulated so far, in
// assignment order. The slice is a copy; callers may not mutate FileManager
// state through it.
func (m *FileManager) Entries() []types.FileEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.FileEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// PathFor resolves a FileID back to its recorded path, for the Report
// Builder. Returns false if id is unknown.
func (m *FileManager) PathFor(id types.FileID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.FileID == id {
			return e.Path, true
		}
	}
	return "", false
}
