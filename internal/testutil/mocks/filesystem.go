package mocks

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/felixgeelhaar/nodeprep/internal/ports"
)

type fileEntry struct {
	data    []byte
	mode    os.FileMode
	modTime time.Time
}

// FileSystem is a thread-safe in-memory test double for ports.FileSystem.
// Missing files report errors wrapping os.ErrNotExist.
type FileSystem struct {
	mu      sync.RWMutex
	files   map[string]fileEntry
	dirs    map[string]bool
	readErr map[string]error
	writes  int
	now     func() time.Time
}

// NewFileSystem creates a new FileSystem mock.
func NewFileSystem() *FileSystem {
	return &FileSystem{
		files:   make(map[string]fileEntry),
		dirs:    make(map[string]bool),
		readErr: make(map[string]error),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for modification times.
func (fs *FileSystem) SetClock(now func() time.Time) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.now = now
}

// AddFile seeds a file. Seeding is not counted as a write.
func (fs *FileSystem) AddFile(path string, content string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[path] = fileEntry{data: []byte(content), mode: 0o644, modTime: fs.now()}
}

// AddDir seeds a directory.
func (fs *FileSystem) AddDir(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dirs[path] = true
}

// Remove deletes a file or directory.
func (fs *FileSystem) Remove(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.files, path)
	delete(fs.dirs, path)
}

// FailRead makes every ReadFile and GetFileInfo of path return err.
func (fs *FileSystem) FailRead(path string, err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.readErr[path] = err
}

// Content returns the file content as a string, or "" when missing.
func (fs *FileSystem) Content(path string) string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return string(fs.files[path].data)
}

// Mode returns the permission bits a file was written with.
func (fs *FileSystem) Mode(path string) os.FileMode {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.files[path].mode
}

// Writes returns how many WriteFile and CopyFile calls succeeded.
func (fs *FileSystem) Writes() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.writes
}

// ReadFile reads a file from the mock filesystem.
func (fs *FileSystem) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if err, ok := fs.readErr[path]; ok {
		return nil, err
	}
	if e, ok := fs.files[path]; ok {
		return append([]byte(nil), e.data...), nil
	}
	return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
}

// WriteFile writes a file to the mock filesystem.
func (fs *FileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[path] = fileEntry{data: append([]byte(nil), data...), mode: perm, modTime: fs.now()}
	fs.writes++
	return nil
}

// Exists checks if a file or directory exists in the mock filesystem.
func (fs *FileSystem) Exists(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, fileExists := fs.files[path]
	return fileExists || fs.dirs[path]
}

// MkdirAll creates a directory in the mock filesystem.
func (fs *FileSystem) MkdirAll(path string, _ os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dirs[path] = true
	return nil
}

// CopyFile copies a file in the mock filesystem.
func (fs *FileSystem) CopyFile(src, dest string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.files[src]
	if !ok {
		return fmt.Errorf("open %s: %w", src, os.ErrNotExist)
	}
	fs.files[dest] = fileEntry{data: append([]byte(nil), e.data...), mode: perm, modTime: fs.now()}
	fs.writes++
	return nil
}

// GetFileInfo returns metadata about a file in the mock filesystem.
func (fs *FileSystem) GetFileInfo(path string) (ports.FileInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if err, ok := fs.readErr[path]; ok {
		return ports.FileInfo{}, err
	}
	if e, ok := fs.files[path]; ok {
		return ports.FileInfo{
			Size:    int64(len(e.data)),
			Mode:    e.mode,
			ModTime: e.modTime,
		}, nil
	}
	if fs.dirs[path] {
		return ports.FileInfo{Mode: 0o755 | os.ModeDir, IsDir: true}, nil
	}
	return ports.FileInfo{}, fmt.Errorf("stat %s: %w", path, os.ErrNotExist)
}

var _ ports.FileSystem = (*FileSystem)(nil)
