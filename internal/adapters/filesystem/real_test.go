package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRealFileSystem_WriteAndRead(t *testing.T) {
	fs := NewRealFileSystem()
	dir := t.TempDir()

	path := filepath.Join(dir, "k8s.conf")
	if err := fs.WriteFile(path, []byte("overlay\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	content, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(content) != "overlay\n" {
		t.Errorf("ReadFile() = %q, want %q", content, "overlay\n")
	}
	if !fs.Exists(path) {
		t.Error("Exists() should return true")
	}
	if fs.Exists(filepath.Join(dir, "missing")) {
		t.Error("Exists() should return false for a missing file")
	}
}

func TestRealFileSystem_WriteFile_ReplacesAtomically(t *testing.T) {
	fs := NewRealFileSystem()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := fs.WriteFile(path, []byte("version = 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := fs.WriteFile(path, []byte("version = 3\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	content, _ := fs.ReadFile(path)
	if string(content) != "version = 3\n" {
		t.Errorf("content = %q", content)
	}
	info, err := fs.GetFileInfo(path)
	if err != nil {
		t.Fatalf("GetFileInfo() error = %v", err)
	}
	if info.Mode.Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode.Perm())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestRealFileSystem_WriteFile_MissingDirectory(t *testing.T) {
	fs := NewRealFileSystem()

	err := fs.WriteFile(filepath.Join(t.TempDir(), "absent", "file"), []byte("x"), 0o644)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("WriteFile() error = %v, want ErrNotExist", err)
	}
}

func TestRealFileSystem_MkdirAllAndCopy(t *testing.T) {
	fs := NewRealFileSystem()
	dir := t.TempDir()

	src := filepath.Join(dir, "admin.conf")
	if err := fs.WriteFile(src, []byte("apiVersion: v1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	kubeDir := filepath.Join(dir, "home", ".kube")
	if err := fs.MkdirAll(kubeDir, 0o700); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	info, err := fs.GetFileInfo(kubeDir)
	if err != nil || !info.IsDir {
		t.Fatalf("GetFileInfo() = %+v, %v", info, err)
	}

	dest := filepath.Join(kubeDir, "config")
	if err := fs.CopyFile(src, dest, 0o600); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	content, _ := fs.ReadFile(dest)
	if string(content) != "apiVersion: v1\n" {
		t.Errorf("copied content = %q", content)
	}
	info, _ = fs.GetFileInfo(dest)
	if info.Mode.Perm() != 0o600 {
		t.Errorf("copied mode = %v, want 0600", info.Mode.Perm())
	}
	if info.Size != int64(len("apiVersion: v1\n")) {
		t.Errorf("size = %d", info.Size)
	}
}

func TestRealFileSystem_CopyFile_MissingSource(t *testing.T) {
	fs := NewRealFileSystem()
	dir := t.TempDir()

	err := fs.CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dest"), 0o600)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("CopyFile() error = %v, want ErrNotExist", err)
	}
}
