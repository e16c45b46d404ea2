package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicFile is written under a hidden temporary name next to its final path
// and renamed into place on Commit.
type AtomicFile struct {
	*os.File
	path string
	tmp  string
	done bool
}

func CreateAtomic(path string) (*AtomicFile, error) {
	if path == "" {
		return nil, fmt.Errorf("empty output path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	tmp := TempPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &AtomicFile{File: f, path: path, tmp: tmp}, nil
}

func TempPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
}

func (f *AtomicFile) Path() string {
	return f.path
}

func (f *AtomicFile) Commit() error {
	if f.done {
		return fmt.Errorf("%s already finalized", f.path)
	}
	f.done = true
	if err := f.File.Sync(); err != nil {
		_ = f.File.Close()
		_ = RemoveFile(f.tmp)
		return err
	}
	if err := f.File.Close(); err != nil {
		_ = RemoveFile(f.tmp)
		return err
	}
	return os.Rename(f.tmp, f.path)
}

// Abort drops the temporary file. It is a no-op after Commit.
func (f *AtomicFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	_ = f.File.Close()
	return RemoveFile(f.tmp)
}

func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
