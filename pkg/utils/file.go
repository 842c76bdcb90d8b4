package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// StageFile writes a sibling temp file of path through writeFunc and fsyncs it.
// It returns the temp file name; the caller either commits it with CommitFile or removes it.
func StageFile(path string, writeFunc func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(name)
		}
	}()
	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return "", err
	}
	if err := buf.Flush(); err != nil {
		return "", fmt.Errorf("flush %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	ok = true
	return name, nil
}

// CommitFile renames a staged temp file over path and fsyncs the directory (best effort).
func CommitFile(tmpName, path string) error {
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	SyncDir(filepath.Dir(path))
	return nil
}

// SyncDir fsyncs dir so renames inside it are durable on POSIX. Errors are ignored.
func SyncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}

// WriteFileAtomic replaces path with the output of writeFunc via temp file, fsync and rename.
// On failure path is left untouched.
func WriteFileAtomic(path string, writeFunc func(io.Writer) error) error {
	tmp, err := StageFile(path, writeFunc)
	if err != nil {
		return err
	}
	if err := CommitFile(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
