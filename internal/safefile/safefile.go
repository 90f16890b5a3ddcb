// Package safefile provides file I/O helpers that reject symlinks, enforce
// size limits and replace files atomically. The console reads and writes its
// configuration through these helpers.
package safefile

import (
	"fmt"
	"os"
	"path/filepath"
)

// RejectSymlink returns an error if path is a symbolic link.
// It uses Lstat (not Stat) so the check is not followed through the link.
func RejectSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%s is a symbolic link (rejected for security)", path)
	}
	return nil
}

// ReadFileMax reads path after verifying it is not a symlink and that
// the file size does not exceed maxBytes.
func ReadFileMax(path string, maxBytes int64) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%s is a symbolic link (rejected for security)", path)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%s is too large (%d bytes, max %d)", path, info.Size(), maxBytes)
	}
	return os.ReadFile(path)
}

// WriteFileAtomic writes data to a temp file in the same directory and
// renames it over path, so watchers never observe a half-written file.
// An existing symlink at path is refused.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := RejectSymlink(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
