// Package fileutil writes key and configuration files so that readers never
// observe a partial file.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// dirPerm is used for parent directories created on demand.
const dirPerm = 0o700

// WriteAtomic replaces path with data. The parent directory is created when
// missing.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := stage(path, data, perm)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if err := os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: path comes from configuration
		return fmt.Errorf("renaming temp file: %w", err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// WriteNew writes data to path only when path does not exist yet. An
// existing file is left untouched and the error wraps os.ErrExist.
func WriteNew(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := stage(path, data, perm)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpPath) }()

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, os.ErrExist)
		}
		return fmt.Errorf("linking temp file: %w", err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// stage writes data to a synced temp file next to path and returns its name.
func stage(path string, data []byte, perm os.FileMode) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	fail := func(step string, err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%s temp file: %w", step, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("writing", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail("setting permissions on", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return tmpPath, nil
}

func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil { //nolint:gosec // G304: dir of a configured path
		_ = d.Sync()
		_ = d.Close()
	}
}
