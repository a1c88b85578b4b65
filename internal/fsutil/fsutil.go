// Package fsutil holds the filesystem operations a build performs: atomic
// writes of rendered output, recursive copy of static assets and removal of
// the output tree.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// Writer persists rendered output.
type Writer interface {
	WriteFile(dest string, data []byte) error
}

// DirWriter writes files below Root. Relative destinations are joined onto
// Root; an empty Root writes relative to the working directory.
type DirWriter struct {
	Root string
}

// WriteFile implements Writer.
func (w DirWriter) WriteFile(dest string, data []byte) error {
	path, err := w.Resolve(dest)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// Resolve maps dest onto the writer root, rejecting paths that escape it.
func (w DirWriter) Resolve(dest string) (string, error) {
	if dest == "" {
		return "", errors.New("destination path is required")
	}
	if w.Root == "" || filepath.IsAbs(dest) {
		return filepath.Clean(dest), nil
	}
	clean := filepath.Clean(dest)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("destination %q escapes output directory", dest)
	}
	return filepath.Join(w.Root, clean), nil
}

// WriteFile creates missing parent directories and replaces path atomically
// by writing a sibling temp file and renaming it into place.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// ReadFile reads the whole file at path.
func ReadFile(path string) ([]byte, error) {
	// #nosec G304 -- callers pass project-relative paths from configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// RemoveTree deletes path and everything below it. A missing path is not an error.
func RemoveTree(path string) error {
	if path == "" || filepath.Clean(path) == "/" || filepath.Clean(path) == "." {
		return fmt.Errorf("refusing to remove %q", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// CopyTree recursively copies src into dst, creating dst as needed. A missing
// src is silently ignored so optional asset directories need no guard.
// It returns the number of files copied.
func CopyTree(src, dst string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		if err := copyFile(src, dst, info.Mode()); err != nil {
			return 0, err
		}
		return 1, nil
	}

	copied := 0
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, dirPerm)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if err := copyFile(path, target, fi.Mode()); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return copied, nil
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return err
	}

	// #nosec G304 -- src comes from walking a configured asset directory.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
