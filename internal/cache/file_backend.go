package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
)

const maxNameLen = 48

// FileBackend stores one JSON file per key under <dir>/<namespace>/.
type FileBackend struct {
	root string
}

// NewFileBackend creates a file backend rooted at dir/namespace. Nothing is
// created on disk until the first Save.
func NewFileBackend(dir, namespace string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if namespace == "" {
		namespace = "default"
	}
	return &FileBackend{root: filepath.Join(dir, sanitize(namespace))}, nil
}

// Root returns the namespace directory.
func (b *FileBackend) Root() string { return b.root }

// PathFor returns the file that holds key.
func (b *FileBackend) PathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(b.root, sanitize(key)+"-"+hex.EncodeToString(sum[:6])+".json")
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context, key string) (Entry, error) {
	path := b.PathFor(key)
	// #nosec G304 -- path is derived from the cache root and a hashed key.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("read cache file %s: %w", path, err)
	}
	e, err := decodeFile(data)
	if err != nil {
		return Entry{}, &CorruptEntryError{Key: key, Location: path, Err: err}
	}
	if e.Key != key {
		return Entry{}, &CorruptEntryError{Key: key, Location: path, Err: fmt.Errorf("entry belongs to key %q", e.Key)}
	}
	return e, nil
}

// Save implements Backend.
func (b *FileBackend) Save(_ context.Context, e Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return fsutil.WriteFile(b.PathFor(e.Key), data)
}

// List implements Backend.
func (b *FileBackend) List(_ context.Context) ([]Entry, error) {
	files, err := os.ReadDir(b.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache dir: %w", err)
	}

	var (
		entries []Entry
		errs    []error
	)
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(b.root, f.Name())
		// #nosec G304 -- listing files inside the cache root.
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e, err := decodeFile(data)
		if err != nil {
			errs = append(errs, &CorruptEntryError{Key: strings.TrimSuffix(f.Name(), ".json"), Location: path, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, errors.Join(errs...)
}

// Clear implements Backend.
func (b *FileBackend) Clear(_ context.Context) error {
	return fsutil.RemoveTree(b.root)
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

func decodeFile(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, err
	}
	if _, err := e.Decode(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
		if sb.Len() >= maxNameLen {
			break
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}
