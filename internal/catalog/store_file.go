package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore is a MemStore backed by a JSON file. The file is read once on
// open and rewritten whole after every mutation; reads never touch disk.
type FileStore struct {
	*MemStore
	path string
}

func OpenFileStore(path string) (*FileStore, error) {
	items, err := readProducts(path)
	if err != nil {
		return nil, err
	}

	s := &FileStore{
		MemStore: &MemStore{items: items},
		path:     path,
	}
	s.commit = s.write
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

// Ping checks that the directory holding the file is still there.
func (s *FileStore) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		// created lazily on the first write
		return nil
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("products dir %s: not a directory", dir)
	}
	return nil
}

func readProducts(path string) ([]Product, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Product{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read products file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []Product{}, nil
	}

	var items []Product
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode products file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(items))
	for i, p := range items {
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("products file %s: %w: %q", path, ErrDuplicateID, p.ID)
		}
		seen[p.ID] = struct{}{}
		items[i] = p.clone()
	}
	return items, nil
}

// write replaces the file atomically: temp file in the same dir, fsync, rename.
func (s *FileStore) write(items []Product) error {
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create products dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write products: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync products: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close products: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod products: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace products file: %w", err)
	}
	return nil
}
