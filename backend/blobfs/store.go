// Package blobfs implements backend.BlobStore on an afero filesystem.
// Per-entity prefixes map to directories under a root path. Content type is
// accepted for interface compatibility but not stored; a plain filesystem
// has no object metadata.
package blobfs

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/spf13/afero"

	"github.com/voltfin/unwind"
)

// Store is a filesystem-backed BlobStore.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates a Store rooted at root on fs. Use afero.NewOsFs() for a real
// directory or afero.NewMemMapFs() in tests.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// List returns the object names directly under prefix, sorted. A prefix
// that was never written to yields an empty slice.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.resolve(prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, unwind.AdapterFailed("list "+prefix, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Copy duplicates the object at from to the path to.
func (s *Store) Copy(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := afero.ReadFile(s.fs, s.resolve(from))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %q: %w", from, unwind.ErrNotFound)
		}
		return unwind.AdapterFailed("read "+from, err)
	}
	return s.write(to, data)
}

// Upload writes data to path, overwriting any existing object.
func (s *Store) Upload(ctx context.Context, path string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(path, data)
}

// Remove deletes the named objects, ignoring ones that do not exist.
func (s *Store) Remove(ctx context.Context, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.fs.Remove(s.resolve(p)); err != nil && !os.IsNotExist(err) {
			return unwind.AdapterFailed("remove "+p, err)
		}
	}
	return nil
}

func (s *Store) write(objectPath string, data []byte) error {
	target := s.resolve(objectPath)
	if err := s.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return unwind.AdapterFailed("mkdir "+objectPath, err)
	}
	if err := afero.WriteFile(s.fs, target, data, 0o644); err != nil {
		return unwind.AdapterFailed("write "+objectPath, err)
	}
	return nil
}

func (s *Store) resolve(objectPath string) string {
	return path.Join(s.root, objectPath)
}
