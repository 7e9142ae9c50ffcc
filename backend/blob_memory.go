package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/voltfin/unwind"
)

type memObject struct {
	Data        []byte
	ContentType string
}

// MemBlobStore is an in-memory BlobStore keyed by full object path.
type MemBlobStore struct {
	objects *xsync.MapOf[string, memObject]
}

// NewMemBlobStore creates an empty in-memory blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{
		objects: xsync.NewMapOf[string, memObject](),
	}
}

// List returns the object names directly under prefix, relative to it,
// sorted. Objects nested deeper are not listed.
func (s *MemBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = normalizePrefix(prefix)

	names := make([]string, 0)
	s.objects.Range(func(path string, _ memObject) bool {
		if !strings.HasPrefix(path, prefix) {
			return true
		}
		name := strings.TrimPrefix(path, prefix)
		if !strings.Contains(name, "/") {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names, nil
}

// Copy duplicates the object at from to the path to.
func (s *MemBlobStore) Copy(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	obj, ok := s.objects.Load(from)
	if !ok {
		return fmt.Errorf("blob %q: %w", from, unwind.ErrNotFound)
	}
	data := append([]byte(nil), obj.Data...)
	s.objects.Store(to, memObject{Data: data, ContentType: obj.ContentType})
	return nil
}

// Upload writes data to path, overwriting any existing object.
func (s *MemBlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.objects.Store(path, memObject{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
	})
	return nil
}

// Remove deletes the named objects, ignoring ones that do not exist.
func (s *MemBlobStore) Remove(ctx context.Context, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range paths {
		s.objects.Delete(p)
	}
	return nil
}

// Get returns an object's data and content type.
func (s *MemBlobStore) Get(path string) ([]byte, string, bool) {
	obj, ok := s.objects.Load(path)
	if !ok {
		return nil, "", false
	}
	return obj.Data, obj.ContentType, true
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
