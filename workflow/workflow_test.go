package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"

	"github.com/voltfin/unwind/backend"
)

// Failure-injecting wrappers around the in-memory backends. Each delegates
// everything except the one call it is told to break.

type flakyRecords struct {
	backend.RecordStore
	failInsertTable string
	insertErr       error
}

func (f *flakyRecords) Insert(ctx context.Context, table string, row backend.Row) (backend.Row, error) {
	if table == f.failInsertTable {
		return nil, f.insertErr
	}
	return f.RecordStore.Insert(ctx, table, row)
}

type flakyBlobs struct {
	backend.BlobStore
	failCopyName   string
	failUploadName string
	copyErr        error
}

func (f *flakyBlobs) Copy(ctx context.Context, from, to string) error {
	if f.failCopyName != "" && strings.HasSuffix(from, f.failCopyName) {
		return f.copyErr
	}
	return f.BlobStore.Copy(ctx, from, to)
}

func (f *flakyBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if f.failUploadName != "" && strings.HasSuffix(path, f.failUploadName) {
		return f.copyErr
	}
	return f.BlobStore.Upload(ctx, path, data, contentType)
}

// countingIdentity counts adapter calls, for asserting that a precheck
// conflict stops the saga before the identity subsystem is touched.
type countingIdentity struct {
	*backend.MemIdentityStore
	creates int
	deletes int
}

func (c *countingIdentity) Create(ctx context.Context, email, credential string) (backend.PrincipalID, error) {
	c.creates++
	return c.MemIdentityStore.Create(ctx, email, credential)
}

func (c *countingIdentity) Delete(ctx context.Context, id backend.PrincipalID) error {
	c.deletes++
	return c.MemIdentityStore.Delete(ctx, id)
}

type testEnv struct {
	identity *backend.MemIdentityStore
	records  *backend.MemRecordStore
	blobs    *backend.MemBlobStore
}

func newTestEnv(unique map[string][]string) *testEnv {
	return &testEnv{
		identity: backend.NewMemIdentityStore(),
		records:  backend.NewMemRecordStore(unique),
		blobs:    backend.NewMemBlobStore(),
	}
}

func (e *testEnv) backends() Backends {
	return Backends{Identity: e.identity, Records: e.records, Blobs: e.blobs}
}

func newTestRunner(t *testing.T, b Backends) *Runner {
	t.Helper()
	return NewRunner(testr.New(t), b)
}
