package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltfin/unwind"
)

func TestMemIdentityStoreCreateDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemIdentityStore()

	id, err := store.Create(ctx, "ana@example.com", "hunter2hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, store.Len())

	// Same email again is a conflict, case-insensitively.
	_, err = store.Create(ctx, "Ana@Example.com", "other-credential")
	assert.ErrorIs(t, err, unwind.ErrConflict)

	verified, err := store.Verify(ctx, "ana@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, id, verified)

	_, err = store.Verify(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, unwind.ErrNotFound)

	require.NoError(t, store.Delete(ctx, id))
	assert.Equal(t, 0, store.Len())
	assert.ErrorIs(t, store.Delete(ctx, id), unwind.ErrNotFound)
}

func TestMemRecordStoreConflictOnUniqueColumns(t *testing.T) {
	ctx := context.Background()
	store := NewMemRecordStore(map[string][]string{"users": {"email"}})

	_, err := store.Insert(ctx, "users", Row{"id": "u1", "email": "ana@example.com"})
	require.NoError(t, err)

	_, err = store.Insert(ctx, "users", Row{"id": "u2", "email": "ana@example.com"})
	assert.ErrorIs(t, err, unwind.ErrConflict)

	_, err = store.Insert(ctx, "users", Row{"id": "u1", "email": "bob@example.com"})
	assert.ErrorIs(t, err, unwind.ErrConflict, "id column is always unique")

	_, err = store.Insert(ctx, "users", Row{"id": "u2", "email": "bob@example.com"})
	assert.NoError(t, err)
}

func TestMemRecordStoreFindUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemRecordStore(nil)

	_, err := store.Insert(ctx, "orders", Row{"id": "o1", "status": "new", "amount": 120})
	require.NoError(t, err)

	row, err := store.FindOne(ctx, "orders", Row{"id": "o1"})
	require.NoError(t, err)
	assert.Equal(t, "new", row["status"])

	_, err = store.FindOne(ctx, "orders", Row{"id": "nope"})
	assert.ErrorIs(t, err, unwind.ErrNotFound)

	require.NoError(t, store.Update(ctx, "orders", "o1", Row{"status": "ready"}))
	row, err = store.FindOne(ctx, "orders", Row{"status": "ready"})
	require.NoError(t, err)
	assert.Equal(t, "o1", row["id"])

	assert.ErrorIs(t, store.Update(ctx, "orders", "nope", Row{"status": "x"}), unwind.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "orders", "o1"))
	assert.Equal(t, 0, store.Count("orders"))
	assert.ErrorIs(t, store.Delete(ctx, "orders", "o1"), unwind.ErrNotFound)
}

func TestMemRecordStoreFindOneReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemRecordStore(nil)

	_, err := store.Insert(ctx, "rates", Row{"id": "base", "value": 4.2})
	require.NoError(t, err)

	row, err := store.FindOne(ctx, "rates", Row{"id": "base"})
	require.NoError(t, err)
	row["value"] = 99.0

	again, err := store.FindOne(ctx, "rates", Row{"id": "base"})
	require.NoError(t, err)
	assert.Equal(t, 4.2, again["value"], "mutating a returned row must not touch the store")
}

func TestMemBlobStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemBlobStore()

	require.NoError(t, store.Upload(ctx, "sim-1/contract.pdf", []byte("pdf-bytes"), "application/pdf"))
	require.NoError(t, store.Upload(ctx, "sim-1/id-card.png", []byte("png-bytes"), "image/png"))
	require.NoError(t, store.Upload(ctx, "sim-2/other.pdf", []byte("x"), "application/pdf"))

	names, err := store.List(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"contract.pdf", "id-card.png"}, names)

	require.NoError(t, store.Copy(ctx, "sim-1/contract.pdf", "order-9/contract.pdf"))
	data, contentType, ok := store.Get("order-9/contract.pdf")
	require.True(t, ok)
	assert.Equal(t, []byte("pdf-bytes"), data)
	assert.Equal(t, "application/pdf", contentType)

	assert.ErrorIs(t, store.Copy(ctx, "sim-1/missing.pdf", "order-9/missing.pdf"), unwind.ErrNotFound)

	require.NoError(t, store.Remove(ctx, "sim-1/contract.pdf", "sim-1/id-card.png", "sim-1/never-existed.txt"))
	names, err = store.List(ctx, "sim-1")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemBlobStoreListsDirectChildrenOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemBlobStore()

	require.NoError(t, store.Upload(ctx, "sim-1/contract.pdf", []byte("x"), "application/pdf"))
	require.NoError(t, store.Upload(ctx, "sim-1/attachments/extra.pdf", []byte("x"), "application/pdf"))

	names, err := store.List(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"contract.pdf"}, names)

	names, err = store.List(ctx, "sim-1/attachments")
	require.NoError(t, err)
	assert.Equal(t, []string{"extra.pdf"}, names)
}

func TestMemBlobStoreUploadOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemBlobStore()

	require.NoError(t, store.Upload(ctx, "cust-1/proof.pdf", []byte("v1"), "application/pdf"))
	require.NoError(t, store.Upload(ctx, "cust-1/proof.pdf", []byte("v2"), "application/pdf"))

	data, _, ok := store.Get("cust-1/proof.pdf")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), data)
}

func TestStoresHonourCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemIdentityStore().Create(ctx, "x@example.com", "credential-x")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewMemRecordStore(nil).Insert(ctx, "t", Row{"id": 1})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewMemBlobStore().List(ctx, "p")
	assert.ErrorIs(t, err, context.Canceled)
}
