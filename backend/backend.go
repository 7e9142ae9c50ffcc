// Package backend defines the three capability interfaces the saga
// workflows run against: an identity subsystem, a relational record store
// and a blob store. Each wraps one independently-failing real backend.
//
// Implementations classify raw backend failures into the unwind error
// taxonomy (unwind.ErrConflict, unwind.ErrNotFound, unwind.AdapterFailed)
// before returning them, and never panic.
package backend

import "context"

// PrincipalID identifies an authenticated principal in the identity
// subsystem, distinct from the application's own domain rows.
type PrincipalID string

// String returns the string representation of the PrincipalID.
func (id PrincipalID) String() string {
	return string(id)
}

// Row is a record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IdentityStore creates and deletes authenticated principals.
type IdentityStore interface {
	// Create registers a principal for email with the given credential and
	// returns its id. A principal already registered under email is
	// reported as unwind.ErrConflict.
	Create(ctx context.Context, email, credential string) (PrincipalID, error)

	// Delete removes the principal. A missing principal is reported as
	// unwind.ErrNotFound.
	Delete(ctx context.Context, id PrincipalID) error
}

// RecordStore inserts, reads, updates and deletes rows. No cross-backend
// transactions are available; uniqueness relies on the store's own
// constraints.
type RecordStore interface {
	// FindOne returns the first row of table matching every column in
	// where. Absence is reported as unwind.ErrNotFound.
	FindOne(ctx context.Context, table string, where Row) (Row, error)

	// Insert adds row to table and returns the stored row. A duplicate-key
	// constraint violation is reported as unwind.ErrConflict.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update applies patch to the row of table identified by id.
	Update(ctx context.Context, table string, id any, patch Row) error

	// Delete removes the row of table identified by id.
	Delete(ctx context.Context, table string, id any) error
}

// BlobStore manages objects under per-entity path prefixes.
type BlobStore interface {
	// List returns the object names directly under prefix, relative to it.
	// A prefix with no objects yields an empty slice, not an error.
	List(ctx context.Context, prefix string) ([]string, error)

	// Copy duplicates the object at from to the path to.
	Copy(ctx context.Context, from, to string) error

	// Upload writes data to path, overwriting any existing object.
	Upload(ctx context.Context, path string, data []byte, contentType string) error

	// Remove deletes the named objects. Missing objects are ignored.
	Remove(ctx context.Context, paths ...string) error
}
