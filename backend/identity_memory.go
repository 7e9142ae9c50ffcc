package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/voltfin/unwind"
)

type memPrincipal struct {
	ID             PrincipalID
	Email          string
	CredentialHash []byte
}

// MemIdentityStore is an in-memory IdentityStore for scenarios where a real
// identity provider is not wired in, and for tests.
type MemIdentityStore struct {
	principals *xsync.MapOf[PrincipalID, memPrincipal]
}

// NewMemIdentityStore creates an empty in-memory identity store.
func NewMemIdentityStore() *MemIdentityStore {
	return &MemIdentityStore{
		principals: xsync.NewMapOf[PrincipalID, memPrincipal](),
	}
}

// Create registers a principal, hashing the credential. Registering the
// same email twice is unwind.ErrConflict.
func (s *MemIdentityStore) Create(ctx context.Context, email, credential string) (PrincipalID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	var conflict bool
	s.principals.Range(func(_ PrincipalID, p memPrincipal) bool {
		if p.Email == email {
			conflict = true
			return false
		}
		return true
	})
	if conflict {
		return "", fmt.Errorf("principal %q: %w", email, unwind.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", unwind.AdapterFailed("hash credential", err)
	}

	id := PrincipalID(uuid.NewString())
	s.principals.Store(id, memPrincipal{ID: id, Email: email, CredentialHash: hash})
	return id, nil
}

// Delete removes the principal by id.
func (s *MemIdentityStore) Delete(ctx context.Context, id PrincipalID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.principals.LoadAndDelete(id); !ok {
		return fmt.Errorf("principal %q: %w", id, unwind.ErrNotFound)
	}
	return nil
}

// Verify checks a credential against the stored hash. Not part of the
// IdentityStore interface; sagas only create and delete principals, but
// callers exercising the store directly need a way to authenticate.
func (s *MemIdentityStore) Verify(ctx context.Context, email, credential string) (PrincipalID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	var found *memPrincipal
	s.principals.Range(func(_ PrincipalID, p memPrincipal) bool {
		if p.Email == email {
			found = &p
			return false
		}
		return true
	})
	if found == nil {
		return "", fmt.Errorf("principal %q: %w", email, unwind.ErrNotFound)
	}
	if err := bcrypt.CompareHashAndPassword(found.CredentialHash, []byte(credential)); err != nil {
		return "", fmt.Errorf("principal %q: bad credential: %w", email, unwind.ErrNotFound)
	}
	return found.ID, nil
}

// Len reports the number of stored principals.
func (s *MemIdentityStore) Len() int {
	return s.principals.Size()
}
