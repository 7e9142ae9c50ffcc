package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltfin/unwind"
	"github.com/voltfin/unwind/backend"
)

func sellerRegistration(email string) Registration {
	return Registration{
		Email:      email,
		Credential: "initial-credential",
		Table:      "users",
		PrimaryRow: func(id backend.PrincipalID) backend.Row {
			return backend.Row{"email": email, "role": "seller"}
		},
		DependentTable: "sellers",
		DependentRow: func(id backend.PrincipalID) backend.Row {
			return backend.Row{"id": id.String(), "commission": 0.05}
		},
	}
}

func TestRegisterCreatesPrincipalAndRows(t *testing.T) {
	env := newTestEnv(map[string][]string{"users": {"email"}})
	runner := newTestRunner(t, env.backends())

	state, err := runner.Register(context.Background(), sellerRegistration("ana@example.com"))
	require.NoError(t, err)

	assert.NotEmpty(t, state.PrincipalID)
	assert.Equal(t, 1, env.identity.Len())
	assert.Equal(t, 1, env.records.Count("users"))
	assert.Equal(t, 1, env.records.Count("sellers"))

	// The primary row is keyed by the principal id.
	assert.Equal(t, state.PrincipalID.String(), state.Primary["id"])
	assert.Equal(t, state.PrincipalID.String(), state.Dependent["id"])
}

// Scenario: the dependent insert fails after the principal and the primary
// row were created. Everything must be rolled back.
func TestRegisterDependentFailureRollsBackEverything(t *testing.T) {
	env := newTestEnv(map[string][]string{"users": {"email"}})
	b := env.backends()
	b.Records = &flakyRecords{
		RecordStore:     env.records,
		failInsertTable: "sellers",
		insertErr:       unwind.AdapterFailed("insert sellers", errors.New("disk full")),
	}
	runner := newTestRunner(t, b)

	_, err := runner.Register(context.Background(), sellerRegistration("ana@example.com"))
	require.Error(t, err)

	var sagaErr *unwind.SagaError
	require.ErrorAs(t, err, &sagaErr)
	assert.Equal(t, StepInsertDependentRow, sagaErr.Result.FailedStep)
	assert.Equal(t, unwind.CompensationComplete, sagaErr.Result.Compensation)

	// Pre-operation state restored on every backend.
	assert.Equal(t, 0, env.identity.Len())
	assert.Equal(t, 0, env.records.Count("users"))
	assert.Equal(t, 0, env.records.Count("sellers"))
}

// Scenario: the email is already present. The saga must fail at the
// precheck with a conflict, before any adapter beyond the record store is
// touched.
func TestRegisterExistingEmailFailsAtPrecheck(t *testing.T) {
	env := newTestEnv(map[string][]string{"users": {"email"}})
	_, err := env.records.Insert(context.Background(), "users",
		backend.Row{"id": "existing", "email": "ana@example.com"})
	require.NoError(t, err)

	identity := &countingIdentity{MemIdentityStore: env.identity}
	b := env.backends()
	b.Identity = identity
	runner := newTestRunner(t, b)

	_, err = runner.Register(context.Background(), sellerRegistration("ana@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, unwind.ErrConflict)
	assert.Equal(t, "this already exists", unwind.UserMessage(err))

	var sagaErr *unwind.SagaError
	require.ErrorAs(t, err, &sagaErr)
	assert.Equal(t, StepPrecheckUnique, sagaErr.Result.FailedStep)
	assert.Equal(t, unwind.CompensationNotApplicable, sagaErr.Result.Compensation)

	assert.Zero(t, identity.creates, "identity subsystem must not be touched after a precheck conflict")
	assert.Equal(t, 1, env.records.Count("users"), "only the pre-existing row remains")
}

// The precheck race: a concurrent registration wins between the precheck
// and the insert. The duplicate-key violation from the store must classify
// exactly like the precheck conflict, and the principal must be deleted.
func TestRegisterDuplicateKeyRaceClassifiesAsConflict(t *testing.T) {
	env := newTestEnv(map[string][]string{"users": {"email"}})
	b := env.backends()
	b.Records = &racingRecords{RecordStore: env.records, email: "ana@example.com"}
	runner := newTestRunner(t, b)

	_, err := runner.Register(context.Background(), sellerRegistration("ana@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, unwind.ErrConflict, "race-window conflict must classify like a precheck conflict")
	assert.Equal(t, "this already exists", unwind.UserMessage(err))

	var sagaErr *unwind.SagaError
	require.ErrorAs(t, err, &sagaErr)
	assert.Equal(t, StepInsertPrimaryRow, sagaErr.Result.FailedStep)
	assert.Equal(t, unwind.CompensationComplete, sagaErr.Result.Compensation)
	assert.Equal(t, 0, env.identity.Len(), "principal must be rolled back")
}

// racingRecords simulates a registration that sneaks in between the
// precheck and the primary insert.
type racingRecords struct {
	backend.RecordStore
	email    string
	precheck bool
}

func (r *racingRecords) FindOne(ctx context.Context, table string, where backend.Row) (backend.Row, error) {
	row, err := r.RecordStore.FindOne(ctx, table, where)
	if !r.precheck {
		r.precheck = true
		// Winner inserts right after the loser's precheck came back empty.
		if _, insErr := r.RecordStore.Insert(ctx, "users", backend.Row{"id": "winner", "email": r.email}); insErr != nil {
			return nil, insErr
		}
	}
	return row, err
}

func TestRegisterOptionalDependentFailureIsTolerated(t *testing.T) {
	env := newTestEnv(map[string][]string{"users": {"email"}})
	b := env.backends()
	b.Records = &flakyRecords{
		RecordStore:     env.records,
		failInsertTable: "sellers",
		insertErr:       unwind.AdapterFailed("insert sellers", errors.New("disk full")),
	}
	runner := newTestRunner(t, b)

	reg := sellerRegistration("ana@example.com")
	reg.DependentOptional = true

	state, err := runner.Register(context.Background(), reg)
	require.NoError(t, err, "an optional dependent insert failure must not fail the registration")
	assert.NotEmpty(t, state.PrincipalID)
	assert.Equal(t, 1, env.identity.Len())
	assert.Equal(t, 1, env.records.Count("users"))
	assert.Equal(t, 0, env.records.Count("sellers"))
	assert.Nil(t, state.Dependent)
}

func TestRegisterWithoutDependentTable(t *testing.T) {
	env := newTestEnv(map[string][]string{"users": {"email"}})
	runner := newTestRunner(t, env.backends())

	reg := Registration{
		Email:      "bob@example.com",
		Credential: "initial-credential",
		Table:      "users",
		PrimaryRow: func(id backend.PrincipalID) backend.Row {
			return backend.Row{"email": "bob@example.com"}
		},
	}
	state, err := runner.Register(context.Background(), reg)
	require.NoError(t, err)
	assert.NotEmpty(t, state.PrincipalID)
	assert.Equal(t, 1, env.records.Count("users"))
}

func TestRegisterValidation(t *testing.T) {
	runner := newTestRunner(t, newTestEnv(nil).backends())
	ctx := context.Background()

	cases := []struct {
		name string
		mut  func(*Registration)
	}{
		{"bad email", func(r *Registration) { r.Email = "not-an-email" }},
		{"short credential", func(r *Registration) { r.Credential = "short" }},
		{"missing table", func(r *Registration) { r.Table = "" }},
		{"missing primary row", func(r *Registration) { r.PrimaryRow = nil }},
		{"dependent table without row", func(r *Registration) { r.DependentRow = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := sellerRegistration("ana@example.com")
			tc.mut(&reg)
			_, err := runner.Register(ctx, reg)
			require.Error(t, err, fmt.Sprintf("case %q must be rejected", tc.name))
		})
	}
}
