package workflow

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/voltfin/unwind"
	"github.com/voltfin/unwind/backend"
)

// Step names of the registration saga.
const (
	StepPrecheckUnique     unwind.StepName = "precheck-unique"
	StepCreatePrincipal    unwind.StepName = "create-principal"
	StepInsertPrimaryRow   unwind.StepName = "insert-primary-row"
	StepInsertDependentRow unwind.StepName = "insert-dependent-row"
)

// Registration describes one identified-entity registration: an
// authenticated principal plus one or two dependent domain rows.
type Registration struct {
	// Email is the principal's natural key.
	Email string

	// Credential is the principal's initial credential.
	Credential string

	// Table is the primary domain table (e.g. "users").
	Table string

	// UniqueColumn is the natural-key column checked by the precheck.
	// Defaults to "email".
	UniqueColumn string

	// PrimaryRow builds the primary row from the created principal id. The
	// returned row's "id" column defaults to the principal id when unset,
	// keying the row to the principal.
	PrimaryRow func(id backend.PrincipalID) backend.Row

	// DependentTable, when non-empty, names the role-specific table (e.g.
	// "sellers") that receives a second row referencing the principal.
	DependentTable string

	// DependentRow builds the dependent row. Required iff DependentTable
	// is set.
	DependentRow func(id backend.PrincipalID) backend.Row

	// DependentOptional treats a dependent-row insert failure as a soft
	// warning: logged, but the principal and primary row are kept.
	DependentOptional bool
}

// Validate checks the registration input before any backend is touched.
func (r Registration) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Credential, validation.Required, validation.Length(8, 0)),
		validation.Field(&r.Table, validation.Required),
	)
	if err != nil {
		return err
	}
	if r.PrimaryRow == nil {
		return errors.New("registration: PrimaryRow is required")
	}
	if (r.DependentTable == "") != (r.DependentRow == nil) {
		return errors.New("registration: DependentTable and DependentRow must be set together")
	}
	return nil
}

// RegistrationState is the saga-local state of one registration run.
type RegistrationState struct {
	PrincipalID backend.PrincipalID
	Primary     backend.Row
	Dependent   backend.Row
}

// Register creates the principal and its domain rows atomically: if any
// step fails, everything created before it is deleted again.
//
// A natural-key collision, whether caught by the precheck or by the
// store's own uniqueness constraint losing the race after it, surfaces as
// unwind.ErrConflict.
func (r *Runner) Register(ctx context.Context, reg Registration) (*RegistrationState, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if reg.UniqueColumn == "" {
		reg.UniqueColumn = "email"
	}

	state := &RegistrationState{}
	steps := r.registrationSteps(reg)

	engine := unwind.NewEngine[*RegistrationState](r.log.WithValues("workflow", "register", "table", reg.Table))
	if _, err := engine.Run(ctx, steps, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (r *Runner) registrationSteps(reg Registration) []unwind.Step[*RegistrationState] {
	b := r.b

	precheck := unwind.NewReadOnlyStep(StepPrecheckUnique,
		func(ctx context.Context, rc *unwind.RunContext[*RegistrationState]) (unwind.StepOutput, error) {
			_, err := b.Records.FindOne(ctx, reg.Table, backend.Row{reg.UniqueColumn: reg.Email})
			if err == nil {
				return nil, fmt.Errorf("%s %q: %w", reg.UniqueColumn, reg.Email, unwind.ErrConflict)
			}
			if errors.Is(err, unwind.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		})

	createPrincipal := unwind.NewStep(StepCreatePrincipal,
		func(ctx context.Context, rc *unwind.RunContext[*RegistrationState]) (unwind.StepOutput, error) {
			id, err := b.Identity.Create(ctx, reg.Email, reg.Credential)
			if err != nil {
				return nil, err
			}
			rc.Params.PrincipalID = id
			return id, nil
		},
		func(ctx context.Context, rc *unwind.RunContext[*RegistrationState], output unwind.StepOutput) error {
			id, ok := output.(backend.PrincipalID)
			if !ok {
				return fmt.Errorf("unexpected output %T for %s", output, StepCreatePrincipal)
			}
			return b.Identity.Delete(ctx, id)
		})

	insertPrimary := unwind.NewStep(StepInsertPrimaryRow,
		func(ctx context.Context, rc *unwind.RunContext[*RegistrationState]) (unwind.StepOutput, error) {
			row := reg.PrimaryRow(rc.Params.PrincipalID)
			if _, ok := row["id"]; !ok {
				row = row.Clone()
				row["id"] = rc.Params.PrincipalID.String()
			}
			stored, err := b.Records.Insert(ctx, reg.Table, row)
			if err != nil {
				return nil, err
			}
			rc.Params.Primary = stored
			return stored, nil
		},
		func(ctx context.Context, rc *unwind.RunContext[*RegistrationState], output unwind.StepOutput) error {
			row, ok := output.(backend.Row)
			if !ok {
				return fmt.Errorf("unexpected output %T for %s", output, StepInsertPrimaryRow)
			}
			return b.Records.Delete(ctx, reg.Table, row["id"])
		})

	steps := []unwind.Step[*RegistrationState]{precheck, createPrincipal, insertPrimary}

	if reg.DependentTable != "" {
		// Last step: no compensation needed, a failure here is undone by
		// the engine rolling back the principal and the primary row.
		insertDependent := unwind.NewReadOnlyStep(StepInsertDependentRow,
			func(ctx context.Context, rc *unwind.RunContext[*RegistrationState]) (unwind.StepOutput, error) {
				stored, err := b.Records.Insert(ctx, reg.DependentTable, reg.DependentRow(rc.Params.PrincipalID))
				if err != nil {
					return nil, err
				}
				rc.Params.Dependent = stored
				return stored, nil
			})
		if reg.DependentOptional {
			insertDependent = insertDependent.AsNonCritical()
		}
		steps = append(steps, insertDependent)
	}

	return steps
}
