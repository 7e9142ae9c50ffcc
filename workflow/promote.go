package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/voltfin/unwind"
	"github.com/voltfin/unwind/backend"
)

// Step names of the promotion saga.
const (
	StepLoadSource      unwind.StepName = "load-source"
	StepInsertTarget    unwind.StepName = "insert-target"
	StepListSourceFiles unwind.StepName = "list-source-files"
	StepCopyFiles       unwind.StepName = "copy-files"
)

// Promotion materializes a new aggregate row from an existing one and
// copies every file under the source's storage prefix to the new row's
// prefix. Either the target row and all files exist, or neither remains.
type Promotion struct {
	// SourceTable and SourceID identify the row being promoted (e.g. a
	// simulation).
	SourceTable string
	SourceID    any

	// TargetTable receives the new row (e.g. "orders").
	TargetTable string

	// Transform builds the target row from the source row, typically
	// copying relevant fields and setting the initial status. The returned
	// row must carry the new row's "id".
	Transform func(source backend.Row) backend.Row

	// SourcePrefix and TargetPrefix derive the storage prefixes from the
	// respective row ids. Default to fmt.Sprint of the id.
	SourcePrefix func(sourceID any) string
	TargetPrefix func(targetID any) string
}

// Validate checks the promotion input.
func (p Promotion) Validate() error {
	switch {
	case p.SourceTable == "":
		return errors.New("promotion: SourceTable is required")
	case p.SourceID == nil:
		return errors.New("promotion: SourceID is required")
	case p.TargetTable == "":
		return errors.New("promotion: TargetTable is required")
	case p.Transform == nil:
		return errors.New("promotion: Transform is required")
	}
	return nil
}

// PromotionState is the saga-local state of one promotion run.
type PromotionState struct {
	Source   backend.Row
	Target   backend.Row
	TargetID any

	// Copied tracks every object successfully copied to the target prefix,
	// so rollback removes exactly what this run added, and only from the
	// target prefix, never the source.
	Copied []string
}

// Promote runs the promotion saga. A failure partway through file copying
// leaves zero objects under the target prefix and no target row.
func (r *Runner) Promote(ctx context.Context, p Promotion) (*PromotionState, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.SourcePrefix == nil {
		p.SourcePrefix = func(id any) string { return fmt.Sprint(id) }
	}
	if p.TargetPrefix == nil {
		p.TargetPrefix = func(id any) string { return fmt.Sprint(id) }
	}

	state := &PromotionState{}
	steps := r.promotionSteps(p)

	engine := unwind.NewEngine[*PromotionState](r.log.WithValues(
		"workflow", "promote", "source", p.SourceTable, "target", p.TargetTable))
	if _, err := engine.Run(ctx, steps, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (r *Runner) promotionSteps(p Promotion) []unwind.Step[*PromotionState] {
	b := r.b

	loadSource := unwind.NewReadOnlyStep(StepLoadSource,
		func(ctx context.Context, rc *unwind.RunContext[*PromotionState]) (unwind.StepOutput, error) {
			row, err := b.Records.FindOne(ctx, p.SourceTable, backend.Row{"id": p.SourceID})
			if err != nil {
				return nil, err
			}
			rc.Params.Source = row
			return row, nil
		})

	// The target row is inserted before any file copy so the destination
	// prefix, keyed by the new row id, is known up front.
	insertTarget := unwind.NewStep(StepInsertTarget,
		func(ctx context.Context, rc *unwind.RunContext[*PromotionState]) (unwind.StepOutput, error) {
			row := p.Transform(rc.Params.Source)
			stored, err := b.Records.Insert(ctx, p.TargetTable, row)
			if err != nil {
				return nil, err
			}
			rc.Params.Target = stored
			rc.Params.TargetID = stored["id"]
			return stored, nil
		},
		func(ctx context.Context, rc *unwind.RunContext[*PromotionState], output unwind.StepOutput) error {
			row, ok := output.(backend.Row)
			if !ok {
				return fmt.Errorf("unexpected output %T for %s", output, StepInsertTarget)
			}
			return b.Records.Delete(ctx, p.TargetTable, row["id"])
		})

	listFiles := unwind.NewReadOnlyStep(StepListSourceFiles,
		func(ctx context.Context, rc *unwind.RunContext[*PromotionState]) (unwind.StepOutput, error) {
			return b.Blobs.List(ctx, p.SourcePrefix(p.SourceID))
		})

	copyFiles := unwind.NewStep(StepCopyFiles,
		func(ctx context.Context, rc *unwind.RunContext[*PromotionState]) (unwind.StepOutput, error) {
			names, _ := unwind.LookupAs[[]string](rc, StepListSourceFiles)
			srcPrefix := p.SourcePrefix(p.SourceID)
			dstPrefix := p.TargetPrefix(rc.Params.TargetID)

			for _, name := range names {
				if err := b.Blobs.Copy(ctx, path.Join(srcPrefix, name), path.Join(dstPrefix, name)); err != nil {
					// Partial copy: remove exactly the objects this run
					// added before reporting the failure, so the engine's
					// outer rollback only has the target row left to undo.
					if rmErr := removeCopied(ctx, b.Blobs, dstPrefix, rc.Params.Copied); rmErr != nil {
						err = errors.Join(err, rmErr)
					}
					return nil, unwind.AdapterFailed("copy "+name, err)
				}
				rc.Params.Copied = append(rc.Params.Copied, name)
			}
			return append([]string(nil), rc.Params.Copied...), nil
		},
		func(ctx context.Context, rc *unwind.RunContext[*PromotionState], output unwind.StepOutput) error {
			copied, ok := output.([]string)
			if !ok {
				return fmt.Errorf("unexpected output %T for %s", output, StepCopyFiles)
			}
			return removeCopied(ctx, b.Blobs, p.TargetPrefix(rc.Params.TargetID), copied)
		})

	return []unwind.Step[*PromotionState]{loadSource, insertTarget, listFiles, copyFiles}
}

func removeCopied(ctx context.Context, blobs backend.BlobStore, prefix string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = path.Join(prefix, name)
	}
	return blobs.Remove(ctx, paths...)
}
