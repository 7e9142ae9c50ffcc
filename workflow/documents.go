package workflow

import (
	"context"
	"errors"
	"path"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/voltfin/unwind"
)

// StepUploadDocuments is the single step of the document-batch saga.
const StepUploadDocuments unwind.StepName = "upload-documents"

// Document is one named file of a batch, stored as {entityID}/{Field}.
type Document struct {
	Field       string
	Data        []byte
	ContentType string
}

// DocumentBatch is a set of named documents destined for one entity's
// storage prefix. Uploads overwrite existing objects of the same name, so
// a batch can refresh documents uploaded earlier; rollback of a failed
// batch only removes objects this batch wrote.
type DocumentBatch struct {
	EntityID  string
	Documents []Document
}

// Validate checks the batch input.
func (b DocumentBatch) Validate() error {
	err := validation.ValidateStruct(&b,
		validation.Field(&b.EntityID, validation.Required),
		validation.Field(&b.Documents, validation.Required),
	)
	if err != nil {
		return err
	}
	for _, d := range b.Documents {
		if d.Field == "" {
			return errors.New("document batch: every document needs a field name")
		}
		if len(d.Data) == 0 {
			return errors.New("document batch: document " + d.Field + " is empty")
		}
	}
	return nil
}

// UploadDocuments uploads the batch to the entity's prefix. A failure
// partway through removes every object uploaded by this batch before the
// error is returned, leaving pre-existing documents from earlier batches
// untouched.
//
// The saga is a single internally-iterative step: sub-failures are handled
// the same way throughout, so there is no inter-document rollback boundary
// for the engine to manage, and the cleanup runs inline.
func (r *Runner) UploadDocuments(ctx context.Context, batch DocumentBatch) ([]string, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	blobs := r.b.Blobs
	step := unwind.NewReadOnlyStep(StepUploadDocuments,
		func(ctx context.Context, rc *unwind.RunContext[*DocumentBatch]) (unwind.StepOutput, error) {
			uploaded := make([]string, 0, len(batch.Documents))
			for _, doc := range batch.Documents {
				target := path.Join(batch.EntityID, doc.Field)
				if err := blobs.Upload(ctx, target, doc.Data, doc.ContentType); err != nil {
					err = unwind.AdapterFailed("upload "+doc.Field, err)
					if rmErr := blobs.Remove(context.WithoutCancel(ctx), uploaded...); rmErr != nil {
						err = errors.Join(err, rmErr)
					}
					return nil, err
				}
				uploaded = append(uploaded, target)
			}
			return uploaded, nil
		})

	engine := unwind.NewEngine[*DocumentBatch](r.log.WithValues("workflow", "upload-documents", "entity", batch.EntityID))
	res, err := engine.Run(ctx, []unwind.Step[*DocumentBatch]{step}, &batch)
	if err != nil {
		return nil, err
	}
	uploaded, _ := res.Output.([]string)
	return uploaded, nil
}
