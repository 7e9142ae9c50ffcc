// Package workflow defines the concrete sagas of the administration
// backend: registering an identified entity (user, customer, seller),
// promoting a simulation to an order, and uploading a document batch. Each
// workflow is an ordered step list handed to the unwind engine; the
// backends are reached only through the backend capability interfaces.
package workflow

import (
	"github.com/go-logr/logr"

	"github.com/voltfin/unwind/backend"
)

// Backends bundles the three capability interfaces a workflow may touch.
// Each field wraps one independently-failing real backend; there is no
// transaction spanning them, which is the whole reason these workflows run
// as sagas.
type Backends struct {
	Identity backend.IdentityStore
	Records  backend.RecordStore
	Blobs    backend.BlobStore
}

// Runner executes the package's workflows. One Runner can be shared across
// requests; each workflow invocation is an independent saga run.
type Runner struct {
	log logr.Logger
	b   Backends
}

// NewRunner creates a Runner over the given backends.
func NewRunner(log logr.Logger, b Backends) *Runner {
	return &Runner{log: log, b: b}
}
