package workflow

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/voltfin/unwind/backend"
)

// FetchNamedRows reads several independent lookup rows concurrently, e.g.
// the named rate values needed to build an insert payload. Plain fan-out /
// fan-in with no shared mutable state and no compensation; this is not a
// saga, just a read helper used before one starts.
//
// Rows are matched by keyColumn; a missing name fails the whole fetch with
// unwind.ErrNotFound.
func FetchNamedRows(ctx context.Context, records backend.RecordStore, table, keyColumn string, names []string) (map[string]backend.Row, error) {
	results := make([]backend.Row, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			row, err := records.FindOne(ctx, table, backend.Row{keyColumn: name})
			if err != nil {
				return err
			}
			results[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]backend.Row, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}
