package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/brainless/csvexplorer/internal/importer"
)

// ImportTask imports urls as one batch, reporting a unit of progress per URL.
// The job fails when any URL fails; per-URL outcomes are kept in the
// "batch" metadata key.
func ImportTask(imp *importer.Importer, urls []string, opts importer.Options, workers int) Task {
	return func(ctx context.Context, report ProgressCallback) (JobMetadata, error) {
		var done atomic.Int64
		total := int64(len(urls))
		report(JobProgress{Total: total, Message: "importing"})

		batch := imp.ImportBatchFunc(ctx, urls, opts, workers, func(o importer.Outcome) {
			n := done.Add(1)
			report(JobProgress{Current: n, Total: total, Message: o.URL})
		})
		report(JobProgress{Current: int64(len(batch.Outcomes)), Total: int64(len(batch.Outcomes)), Message: "done"})

		meta := JobMetadata{"batch": batch}
		if err := ctx.Err(); err != nil {
			return meta, err
		}
		if failed := batch.Failed(); failed > 0 {
			return meta, fmt.Errorf("%d of %d imports failed", failed, len(batch.Outcomes))
		}
		return meta, nil
	}
}
