package importer

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

// Outcome is the result of one URL within a batch.
type Outcome struct {
	URL    string  `json:"url"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
	Error  string  `json:"error,omitempty"`
}

// BatchResult collects the outcomes of ImportBatch in input order, one per
// distinct URL.
type BatchResult struct {
	ID       string    `json:"id"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failed returns the number of outcomes that carry an error.
func (b *BatchResult) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// ImportBatch imports distinct URLs concurrently on at most workers
// goroutines. A URL repeated in urls is imported once. A failure of one URL
// does not stop the others; only ctx cancellation does.
func (i *Importer) ImportBatch(ctx context.Context, urls []string, opts Options, workers int) *BatchResult {
	return i.ImportBatchFunc(ctx, urls, opts, workers, nil)
}

// ImportBatchFunc is ImportBatch with a callback invoked once per finished
// URL. onOutcome may be called from several goroutines at once.
func (i *Importer) ImportBatchFunc(ctx context.Context, urls []string, opts Options, workers int, onOutcome func(Outcome)) *BatchResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	batch := &BatchResult{ID: uuid.New().String()}
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		batch.Outcomes = append(batch.Outcomes, Outcome{URL: u})
	}

	logger := i.logger.WithFields(logrus.Fields{"batch": batch.ID, "urls": len(batch.Outcomes)})
	logger.Info("Starting batch import")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for n := range batch.Outcomes {
		out := &batch.Outcomes[n]
		g.Go(func() error {
			if onOutcome != nil {
				defer func() { onOutcome(*out) }()
			}
			if err := gctx.Err(); err != nil {
				out.Err = err
				out.Error = err.Error()
				return nil
			}
			res, err := i.ImportFromURL(gctx, out.URL, opts)
			out.Result = res
			if err != nil {
				out.Err = err
				out.Error = err.Error()
				logger.WithField("url", out.URL).WithError(err).Warn("Import failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.WithField("failed", batch.Failed()).Info("Batch import finished")
	return batch
}
