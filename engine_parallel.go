package ppindex

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/ppindex/internal/store"
)

// commitBatchSize bounds how many units share one write transaction.
const commitBatchSize = 32

// IndexUnitsParallel indexes units using a three-phase pipeline:
//
//	Phase A (serial):   Read units, fingerprint check, mint file ids.
//	Phase B (parallel): Preprocess and collect on a bounded worker pool.
//	Phase C (serial):   Commit batches to SQLite.
func (e *Engine) IndexUnitsParallel(ctx context.Context, paths []string) error {
	var errs []error

	// ---- Phase A: Serial unit preparation ----
	var items []unitItem
	root := e.usrRoot()
	for _, path := range paths {
		item, skip, err := e.prepareUnit(path, root)
		if err != nil {
			e.logger.Warn("index.unit_failed", "unit", path, "err", err)
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			e.reportProgress(path)
			continue
		}
		if skip {
			e.reportProgress(path)
			continue
		}
		items = append(items, item)
	}

	if len(items) > 0 {
		errs = append(errs, e.runPipeline(ctx, items)...)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) runPipeline(ctx context.Context, items []unitItem) []error {
	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(min(workers, len(items)), 1)

	// ---- Phase B: Parallel preprocessing ----
	outcomes := make(chan unitOutcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	go func() {
		for _, item := range items {
			g.Go(func() error {
				// A failing unit must not cancel its siblings, so errors travel
				// on the channel instead of through the group.
				outcomes <- e.preprocessUnit(gctx, item)
				return nil
			})
		}
		g.Wait()
		close(outcomes)
	}()

	// ---- Phase C: Serial commit ----
	var errs []error
	batch := store.NewBatchedStore(e.store, commitBatchSize)
	var pending []string
	flushed := func(ids []int64, err error) {
		if err != nil {
			for _, p := range pending {
				e.logger.Warn("index.unit_failed", "unit", p, "err", err)
				errs = append(errs, fmt.Errorf("commit %s: %w", p, err))
			}
		}
		if err != nil || ids != nil {
			for _, p := range pending {
				e.reportProgress(p)
			}
			pending = pending[:0]
		}
	}
	for out := range outcomes {
		if out.err != nil {
			e.logger.Warn("index.unit_failed", "unit", out.item.path, "err", out.err)
			errs = append(errs, fmt.Errorf("index %s: %w", out.item.path, out.err))
			e.reportProgress(out.item.path)
			continue
		}
		pending = append(pending, out.item.path)
		flushed(batch.Add(out.commit))
	}
	flushed(batch.Flush())
	return errs
}
