// Package engine orchestrates the fingerprinting pipeline and exposes the
// query and mutation interfaces consumed by review frontends.
//
// Pipeline topology for one scan generation:
//
//	scanner (1 goroutine) -> bounded work queue -> worker pool (T goroutines)
//	    -> bounded results queue -> store writer (1 goroutine, owns commits)
//
// Duplicate grouping only ever runs against a fully drained store snapshot,
// never against a scan in flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"vidupe/internal/config"
	"vidupe/internal/grouper"
	"vidupe/internal/hasher"
	"vidupe/internal/progress"
	"vidupe/internal/scanner"
	"vidupe/internal/store"
	"vidupe/internal/types"
)

// Engine owns one fingerprint store and runs scans against it.
type Engine struct {
	cfg   config.Config
	store *store.Store
	log   zerolog.Logger
}

// New wires an engine over an opened store. The config must be validated.
func New(cfg config.Config, st *store.Store, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, store: st, log: log.With().Str("component", "engine").Logger()}
}

// Scan runs one full generation: traversal, hashing, batched persistence
// and (optionally) pruning of entries for files no longer on disk.
//
// Per-file errors are counted in the summary and never abort the scan. A
// store commit failure is fatal: fingerprint data would otherwise be lost
// silently. Cancellation abandons in-flight work; the batches already
// flushed stay usable for the next scan's change detection.
func (e *Engine) Scan(ctx context.Context, showProgress bool) (*Summary, error) {
	generation, err := e.store.NextGeneration()
	if err != nil {
		return nil, err
	}
	e.log.Info().Uint64("generation", generation).Str("root", e.cfg.Path).Msg("scan started")

	queueDepth := 2 * e.cfg.Threads
	work := make(chan scanner.WorkItem, queueDepth)
	results := make(chan *types.FingerprintEntry, queueDepth)

	scan := scanner.New(e.cfg.Path, e.store, e.log)
	pool := hasher.New(e.cfg.Threads, e.cfg.VideoHash, e.cfg.SampleFrames, e.log)

	// Single flush owner: the only goroutine that commits to the store.
	// After a commit failure it keeps draining so the workers never block
	// on a dead pipeline, then surfaces the error.
	writerDone := make(chan error, 1)
	go func() {
		writer := e.store.NewWriter(e.cfg.CommitBatchSize)
		var werr error
		for entry := range results {
			if werr != nil {
				continue
			}
			werr = writer.Add(entry)
		}
		if werr == nil {
			werr = writer.Flush()
		}
		writerDone <- werr
	}()

	// Producer. The work channel closes when traversal finishes, cancelled
	// or not, so the pool always drains and terminates.
	var seen map[string]struct{}
	var scanErr error
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		defer close(work)
		seen, scanErr = scan.Run(ctx, generation, work)
	}()

	start := time.Now()
	view := &statsView{scan: &scan.Stats, hash: &pool.Stats, start: start}
	spinner := progress.New(showProgress)
	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				spinner.Describe(view)
			case <-tickerDone:
				return
			}
		}
	}()

	pool.Run(ctx, work, results)
	close(results)
	writeErr := <-writerDone
	<-scanDone
	close(tickerDone)
	spinner.Finish(view)

	if writeErr != nil {
		return nil, fmt.Errorf("store commit failed: %w", writeErr)
	}
	if scanErr != nil {
		return nil, scanErr
	}

	summary := &Summary{
		Generation:   generation,
		Scanned:      scan.Stats.Scanned.Load(),
		Unchanged:    scan.Stats.Unchanged.Load(),
		SkippedPaths: scan.Stats.Errors.Load(),
		Hashed:       pool.Stats.Hashed.Load(),
		HashedBytes:  pool.Stats.HashedBytes.Load(),
		ContentOnly:  pool.Stats.ContentOnly.Load(),
		Failed:       pool.Stats.Failed.Load(),
		Duration:     time.Since(start),
	}

	if e.cfg.CleanUnfound {
		pruned, err := e.pruneUnfound(seen)
		if err != nil {
			return nil, err
		}
		summary.Pruned = int64(pruned)
	}

	e.log.Info().
		Int64("hashed", summary.Hashed).
		Int64("unchanged", summary.Unchanged).
		Int64("failed", summary.Failed).
		Int64("pruned", summary.Pruned).
		Dur("elapsed", summary.Duration).
		Msg("scan finished")
	return summary, nil
}

// pruneUnfound removes store entries whose paths were not observed during
// this generation's traversal.
func (e *Engine) pruneUnfound(seen map[string]struct{}) (int, error) {
	var stale []string
	err := e.store.ForEach(func(entry *types.FingerprintEntry) error {
		if _, ok := seen[entry.Record.Path]; !ok {
			stale = append(stale, entry.Record.Path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, p := range stale {
		e.log.Info().Str("path", p).Msg("pruning unfound entry")
	}
	return e.store.Prune(stale)
}

// Groups recomputes duplicate groups from the store's current contents.
// With near set, perceptual near-duplicate groups are included next to the
// exact ones.
func (e *Engine) Groups(near bool) ([]types.DuplicateGroup, error) {
	var entries []*types.FingerprintEntry
	err := e.store.ForEach(func(entry *types.FingerprintEntry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grouper.Groups(entries, grouper.Options{
		Near:      near,
		Threshold: e.cfg.SimilarityThreshold,
	}), nil
}

// FileRecord returns the stored record for path, if any.
func (e *Engine) FileRecord(path string) (types.FileRecord, bool, error) {
	entry, found, err := e.store.Get(path)
	if err != nil || !found {
		return types.FileRecord{}, false, err
	}
	return entry.Record, true, nil
}

// Delete removes the file from disk and its entry from the store, keeping
// subsequent group computations consistent without a rescan.
func (e *Engine) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	if err := e.store.DeletePath(path); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	e.log.Info().Str("path", path).Msg("deleted")
	return nil
}

// Rename moves the file on disk and re-keys its store entry.
func (e *Engine) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}
	if err := e.store.RenamePath(oldPath, newPath); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	e.log.Info().Str("from", oldPath).Str("to", newPath).Msg("renamed")
	return nil
}
