// Package scanner walks the scan root and decides which files need
// (re)hashing.
//
// The scanner is the single producer of the pipeline: one goroutine
// traverses the directory tree, compares each regular file against the
// fingerprint store and emits a work item for every new or changed file
// into a bounded queue. When hashing falls behind, the send blocks and the
// traversal suspends - that is the pipeline's backpressure.
//
// Per-path failures (permission denied, vanished files, broken entries)
// are logged and counted, never fatal. Symlinks are not followed, avoiding
// traversal cycles.
package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"

	"vidupe/internal/store"
	"vidupe/internal/types"
)

// readDirBatch bounds memory when listing directories with very many files.
const readDirBatch = 1000

// WorkItem is one file requiring (re)hashing, tagged with the scan
// generation that requested it.
type WorkItem struct {
	Record     types.FileRecord
	Generation uint64
}

// Stats carries live traversal counters. Atomic so the progress display can
// read them while the scan runs.
type Stats struct {
	Scanned   atomic.Int64 // regular files observed
	Unchanged atomic.Int64 // files skipped via size+mtime match
	Queued    atomic.Int64 // work items emitted
	Errors    atomic.Int64 // paths skipped due to errors
}

// Scanner produces work items for a single scan generation.
// Designed for single use: create with New, call Run once.
type Scanner struct {
	root  string
	store *store.Store
	log   zerolog.Logger

	// Stats is valid for reading at any time during Run.
	Stats Stats
}

// New creates a Scanner over root, consulting st for change detection.
func New(root string, st *store.Store, log zerolog.Logger) *Scanner {
	return &Scanner{root: root, store: st, log: log.With().Str("component", "scanner").Logger()}
}

// Run traverses the tree and sends one WorkItem per new or changed regular
// file into work. It returns the set of paths observed on disk, which the
// caller uses for pruning stale store entries. Run does not close work.
//
// The only terminal error is context cancellation; everything else is
// recorded and skipped.
func (s *Scanner) Run(ctx context.Context, generation uint64, work chan<- WorkItem) (map[string]struct{}, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}

	seen := make(map[string]struct{})
	if err := s.walk(ctx, root, generation, work, seen); err != nil {
		return seen, err
	}
	return seen, nil
}

// walk lists one directory and recurses into subdirectories. Uses batched
// ReadDir so huge directories do not balloon memory.
func (s *Scanner) walk(ctx context.Context, dir string, generation uint64, work chan<- WorkItem, seen map[string]struct{}) error {
	d, err := os.Open(dir)
	if err != nil {
		s.skip(dir, err)
		return nil
	}

	var subdirs []string
	for {
		entries, err := d.ReadDir(readDirBatch)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				s.skip(dir, err)
			}
			break
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				_ = d.Close()
				return ctx.Err()
			}
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				subdirs = append(subdirs, path)
				continue
			}
			// Symlinks, devices, sockets etc. are skipped.
			if !entry.Type().IsRegular() {
				continue
			}
			if err := s.visitFile(ctx, path, entry, generation, work, seen); err != nil {
				_ = d.Close()
				return err
			}
		}
	}
	_ = d.Close()

	for _, sub := range subdirs {
		if err := s.walk(ctx, sub, generation, work, seen); err != nil {
			return err
		}
	}
	return nil
}

// visitFile applies change detection to one regular file and emits a work
// item if its fingerprint must be (re)computed.
func (s *Scanner) visitFile(ctx context.Context, path string, entry os.DirEntry, generation uint64, work chan<- WorkItem, seen map[string]struct{}) error {
	info, err := entry.Info()
	if err != nil {
		// Stat race or permissions; the path stays out of the seen set so
		// a later clean-unfound pass treats it conservatively.
		s.skip(path, err)
		return nil
	}

	record := types.FileRecord{Path: path, Size: info.Size(), ModTime: info.ModTime()}
	seen[path] = struct{}{}
	s.Stats.Scanned.Add(1)

	prev, found, err := s.store.Get(path)
	if err != nil {
		// Unreadable entry: rehash rather than trust it.
		s.log.Warn().Err(err).Str("path", path).Msg("unreadable store entry, rehashing")
	} else if found && !record.Changed(prev.Record) {
		s.Stats.Unchanged.Add(1)
		return nil
	}

	select {
	case work <- WorkItem{Record: record, Generation: generation}:
		s.Stats.Queued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scanner) skip(path string, err error) {
	s.Stats.Errors.Add(1)
	s.log.Warn().Err(err).Str("path", path).Msg("skipping")
}
