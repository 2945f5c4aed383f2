package store

import "vidupe/internal/types"

// Writer is the batching layer between hash workers and the database.
//
// A single goroutine owns a Writer; entries are buffered and flushed every
// batchSize adds or on Flush, whichever comes first. A crash between
// flushes loses only the unflushed batch: the next scan re-detects those
// files as missing from the store and rehashes them, so duplicate-group
// correctness is preserved at the cost of redundant hashing work.
type Writer struct {
	store     *Store
	batchSize int
	buf       []*types.FingerprintEntry
	written   int
}

// NewWriter creates a batching writer flushing every batchSize entries.
func (s *Store) NewWriter(batchSize int) *Writer {
	return &Writer{
		store:     s,
		batchSize: batchSize,
		buf:       make([]*types.FingerprintEntry, 0, batchSize),
	}
}

// Add buffers an entry, flushing if the batch is full. A flush failure is a
// store-level durability error: the caller must abort the scan.
func (w *Writer) Add(e *types.FingerprintEntry) error {
	w.buf = append(w.buf, e)
	if len(w.buf) < w.batchSize {
		return nil
	}
	return w.Flush()
}

// Flush commits any buffered entries.
func (w *Writer) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.store.PutBatch(w.buf); err != nil {
		return err
	}
	w.written += len(w.buf)
	w.buf = w.buf[:0]
	return nil
}

// Written returns the number of entries committed so far.
func (w *Writer) Written() int { return w.written }
