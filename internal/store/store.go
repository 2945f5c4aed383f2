// Package store persists fingerprint entries in a single BoltDB file.
//
// The store maps file path -> FingerprintEntry and owns every entry it
// holds: entries are created on first successful hash, replaced when a
// file's size/mtime key changes, and removed only by explicit prune, delete
// or rename calls. A meta bucket carries the monotonically increasing scan
// generation counter.
//
// Writes go through batched transactions: workers never touch the backing
// database directly, they hand entries to a single Writer (see writer.go)
// that owns commit order.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"vidupe/internal/types"
)

const (
	entriesBucket = "fingerprints"
	metaBucket    = "meta"
	generationKey = "generation"
)

// ErrNotFound is returned by operations on paths the store does not hold.
var ErrNotFound = errors.New("entry not found")

// Store is a durable path-keyed fingerprint database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store at path. With reset set, any existing
// contents, including the generation counter, are discarded first.
func Open(path string, reset bool) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store (locked by another instance?): %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if reset {
			for _, name := range []string{entriesBucket, metaBucket} {
				if tx.Bucket([]byte(name)) != nil {
					if err := tx.DeleteBucket([]byte(name)); err != nil {
						return err
					}
				}
			}
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry for path, or found=false if the store has none.
func (s *Store) Get(path string) (entry *types.FingerprintEntry, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(entriesBucket)).Get([]byte(path))
		if data == nil {
			return nil
		}
		e, err := decodeEntry(data)
		if err != nil {
			return err
		}
		entry, found = e, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("store get %s: %w", path, err)
	}
	return entry, found, nil
}

// PutBatch upserts all entries in one transaction. Either the whole batch
// commits or none of it does.
func (s *Store) PutBatch(entries []*types.FingerprintEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		for _, e := range entries {
			data, err := encodeEntry(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.Record.Path), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store put batch: %w", err)
	}
	return nil
}

// ForEach iterates all entries in key order. Returning an error from fn
// stops the iteration and propagates the error.
func (s *Store) ForEach(fn func(*types.FingerprintEntry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).ForEach(func(_, v []byte) error {
			e, err := decodeEntry(v)
			if err != nil {
				return err
			}
			return fn(e)
		})
	})
}

// Len returns the number of stored entries.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(entriesBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// Prune deletes the entries for the given paths in one transaction and
// returns how many existed.
func (s *Store) Prune(paths []string) (int, error) {
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		for _, p := range paths {
			if b.Get([]byte(p)) == nil {
				continue
			}
			if err := b.Delete([]byte(p)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("store prune: %w", err)
	}
	return removed, nil
}

// DeletePath removes the entry for path. ErrNotFound if absent.
func (s *Store) DeletePath(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		if b.Get([]byte(path)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return b.Delete([]byte(path))
	})
}

// RenamePath re-keys the entry at oldPath under newPath, updating the
// embedded record so subsequent group computations stay consistent.
func (s *Store) RenamePath(oldPath, newPath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		data := b.Get([]byte(oldPath))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, oldPath)
		}
		e, err := decodeEntry(data)
		if err != nil {
			return err
		}
		e.Record.Path = newPath
		updated, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(newPath), updated); err != nil {
			return err
		}
		return b.Delete([]byte(oldPath))
	})
}

// Generation returns the current scan generation counter (0 if no scan ran).
func (s *Store) Generation() (uint64, error) {
	var gen uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(metaBucket)).Get([]byte(generationKey))
		if len(data) == 8 {
			gen = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return gen, err
}

// NextGeneration increments and persists the generation counter, returning
// the new value. Generations only ever increase.
func (s *Store) NextGeneration() (uint64, error) {
	var gen uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(metaBucket))
		data := b.Get([]byte(generationKey))
		if len(data) == 8 {
			gen = binary.BigEndian.Uint64(data)
		}
		gen++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, gen)
		return b.Put([]byte(generationKey), buf)
	})
	if err != nil {
		return 0, fmt.Errorf("store advance generation: %w", err)
	}
	return gen, nil
}

func encodeEntry(e *types.FingerprintEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("encode entry %s: %w", e.Record.Path, err)
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*types.FingerprintEntry, error) {
	var e types.FingerprintEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}
