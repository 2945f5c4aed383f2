// Package types provides shared types used across the vidupe codebase.
package types

import (
	"time"
)

// DigestSize is the width of a content fingerprint in bytes (sha256).
const DigestSize = 32

// ContentFingerprint is an exact whole-file digest. Two files with identical
// bytes always carry identical fingerprints; collisions are treated as
// negligible.
type ContentFingerprint [DigestSize]byte

// FrameDigestSize is the width of a single quantized frame histogram:
// 4x4x4 RGB buckets, one byte per bucket.
const FrameDigestSize = 64

// PerceptualFingerprint is an ordered sequence of per-sampled-frame color
// histogram digests. A nil fingerprint means the file is content-hash-only.
type PerceptualFingerprint [][]byte

// FileRecord identifies a scanned file. Size and ModTime form the
// change-detection key: if both are unchanged since the last scan the file
// is assumed unchanged and not rehashed.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Changed reports whether the record differs from a previously stored one.
func (r FileRecord) Changed(prev FileRecord) bool {
	return r.Size != prev.Size || r.ModTime.UnixNano() != prev.ModTime.UnixNano()
}

// FingerprintEntry is the persisted unit: one per path, owned by the store.
type FingerprintEntry struct {
	Record     FileRecord
	Content    ContentFingerprint
	Frames     PerceptualFingerprint // nil when perceptual hashing was off or failed
	Generation uint64                // scan generation that produced this entry
}

// DuplicateGroup is a set of files considered duplicates, either by exact
// content fingerprint or by perceptual similarity. Groups are transient:
// recomputed on demand from the store, never persisted.
type DuplicateGroup struct {
	Files   []FileRecord
	Keeper  FileRecord // default keep candidate, UI may override
	Exact   bool
	Content ContentFingerprint // representative digest, exact groups only
}

// SelectKeeper nominates the file with the earliest modification time,
// breaking ties by lexicographically smallest path.
func SelectKeeper(files []FileRecord) FileRecord {
	keeper := files[0]
	for _, f := range files[1:] {
		mt, kt := f.ModTime.UnixNano(), keeper.ModTime.UnixNano()
		if mt < kt || (mt == kt && f.Path < keeper.Path) {
			keeper = f
		}
	}
	return keeper
}
