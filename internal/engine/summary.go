package engine

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"vidupe/internal/hasher"
	"vidupe/internal/scanner"
)

// Summary reports what one scan generation did.
type Summary struct {
	Generation   uint64
	Scanned      int64 // regular files observed on disk
	Hashed       int64 // files (re)fingerprinted this generation
	Unchanged    int64 // files skipped via size+mtime match
	Failed       int64 // files dropped due to read errors
	ContentOnly  int64 // videos whose perceptual hash failed
	SkippedPaths int64 // paths skipped during traversal
	Pruned       int64 // stale entries removed (clean-unfound)
	HashedBytes  int64
	Duration     time.Duration
}

func (s *Summary) String() string {
	return fmt.Sprintf("Scanned %d files: %d hashed (%s), %d unchanged, %d failed, %d pruned in %.1fs",
		s.Scanned, s.Hashed, humanize.IBytes(uint64(s.HashedBytes)),
		s.Unchanged, s.Failed, s.Pruned, s.Duration.Seconds())
}

// statsView renders a live progress line from the pipeline counters.
type statsView struct {
	scan  *scanner.Stats
	hash  *hasher.Stats
	start time.Time
}

func (v *statsView) String() string {
	return fmt.Sprintf("Scanned %d, hashed %d (%s), %d unchanged, %d failed in %.1fs",
		v.scan.Scanned.Load(),
		v.hash.Hashed.Load(), humanize.IBytes(uint64(v.hash.HashedBytes.Load())),
		v.scan.Unchanged.Load(),
		v.hash.Failed.Load(),
		time.Since(v.start).Seconds())
}
