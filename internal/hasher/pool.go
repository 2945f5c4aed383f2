// Package hasher runs the fingerprinting worker pool.
//
// A fixed set of workers drains the scanner's bounded work queue, computes
// the content fingerprint (and, in videohash mode, the perceptual
// fingerprint) for each item and hands the completed entry to the store
// writer channel. Workers suspend when the queue is empty and when the
// results channel is full, so the pool inherits the pipeline's
// backpressure at both ends.
//
// A single file's failure is counted and logged, never fatal: the file is
// simply absent from this generation's fingerprints and any previous store
// entry remains as last-known-good.
package hasher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"vidupe/internal/fingerprint"
	"vidupe/internal/scanner"
	"vidupe/internal/types"
)

// Stats carries live hashing counters, atomic for concurrent reads.
type Stats struct {
	Hashed      atomic.Int64 // entries completed
	HashedBytes atomic.Int64 // bytes streamed through content hashing
	ContentOnly atomic.Int64 // videos demoted to content-hash-only
	Failed      atomic.Int64 // files dropped from this generation
}

// Pool is a fixed-size fingerprinting worker pool.
// Designed for single use: create with New, call Run once.
type Pool struct {
	workers      int
	videoHash    bool
	sampleFrames int
	log          zerolog.Logger

	// Stats is valid for reading at any time during Run.
	Stats Stats
}

// New creates a pool of the given size. workers=1 degenerates to strictly
// sequential processing.
func New(workers int, videoHash bool, sampleFrames int, log zerolog.Logger) *Pool {
	return &Pool{
		workers:      workers,
		videoHash:    videoHash,
		sampleFrames: sampleFrames,
		log:          log.With().Str("component", "hasher").Logger(),
	}
}

// Run consumes work until the channel is closed or ctx is cancelled,
// sending completed entries to out. It returns when every worker has
// drained; the caller owns closing out afterwards.
func (p *Pool) Run(ctx context.Context, work <-chan scanner.WorkItem, out chan<- *types.FingerprintEntry) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				if ctx.Err() != nil {
					// Abandon in-flight generation work on cancellation;
					// keep draining so the producer never blocks forever.
					continue
				}
				entry, ok := p.process(ctx, item)
				if !ok {
					continue
				}
				select {
				case out <- entry:
				case <-ctx.Done():
				}
			}
		}()
	}
	wg.Wait()
}

// process fingerprints one work item. Returns ok=false when the file is
// dropped from this generation.
func (p *Pool) process(ctx context.Context, item scanner.WorkItem) (*types.FingerprintEntry, bool) {
	digest, n, err := fingerprint.HashContent(item.Record.Path)
	if err != nil {
		p.Stats.Failed.Add(1)
		p.log.Warn().Err(err).Str("path", item.Record.Path).Msg("content hash failed")
		return nil, false
	}
	p.Stats.HashedBytes.Add(n)

	entry := &types.FingerprintEntry{
		Record:     item.Record,
		Content:    digest,
		Generation: item.Generation,
	}

	if p.videoHash && fingerprint.IsVideo(item.Record.Path) {
		frames, err := fingerprint.HashVideo(ctx, item.Record.Path, p.sampleFrames)
		switch {
		case err == nil:
			entry.Frames = frames
		case isDecodeError(err):
			// Corrupt or unsupported video: keep the entry content-only.
			p.Stats.ContentOnly.Add(1)
			p.log.Debug().Err(err).Str("path", item.Record.Path).Msg("perceptual hash skipped")
		default:
			p.Stats.ContentOnly.Add(1)
			p.log.Warn().Err(err).Str("path", item.Record.Path).Msg("perceptual hash failed")
		}
	}

	p.Stats.Hashed.Add(1)
	return entry, true
}

func isDecodeError(err error) bool {
	var decodeErr *fingerprint.DecodeError
	return errors.As(err, &decodeErr)
}
