package fingerprint

import (
	"github.com/cespare/xxhash/v2"

	"vidupe/internal/types"
)

// MaxDistance is returned when two fingerprints cannot be compared (either
// one empty). It is above any valid threshold.
const MaxDistance = 1.0

// Distance compares two perceptual fingerprints with windowed alignment:
// the shorter frame sequence is slid across every contiguous window of the
// longer one and the result is the minimum, over all alignments, of the
// mean per-frame histogram distance. The windowing is what lets a clipped
// excerpt match its full-length source. Result is in [0, 1].
func Distance(a, b types.PerceptualFingerprint) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return MaxDistance
	}

	best := MaxDistance
	for offset := 0; offset+len(short) <= len(long); offset++ {
		var sum float64
		for i, frame := range short {
			sum += frameDistance(frame, long[offset+i])
		}
		if mean := sum / float64(len(short)); mean < best {
			best = mean
		}
	}
	return best
}

// frameDistance is the normalized L1 distance between two quantized frame
// histograms. Each digest carries a total mass of ~255 (counts scaled by
// the pixel total), so dividing by twice that mass maps fully disjoint
// histograms to ~1 and identical ones to 0.
func frameDistance(a, b []byte) float64 {
	if len(a) != len(b) {
		return MaxDistance
	}
	var sum int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return min(float64(sum)/(2*255), MaxDistance)
}

// coarseShift reduces each histogram bucket to 3 bits before bucket
// hashing, so small perturbations from re-encoding usually land in the
// same bucket. Boundary flips cause the documented false negatives.
const coarseShift = 5

// CoarseKeys derives the candidate-index bucket keys for a fingerprint: one
// key per sampled frame, the xxhash of its coarsely quantized digest.
// Indexing every frame (not just the first) keeps clipped subsets
// discoverable, since any shared frame puts two files in a common bucket.
// Duplicated keys within one fingerprint are collapsed.
func CoarseKeys(fp types.PerceptualFingerprint) []uint64 {
	seen := make(map[uint64]struct{}, len(fp))
	keys := make([]uint64, 0, len(fp))
	quantized := make([]byte, types.FrameDigestSize)
	for _, frame := range fp {
		if len(frame) != types.FrameDigestSize {
			continue
		}
		for i, v := range frame {
			quantized[i] = v >> coarseShift
		}
		key := xxhash.Sum64(quantized)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
