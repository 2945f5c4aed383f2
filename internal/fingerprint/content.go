// Package fingerprint provides the pure fingerprint functions: exact
// whole-file content digests and perceptual video fingerprints, plus the
// distance metric used for near-duplicate matching. Nothing in this package
// holds shared state.
package fingerprint

import (
	"crypto/sha256"
	"io"
	"os"

	"vidupe/internal/types"
)

// blockSize is the read buffer size for streaming hashes (64KB).
const blockSize = 64 * 1024

// HashContent computes the exact content fingerprint of the file at path.
// The file is streamed through the hash state in fixed-size blocks, so
// memory use is independent of file size. Returns the digest and the number
// of bytes read.
func HashContent(path string) (types.ContentFingerprint, int64, error) {
	var digest types.ContentFingerprint

	f, err := os.Open(path)
	if err != nil {
		return digest, 0, err
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	buf := make([]byte, blockSize)
	n, err := io.CopyBuffer(hasher, f, buf)
	if err != nil {
		return digest, n, err
	}

	copy(digest[:], hasher.Sum(nil))
	return digest, n, nil
}
