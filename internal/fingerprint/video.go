package fingerprint

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"vidupe/internal/types"
)

// Frame sampling geometry. Frames are scaled down before histogramming, so
// the digest is insensitive to the source resolution; 32x32 keeps decode
// cost low while leaving plenty of pixels for a 64-bucket histogram.
const (
	frameWidth  = 32
	frameHeight = 32
	frameBytes  = frameWidth * frameHeight * 3 // raw RGB24

	// Each RGB channel is quantized to 4 buckets (top two bits), giving a
	// 4x4x4 = 64 bucket histogram per frame.
	bucketShift = 6
	numBuckets  = 256 >> bucketShift
)

// DecodeError marks a file that could not be decoded as video. Callers
// record the file as content-hash-only; it is never a fatal scan error.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HashVideo computes the perceptual fingerprint of the video at path:
// sampleFrames frames at even temporal spacing, each reduced to a quantized
// color-histogram digest. The ffmpeg and ffprobe binaries must be on PATH;
// any probe, decode or tooling failure is reported as a *DecodeError.
func HashVideo(ctx context.Context, path string, sampleFrames int) (types.PerceptualFingerprint, error) {
	duration, err := probeDuration(ctx, path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	frames, err := extractFrames(ctx, path, sampleFrames, duration)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	fp := make(types.PerceptualFingerprint, 0, len(frames))
	for _, frame := range frames {
		fp = append(fp, frameDigest(frame))
	}
	return fp, nil
}

// probeDuration asks ffprobe for the container duration in seconds.
func probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("non-positive duration %g", duration)
	}
	return duration, nil
}

// extractFrames decodes up to n frames evenly spaced across the video as
// raw 32x32 RGB24 data, in a single ffmpeg invocation.
func extractFrames(ctx context.Context, path string, n int, duration float64) ([][]byte, error) {
	fps := float64(n) / duration

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", path,
		"-vf", fmt.Sprintf("fps=%f,scale=%d:%d", fps, frameWidth, frameHeight),
		"-frames:v", strconv.Itoa(n),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("ffmpeg: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg: %s", msg)
	}

	count := len(out) / frameBytes
	if count == 0 {
		return nil, fmt.Errorf("no video frames decoded")
	}

	frames := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		frames = append(frames, out[i*frameBytes:(i+1)*frameBytes])
	}
	return frames, nil
}

// frameDigest reduces one raw RGB frame to its quantized color histogram:
// pixel counts per (r,g,b) bucket, scaled to bytes by the pixel total so
// digests of different frame geometries stay comparable.
func frameDigest(frame []byte) []byte {
	var histogram [types.FrameDigestSize]uint64
	pixels := len(frame) / 3
	for i := 0; i < pixels; i++ {
		r := frame[i*3] >> bucketShift
		g := frame[i*3+1] >> bucketShift
		b := frame[i*3+2] >> bucketShift
		histogram[int(r)*numBuckets*numBuckets+int(g)*numBuckets+int(b)]++
	}

	digest := make([]byte, types.FrameDigestSize)
	for i, count := range histogram {
		digest[i] = byte(255 * count / uint64(pixels))
	}
	return digest
}
