package fingerprint

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"vidupe/internal/types"
)

// solidFrame fills a raw RGB24 frame with a single color.
func solidFrame(r, g, b byte) []byte {
	frame := make([]byte, frameBytes)
	for i := 0; i < len(frame); i += 3 {
		frame[i] = r
		frame[i+1] = g
		frame[i+2] = b
	}
	return frame
}

func TestFrameDigestSolidColor(t *testing.T) {
	// A pure red frame lands every pixel in one bucket.
	digest := frameDigest(solidFrame(255, 0, 0))

	bucket := (numBuckets - 1) * numBuckets * numBuckets // r=3, g=0, b=0
	if digest[bucket] != 255 {
		t.Errorf("dominant bucket = %d, want 255", digest[bucket])
	}
	for i, v := range digest {
		if i != bucket && v != 0 {
			t.Errorf("bucket %d = %d, want 0", i, v)
		}
	}
}

func TestFrameDigestSplitColors(t *testing.T) {
	// Half red, half blue: mass split evenly between two buckets.
	frame := solidFrame(255, 0, 0)
	for i := len(frame) / 2; i < len(frame); i += 3 {
		frame[i] = 0
		frame[i+2] = 255
	}
	digest := frameDigest(frame)

	red := (numBuckets - 1) * numBuckets * numBuckets
	blue := numBuckets - 1
	if digest[red] != 127 || digest[blue] != 127 {
		t.Errorf("red/blue buckets = %d/%d, want 127/127", digest[red], digest[blue])
	}
}

func TestIsVideoByExtension(t *testing.T) {
	for _, name := range []string{"a.mp4", "b.MKV", "c.webm", "d.MoV"} {
		if !IsVideo(name) {
			t.Errorf("IsVideo(%q) = false, want true", name)
		}
	}
	// Unknown extension and no readable header.
	if IsVideo(filepath.Join(t.TempDir(), "missing.txt")) {
		t.Error("IsVideo on missing non-video path = true, want false")
	}
}

func TestIsVideoRejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.dat")
	if err := os.WriteFile(path, []byte("plain text, not a container"), 0o644); err != nil {
		t.Fatal(err)
	}
	if IsVideo(path) {
		t.Error("IsVideo on text file = true, want false")
	}
}

func TestHashVideoMissingFile(t *testing.T) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	_, err := HashVideo(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), 4)
	if err == nil {
		t.Fatal("expected DecodeError for missing file")
	}
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
}

func TestHashVideoGeneratedClip(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "test.mp4")
	gen := exec.Command("ffmpeg",
		"-v", "error",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=64x64:rate=10",
		"-pix_fmt", "yuv420p",
		path,
	)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg cannot generate test clip: %v (%s)", err, out)
	}

	const sampleFrames = 8
	fp, err := HashVideo(context.Background(), path, sampleFrames)
	if err != nil {
		t.Fatalf("HashVideo: %v", err)
	}
	if len(fp) == 0 || len(fp) > sampleFrames {
		t.Fatalf("got %d frames, want 1..%d", len(fp), sampleFrames)
	}
	for i, frame := range fp {
		if len(frame) != types.FrameDigestSize {
			t.Fatalf("frame %d digest size = %d, want %d", i, len(frame), types.FrameDigestSize)
		}
	}

	// Same file hashes identically; self-distance is zero.
	again, err := HashVideo(context.Background(), path, sampleFrames)
	if err != nil {
		t.Fatalf("HashVideo rerun: %v", err)
	}
	if d := Distance(fp, again); d != 0 {
		t.Errorf("self distance = %g, want 0", d)
	}
}
