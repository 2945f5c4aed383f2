package fingerprint

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// videoExts are the container extensions recognized without sniffing.
var videoExts = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mkv":  true,
	".wmv":  true,
	".flv":  true,
	".mov":  true,
	".webm": true,
	".m4v":  true,
	".mpg":  true,
	".mpeg": true,
	".ts":   true,
}

// sniffLen is the number of header bytes filetype needs for matching.
const sniffLen = 261

// IsVideo reports whether the file looks like a video, first by extension,
// then by sniffing the file header. Unreadable files report false; the
// content hash pipeline surfaces the real error.
func IsVideo(path string) bool {
	if videoExts[strings.ToLower(filepath.Ext(path))] {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if n == 0 || (err != nil && n <= 0) {
		return false
	}
	return filetype.IsVideo(head[:n])
}
