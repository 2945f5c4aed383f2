// Package progress wraps progressbar with enabled/disabled handling.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 100 * time.Millisecond

// Spinner is an indeterminate progress display. All methods are no-ops when
// the spinner is disabled, so callers never branch on progress visibility.
type Spinner struct {
	bar *progressbar.ProgressBar
}

// New creates a spinner. If enabled is false every method is a no-op.
func New(enabled bool) *Spinner {
	if !enabled {
		return &Spinner{}
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)
	return &Spinner{bar: bar}
}

// Describe updates the status line next to the spinner.
func (s *Spinner) Describe(st fmt.Stringer) {
	if s.bar != nil {
		s.bar.Describe(st.String())
	}
}

// Finish clears the spinner and prints the final status line.
func (s *Spinner) Finish(st fmt.Stringer) {
	if s.bar != nil {
		_ = s.bar.Finish()
		fmt.Fprintln(os.Stderr, st.String())
	}
}
