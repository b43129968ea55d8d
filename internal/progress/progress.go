// Package progress renders stage spinners and counters on stderr.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// clearLine erases the current terminal line so other output does not
// collide with a rendered bar.
const clearLine = "\r\033[K"

// Bar wraps a progressbar spinner with enabled/disabled handling.
// All methods are no-ops when disabled.
type Bar struct {
	bar *progressbar.ProgressBar
	w   io.Writer
}

// New creates a spinner writing to stderr.
// If enabled=false, returns a Bar where all methods are no-ops.
func New(enabled bool) *Bar {
	return NewWithWriter(enabled, os.Stderr)
}

// NewWithWriter is New with an explicit output writer.
func NewWithWriter(enabled bool, w io.Writer) *Bar {
	if !enabled {
		return &Bar{}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(false),
	)
	return &Bar{bar: bar, w: w}
}

// Describe updates the progress bar description.
func (b *Bar) Describe(s fmt.Stringer) {
	if b.bar != nil {
		b.bar.Describe(s.String())
	}
}

// Clear erases the rendered bar line before other terminal output.
func (b *Bar) Clear() {
	if b.bar != nil {
		_, _ = fmt.Fprint(b.w, clearLine)
	}
}

// Finish completes the progress bar and prints a final message.
func (b *Bar) Finish(s fmt.Stringer) {
	if b.bar != nil {
		_ = b.bar.Finish()
		_, _ = fmt.Fprintln(b.w, "✔ "+s.String())
	}
}
