package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/hidrive-go/internal/hidrive"
)

// progressInterval limits how often the progress line is redrawn.
const progressInterval = 200 * time.Millisecond

// progressLine redraws a single "label: done / total" status line.
type progressLine struct {
	w     io.Writer
	label string
	total int64 // -1 when unknown

	mu    sync.Mutex
	last  time.Time
	drawn bool
}

// stderrIsTerminal reports whether progress output would reach a person.
func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newProgress returns a progress line on stderr, or nil when stderr is not a
// terminal or --quiet is set. A nil *progressLine is safe to use.
func newProgress(label string, total int64) *progressLine {
	if flagQuiet || !stderrIsTerminal() {
		return nil
	}

	return &progressLine{w: os.Stderr, label: label, total: total}
}

// Func returns the callback to hand to the transfer, or nil.
func (p *progressLine) Func() hidrive.ProgressFunc {
	if p == nil {
		return nil
	}

	return p.update
}

func (p *progressLine) update(done int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.drawn && now.Sub(p.last) < progressInterval {
		return
	}

	p.last = now
	p.drawn = true

	if p.total >= 0 {
		fmt.Fprintf(p.w, "\r%s: %s / %s", p.label, formatSize(done), formatSize(p.total))
		return
	}

	fmt.Fprintf(p.w, "\r%s: %s", p.label, formatSize(done))
}

// Done ends the progress line.
func (p *progressLine) Done() {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drawn {
		fmt.Fprintln(p.w)
	}
}
