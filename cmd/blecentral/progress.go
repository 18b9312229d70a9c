package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a one-line status with elapsed (or remaining) seconds
// while a command waits on the session. It is single-use: Start at most once,
// Stop any number of times.
type ProgressPrinter struct {
	w         io.Writer
	prefix    string
	phase     atomic.String
	countdown time.Duration
	started   atomic.Bool
	stopped   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// NewProgressPrinter counts up when countdown is zero, down otherwise.
func NewProgressPrinter(w io.Writer, prefix, phase string, countdown time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{
		w:         w,
		prefix:    prefix,
		countdown: countdown,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// newCommandProgress returns a printer on the command's stderr, or nil when
// stderr is not a terminal. All ProgressPrinter methods accept a nil receiver.
func newCommandProgress(cmd *cobra.Command, prefix, phase string, countdown time.Duration) *ProgressPrinter {
	f, ok := cmd.ErrOrStderr().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return NewProgressPrinter(f, prefix, phase, countdown)
}

func (p *ProgressPrinter) Start() {
	if p == nil {
		return
	}
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	start := time.Now()
	p.print(0)
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.print(p.seconds(time.Since(start)))
			}
		}
	}()
}

// SetPhase changes the label shown next to the timer.
func (p *ProgressPrinter) SetPhase(phase string) {
	if p == nil {
		return
	}
	p.phase.Store(phase)
}

// Stop terminates the display and clears the line.
func (p *ProgressPrinter) Stop() {
	if p == nil || !p.started.Load() || !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.stop)
	<-p.done
	fmt.Fprint(p.w, clearLineSequence)
}

func (p *ProgressPrinter) seconds(elapsed time.Duration) int {
	if p.countdown <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.countdown - elapsed
	if remaining <= 0 {
		return 0
	}
	// Round to the nearest second
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, p.phase.Load(), seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, p.phase.Load())
	}
}
