// Package eventloop provides the serial executor that owns all session state.
//
// Tasks posted to a Loop run one at a time, in posting order, on a single
// goroutine. Posting never blocks and never drops: the mailbox is unbounded so
// that an adapter calling from a platform thread is never stalled by the
// session.
package eventloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/srg/blecentral/internal/groutine"
)

// Loop is a single-goroutine FIFO executor.
type Loop struct {
	name   string
	logger *logrus.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}

	gid     atomic.Uint64
	started atomic.Bool
	done    chan struct{}
}

// New creates a loop. It does not run tasks until Start is called.
func New(name string, logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (l *Loop) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	groutine.Go(ctx, l.name, func(ctx context.Context) {
		l.gid.Store(groutine.ID())
		defer close(l.done)
		l.run()
	})
}

// Post enqueues fn. It reports false once the loop has been stopped; fn is
// then discarded.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync posts fn and waits for it to run. Called from the loop goroutine it
// runs fn inline. It reports false if the loop was already stopped.
func (l *Loop) Sync(fn func()) bool {
	if l.InLoop() {
		fn()
		return true
	}
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		// the task may have been the last one executed before exit
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Stop refuses further posts. Tasks already queued still run, then the loop
// goroutine exits. Stop does not wait; use Done for that.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// InLoop reports whether the caller runs on the loop goroutine.
func (l *Loop) InLoop() bool {
	gid := l.gid.Load()
	return gid != 0 && gid == groutine.ID()
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, fn := range batch {
			l.exec(fn)
		}

		if len(batch) > 0 {
			continue
		}
		if stopped {
			l.logger.WithField("loop", l.name).Debug("Event loop stopped")
			return
		}
		<-l.wake
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(logrus.Fields{
				"loop":  l.name,
				"panic": fmt.Sprint(r),
			}).Error("Event loop task panicked")
		}
	}()
	fn()
}
