package central

import (
	"context"
	"strings"
	"sync"

	"github.com/srg/blecentral/internal/eventbus"
	"github.com/srg/blecentral/internal/groutine"
)

// Stream is a live feed of session events. Each call to an Observe method
// returns an independent Stream that only sees events emitted after it was
// created. C is closed by Close or when the session shuts down, even if the
// consumer stopped reading. A consumer that falls behind by more than the
// configured buffer misses events.
type Stream[T any] struct {
	C <-chan T

	stop        chan struct{}
	done        chan struct{}
	once        sync.Once
	unsubscribe func()
}

func newStream[T any](hub *eventbus.Hub, capacity int, convert func(any) (T, bool), topics ...string) *Stream[T] {
	src, unsubscribe := hub.Subscribe(topics...)
	out := make(chan T, capacity)
	s := &Stream[T]{C: out, stop: make(chan struct{}), done: make(chan struct{}), unsubscribe: unsubscribe}

	groutine.Go(context.Background(), "stream:"+strings.Join(topics, ","), func(context.Context) {
		defer close(s.done)
		defer close(out)
		for msg := range src {
			v, ok := convert(msg)
			if !ok {
				continue
			}
			select {
			case out <- v:
			case <-s.stop:
				return
			case <-hub.Done():
				return
			}
		}
	})
	return s
}

func closedStream[T any]() *Stream[T] {
	out := make(chan T)
	close(out)
	done := make(chan struct{})
	close(done)
	return &Stream[T]{C: out, stop: make(chan struct{}), done: done, unsubscribe: func() {}}
}

// Close detaches the stream. Safe to call more than once.
func (s *Stream[T]) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.unsubscribe()
	})
}

// eventOf builds a converter accepting messages of type E that satisfy keep.
func eventOf[E any, T any](keep func(E) bool, project func(E) T) func(any) (T, bool) {
	return func(msg any) (T, bool) {
		var zero T
		e, ok := msg.(E)
		if !ok || (keep != nil && !keep(e)) {
			return zero, false
		}
		return project(e), true
	}
}

func passThrough[E any](e E) E { return e }
