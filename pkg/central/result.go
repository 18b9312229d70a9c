package central

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"
)

// Result is the single outcome of an asynchronous operation. It completes
// exactly once, with either a value or an error; later completions are
// ignored.
type Result[T any] struct {
	id     string
	done   chan struct{}
	closed atomic.Bool
	value  T
	err    error
	cancel func()
}

func newOpID() string {
	return ulid.Make().String()
}

func newResult[T any](id string) *Result[T] {
	return &Result[T]{id: id, done: make(chan struct{})}
}

// ID identifies the operation in logs and traces.
func (r *Result[T]) ID() string {
	return r.id
}

// Done is closed when the outcome is available.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Completed reports whether the outcome is available without blocking.
func (r *Result[T]) Completed() bool {
	return r.closed.Load()
}

// Get blocks until the operation completes.
func (r *Result[T]) Get() (T, error) {
	<-r.done
	return r.value, r.err
}

// Await waits for the outcome or for ctx to end. When ctx ends first the
// operation is cancelled and Await returns whichever outcome won.
func (r *Result[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		r.Cancel()
		<-r.done
	}
	return r.value, r.err
}

// Cancel requests cancellation. An operation still pending completes with
// ErrOperationCancelled; a completed one is unaffected.
func (r *Result[T]) Cancel() {
	if r.cancel != nil && !r.closed.Load() {
		r.cancel()
	}
}

func (r *Result[T]) complete(v T, err error) bool {
	if !r.closed.CompareAndSwap(false, true) {
		return false
	}
	r.value = v
	r.err = err
	close(r.done)
	return true
}
