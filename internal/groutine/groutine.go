// Package groutine starts named goroutines carrying pprof labels so that
// session loops, scans and dials can be told apart in profiles and logs.
package groutine

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

type ctxKey struct{}

// Go runs fn in a new goroutine labelled with name. The returned channel is
// closed when fn returns. A nil parent means context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}
	done := make(chan struct{})
	labels := pprof.Labels("goroutine", name)

	go pprof.Do(parent, labels, func(ctx context.Context) {
		defer close(done)
		fn(context.WithValue(ctx, ctxKey{}, name))
	})
	return done
}

// Name returns the name given to the goroutine that owns ctx.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// ID returns the runtime goroutine id of the caller. Debugging aid only.
func ID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return 0
	}
	id, _ := strconv.ParseUint(string(b[:i]), 10, 64)
	return id
}
