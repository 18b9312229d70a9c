package central

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/srg/blecentral/internal/eventbus"
	"github.com/srg/blecentral/internal/tracer"
	"github.com/srg/blecentral/pkg/adapter"
)

type opKind string

const (
	opScan                    opKind = "scan"
	opConnect                 opKind = "connect"
	opDisconnect              opKind = "disconnect"
	opDiscoverServices        opKind = "discover-services"
	opDiscoverCharacteristics opKind = "discover-characteristics"
	opReadValue               opKind = "read-value"
	opSetNotify               opKind = "set-notify"
)

// operation is the loop-side record of a pending request. Every field is
// owned by the event loop.
type operation struct {
	id             string
	kind           opKind
	peripheral     adapter.Identity
	service        adapter.UUID
	characteristic adapter.UUID

	subs     []eventbus.Cancel
	cleanup  []func()
	fail     func(error)
	span     trace.Span
	log      *logrus.Entry
	tracked  bool
	finished bool
}

// correlate attaches a correlation subscription detached on completion.
func (op *operation) correlate(cancel eventbus.Cancel) {
	op.subs = append(op.subs, cancel)
}

// onFinish registers fn to run once, on any outcome.
func (op *operation) onFinish(fn func()) {
	op.cleanup = append(op.cleanup, fn)
}

func (op *operation) errorf(kind ErrorKind, cause error) *Error {
	return &Error{
		Kind:           kind,
		Peripheral:     op.peripheral,
		Service:        op.service,
		Characteristic: op.characteristic,
		Err:            cause,
	}
}

func (op *operation) fields() logrus.Fields {
	f := logrus.Fields{"op": string(op.kind), "op_id": op.id}
	if op.peripheral != "" {
		f["peripheral"] = op.peripheral
	}
	if op.service != "" {
		f["service"] = op.service
	}
	if op.characteristic != "" {
		f["characteristic"] = op.characteristic
	}
	return f
}

// setupFunc registers correlations and issues the adapter request. It runs on
// the event loop.
type setupFunc[T any] func(op *operation, resolve func(T), reject func(error))

// start creates the Result for desc and schedules setup on the loop. Every
// outcome path goes through finish, which detaches correlations, runs
// cleanups, ends the span and completes the Result.
func start[T any](c *core, desc operation, setup setupFunc[T]) *Result[T] {
	op := &desc
	op.id = newOpID()
	op.log = c.logger.WithFields(op.fields())
	r := newResult[T](op.id)

	finish := func(v T, err error) {
		if op.finished {
			return
		}
		op.finished = true
		for _, cancel := range op.subs {
			cancel()
		}
		for _, fn := range op.cleanup {
			fn()
		}
		if op.tracked {
			delete(c.ops, op.id)
		}
		if op.span != nil {
			tracer.End(op.span, err)
		}
		if err != nil {
			op.log.WithError(err).Debug("Operation failed")
		} else {
			op.log.Debug("Operation completed")
		}
		r.complete(v, err)
	}
	resolve := func(v T) { finish(v, nil) }
	reject := func(err error) {
		var zero T
		finish(zero, err)
	}
	op.fail = reject

	r.cancel = func() {
		if !c.loop.Post(func() { reject(op.errorf(KindOperationCancelled, nil)) }) {
			var zero T
			r.complete(zero, op.errorf(KindSessionDestroyed, nil))
		}
	}

	if c.closed.Load() {
		reject(op.errorf(KindSessionDestroyed, nil))
		return r
	}

	posted := c.loop.Post(func() {
		if c.closed.Load() {
			reject(op.errorf(KindSessionDestroyed, nil))
			return
		}
		_, op.span = c.tracer.Start(context.Background(), "ble."+string(op.kind), trace.WithAttributes(
			tracer.StringAttr("ble.op_id", op.id),
			tracer.StringAttr("ble.peripheral", string(op.peripheral)),
			tracer.StringAttr("ble.service", string(op.service)),
		))
		c.ops[op.id] = op
		op.tracked = true
		op.log.Debug("Operation started")
		setup(op, resolve, reject)
	})
	if !posted {
		reject(op.errorf(KindSessionDestroyed, nil))
	}
	return r
}

// failed returns a Result completed with kind before any loop work happens.
func failed[T any](c *core, desc operation, kind ErrorKind, cause error) *Result[T] {
	desc.id = newOpID()
	err := desc.errorf(kind, cause)
	if c != nil {
		c.logger.WithFields(desc.fields()).WithError(err).Debug("Operation rejected")
	}
	r := newResult[T](desc.id)
	var zero T
	r.complete(zero, err)
	return r
}
