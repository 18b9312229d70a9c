package central

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"weak"

	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/eventbus"
	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/config"
)

// Session is the central role bound to one adapter. All methods are safe for
// concurrent use. The session must stay referenced while its operations are
// pending: a session that is garbage collected shuts down as if Close was
// called.
type Session struct {
	core *core
}

// New binds a session to a and installs it as the adapter's event handler.
func New(a adapter.Adapter, opts ...Option) (*Session, error) {
	if a == nil {
		return nil, errors.New("central: nil adapter")
	}

	o := options{name: "central"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.config == nil {
		o.config = config.DefaultConfig()
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("central: %w", err)
	}

	c := newCore(a, o)
	s := &Session{core: c}
	c.session = weak.Make(s)
	c.loop.Start(context.Background())
	a.SetHandler(c)

	runtime.AddCleanup(s, func(c *core) {
		groutine.Go(context.Background(), "session-cleanup", func(context.Context) { c.shutdown() })
	}, c)

	o.logger.WithFields(logrus.Fields{
		"session": o.name,
		"state":   a.State().String(),
	}).Debug("Session created")
	return s, nil
}

// State returns the adapter state as currently reported by the adapter.
func (s *Session) State() adapter.State {
	return s.core.adapter.State()
}

// IsScanning reports whether a scan operation of this session is pending.
func (s *Session) IsScanning() bool {
	return s.core.scanSlot.Load()
}

// Peripheral returns the live handle for id, if the session has one.
func (s *Session) Peripheral(id adapter.Identity) (*Peripheral, bool) {
	p := s.core.peripheral(id)
	return p, p != nil
}

// Peripherals returns the live handles ordered by identity.
func (s *Session) Peripherals() []*Peripheral {
	return s.core.peripherals()
}

// ----------------------------
// Observers
// ----------------------------

// ObserveState streams adapter state changes.
func (s *Session) ObserveState() *Stream[adapter.State] {
	return observe(s.core, eventOf[adapter.StateChanged](nil, func(e adapter.StateChanged) adapter.State { return e.State }),
		eventbus.TopicState)
}

// ObserveDiscoveries streams every advertisement received while scanning.
func (s *Session) ObserveDiscoveries() *Stream[adapter.PeripheralDiscovered] {
	return observe(s.core, eventOf[adapter.PeripheralDiscovered](nil, passThrough[adapter.PeripheralDiscovered]),
		eventbus.TopicDiscovered)
}

// ObserveConnect streams successful connections of any peripheral.
func (s *Session) ObserveConnect() *Stream[adapter.Connected] {
	return observe(s.core, eventOf[adapter.Connected](nil, passThrough[adapter.Connected]),
		eventbus.TopicConnected)
}

// ObserveDisconnect streams disconnections of any peripheral.
func (s *Session) ObserveDisconnect() *Stream[adapter.Disconnected] {
	return observe(s.core, eventOf[adapter.Disconnected](nil, passThrough[adapter.Disconnected]),
		eventbus.TopicDisconnected)
}

func observe[T any](c *core, convert func(any) (T, bool), topics ...string) *Stream[T] {
	if c.closed.Load() {
		return closedStream[T]()
	}
	return newStream(c.hub, c.cfg.ObserverBuffer, convert, topics...)
}

// ----------------------------
// Operations
// ----------------------------

// Scan starts scanning and resolves with the first peripheral advertising one
// of services (any peripheral when services is empty) and accepted by
// opts.Match. Service UUIDs are normalized, so "0x180D" and "180d" are the
// same filter. The radio scan is stopped as soon as the scan resolves, fails
// or is cancelled. Only one scan may be pending per session. Scan never
// times out on its own; use Await with a deadline.
func (s *Session) Scan(services []adapter.UUID, opts *ScanOptions) *Result[*Peripheral] {
	c := s.core
	services = normalizeUUIDs(services)
	if opts == nil {
		opts = &ScanOptions{AllowDuplicates: c.cfg.ScanAllowDuplicates}
	}
	desc := operation{kind: opScan}

	if c.closed.Load() {
		return failed[*Peripheral](c, desc, KindSessionDestroyed, nil)
	}
	if state := c.adapter.State(); state != adapter.StatePoweredOn {
		return failed[*Peripheral](c, desc, KindAdapterNotReady, fmt.Errorf("adapter is %s", state))
	}
	if !c.scanSlot.CompareAndSwap(false, true) {
		return failed[*Peripheral](c, desc, KindScanAlreadyInProgress, nil)
	}
	if c.adapter.IsScanning() {
		c.scanSlot.Store(false)
		return failed[*Peripheral](c, desc, KindScanAlreadyInProgress, adapter.ErrScanInProgress)
	}

	desc.onFinish(func() { c.scanSlot.Store(false) })

	return start(c, desc, func(op *operation, resolve func(*Peripheral), reject func(error)) {
		match := func(e adapter.PeripheralDiscovered) bool {
			return e.Advertisement.MatchesAny(services) && (opts.Match == nil || opts.Match(e))
		}
		op.correlate(c.adapterBus.Discovered.Once(match, func(e adapter.PeripheralDiscovered) {
			p := c.upsert(e.Peripheral)
			p.applyDiscovery(e)
			op.log.WithField("peripheral", e.Peripheral).Info("Scan matched peripheral")
			resolve(p)
		}))

		if err := c.adapter.StartScan(services, adapter.ScanOptions{AllowDuplicates: opts.AllowDuplicates}); err != nil {
			reject(op.errorf(KindAdapterNotReady, err))
			return
		}
		// prepended so the radio stops before the slot is released
		op.cleanup = append([]func(){func() {
			if err := c.adapter.StopScan(); err != nil {
				op.log.WithError(err).Warn("Failed to stop scan")
			}
		}}, op.cleanup...)
	})
}

// Connect connects the peripheral identified by id. The first connected or
// connect-failed event for id decides the outcome; there is no implicit
// timeout or retry. The handle for id exists from the moment the request
// reaches the event loop and stays alive while the connect is pending.
func (s *Session) Connect(id adapter.Identity, opts adapter.ConnectOptions) *Result[*Peripheral] {
	c := s.core
	id = adapter.NormalizeIdentity(string(id))
	desc := operation{kind: opConnect, peripheral: id}

	return start(c, desc, func(op *operation, resolve func(*Peripheral), reject func(error)) {
		// held by the correlation below so the registry's weak entry stays valid
		p := c.upsert(id)
		if p.State() != Connected {
			p.setState(Connecting)
		}

		isTarget := func(e adapter.Connected) bool { return e.Peripheral == id }
		op.correlate(c.adapterBus.Connected.Once(isTarget, func(adapter.Connected) {
			resolve(p)
		}))
		op.correlate(c.adapterBus.ConnectFailed.Once(func(e adapter.ConnectFailed) bool {
			return e.Peripheral == id
		}, func(e adapter.ConnectFailed) {
			reject(op.errorf(KindConnectFailed, e.Err))
		}))

		if err := c.adapter.Connect(id, opts); err != nil {
			if p.State() == Connecting {
				p.setState(Disconnected)
			}
			reject(op.errorf(KindConnectFailed, err))
		}
	})
}

// Close fails every pending operation with ErrSessionDestroyed, detaches the
// session from the adapter and closes all streams. Close is idempotent.
func (s *Session) Close() error {
	s.core.shutdown()
	return nil
}

func normalizeUUIDs(uuids []adapter.UUID) []adapter.UUID {
	if len(uuids) == 0 {
		return uuids
	}
	out := make([]adapter.UUID, len(uuids))
	for i, u := range uuids {
		out[i] = adapter.NormalizeUUID(string(u))
	}
	return out
}
