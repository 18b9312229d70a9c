package central

import (
	"runtime"
	"sort"
	"weak"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/srg/blecentral/internal/eventbus"
	"github.com/srg/blecentral/internal/eventloop"
	"github.com/srg/blecentral/internal/tracer"
	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/config"
)

// core is the loop-owned state of a Session. It is the adapter's event
// handler; every callback is re-posted onto the loop before touching state.
type core struct {
	name    string
	adapter adapter.Adapter
	loop    *eventloop.Loop
	hub     *eventbus.Hub

	adapterBus    *eventbus.AdapterBus
	peripheralBus *eventbus.PeripheralBus

	// registry is written on the loop and read from any goroutine
	registry *hashmap.Map[adapter.Identity, weak.Pointer[Peripheral]]
	// ops is loop-confined
	ops map[string]*operation

	session  weak.Pointer[Session]
	scanSlot atomic.Bool
	closed   atomic.Bool

	cfg    *config.Config
	logger *logrus.Logger
	tracer trace.Tracer
}

func newCore(a adapter.Adapter, o options) *core {
	hub := eventbus.NewHub(o.config.ObserverBuffer, o.logger)
	return &core{
		name:          o.name,
		adapter:       a,
		loop:          eventloop.New(o.name, o.logger),
		hub:           hub,
		adapterBus:    eventbus.NewAdapterBus(hub),
		peripheralBus: eventbus.NewPeripheralBus(hub),
		registry:      hashmap.New[adapter.Identity, weak.Pointer[Peripheral]](),
		ops:           make(map[string]*operation),
		cfg:           o.config,
		logger:        o.logger,
		tracer:        tracer.Tracer(o.tracerProvider),
	}
}

// ----------------------------
// Peripheral registry
// ----------------------------

// peripheral returns the live handle for id, if any. Safe from any goroutine.
func (c *core) peripheral(id adapter.Identity) *Peripheral {
	wp, ok := c.registry.Get(id)
	if !ok {
		return nil
	}
	return wp.Value()
}

// upsert returns the handle for id, creating it if none is alive. Loop only.
func (c *core) upsert(id adapter.Identity) *Peripheral {
	if p := c.peripheral(id); p != nil {
		return p
	}
	p := newPeripheral(id, c.session)
	c.registry.Set(id, weak.Make(p))
	runtime.AddCleanup(p, c.forget, id)
	c.logger.WithField("peripheral", id).Debug("Peripheral handle created")
	return p
}

// forget drops the registry entry of a collected handle.
func (c *core) forget(id adapter.Identity) {
	c.loop.Post(func() {
		if wp, ok := c.registry.Get(id); ok && wp.Value() == nil {
			c.registry.Del(id)
			c.peripheralBus.Release(id)
		}
	})
}

func (c *core) peripherals() []*Peripheral {
	var out []*Peripheral
	c.registry.Range(func(_ adapter.Identity, wp weak.Pointer[Peripheral]) bool {
		if p := wp.Value(); p != nil {
			out = append(out, p)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ----------------------------
// Adapter event handling
// ----------------------------

func (c *core) post(event string, fn func()) {
	if !c.loop.Post(fn) {
		c.logger.WithField("event", event).Debug("Dropping adapter event after session shutdown")
	}
}

func (c *core) StateChanged(e adapter.StateChanged) {
	c.post("state", func() {
		c.logger.WithField("state", e.State.String()).Info("Adapter state changed")
		c.adapterBus.PublishState(e)
	})
}

func (c *core) PeripheralDiscovered(e adapter.PeripheralDiscovered) {
	c.post("discovered", func() {
		if p := c.peripheral(e.Peripheral); p != nil {
			p.applyDiscovery(e)
		}
		c.adapterBus.PublishDiscovered(e)
	})
}

func (c *core) Connected(e adapter.Connected) {
	c.post("connected", func() {
		c.upsert(e.Peripheral).setState(Connected)
		c.logger.WithField("peripheral", e.Peripheral).Info("Peripheral connected")
		c.adapterBus.PublishConnected(e)
	})
}

func (c *core) ConnectFailed(e adapter.ConnectFailed) {
	c.post("connect-failed", func() {
		if p := c.peripheral(e.Peripheral); p != nil {
			p.setState(Disconnected)
		}
		c.logger.WithFields(logrus.Fields{
			"peripheral": e.Peripheral,
			"error":      e.Err,
		}).Warn("Peripheral connection failed")
		c.adapterBus.PublishConnectFailed(e)
	})
}

func (c *core) Disconnected(e adapter.Disconnected) {
	c.post("disconnected", func() {
		if p := c.peripheral(e.Peripheral); p != nil {
			p.setState(Disconnected)
		}
		entry := c.logger.WithField("peripheral", e.Peripheral)
		if e.Err != nil {
			entry = entry.WithError(e.Err)
		}
		entry.Info("Peripheral disconnected")
		c.adapterBus.PublishDisconnected(e)
	})
}

func (c *core) ServicesDiscovered(e adapter.ServicesDiscovered) {
	c.post("services", func() {
		c.peripheralBus.PublishServices(e)
	})
}

func (c *core) CharacteristicsDiscovered(e adapter.CharacteristicsDiscovered) {
	c.post("characteristics", func() {
		c.peripheralBus.PublishCharacteristics(e)
	})
}

func (c *core) ValueUpdated(e adapter.ValueUpdated) {
	c.post("value", func() {
		if p := c.peripheral(e.Peripheral); p != nil && e.Err == nil {
			p.applyValue(e)
		}
		c.peripheralBus.PublishValue(e)
	})
}

func (c *core) NotificationStateUpdated(e adapter.NotificationStateUpdated) {
	c.post("notify-state", func() {
		if p := c.peripheral(e.Peripheral); p != nil && e.Err == nil {
			p.applyNotifyState(e)
		}
		c.peripheralBus.PublishNotifyState(e)
	})
}

// ----------------------------
// Lifecycle
// ----------------------------

// shutdown fails every pending operation with ErrSessionDestroyed, stops the
// loop and closes observer streams. Later adapter events are dropped.
func (c *core) shutdown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.adapter.SetHandler(nil)

	c.loop.Sync(func() {
		pending := 0
		for _, op := range c.ops {
			pending++
			op.fail(op.errorf(KindSessionDestroyed, nil))
		}
		c.logger.WithFields(logrus.Fields{
			"session": c.name,
			"pending": pending,
		}).Info("Session closed")
	})
	c.loop.Stop()
	if !c.loop.InLoop() {
		<-c.loop.Done()
	}
	c.hub.Shutdown()
}
