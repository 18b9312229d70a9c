// Package goble implements adapter.Adapter on top of github.com/go-ble/ble.
//
// go-ble exposes blocking calls; this package runs each request on its own
// goroutine and reports the outcome through the installed
// adapter.EventHandler. GATT requests on one link are serialized because the
// go-ble clients are not safe for concurrent use.
package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/srg/blecentral/pkg/adapter"
)

// scanFunc blocks scanning until ctx ends, calling h for every advertisement.
type scanFunc func(ctx context.Context, allowDup bool, h func(advertisement)) error

// dialFunc opens a GATT client link to addr.
type dialFunc func(ctx context.Context, addr ble.Addr) (gattClient, error)

// Adapter drives one local radio through go-ble.
type Adapter struct {
	logger *logrus.Logger
	scan   scanFunc
	dial   dialFunc
	stop   func() error

	handlerMu sync.RWMutex
	handler   adapter.EventHandler

	state atomic.Int32

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanDone   chan struct{}
	scanning   atomic.Bool

	links *hashmap.Map[adapter.Identity, *link]
}

var (
	_ adapter.Adapter      = (*Adapter)(nil)
	_ adapter.Disconnector = (*Adapter)(nil)
	_ adapter.ValueReader  = (*Adapter)(nil)
	_ adapter.NotifySetter = (*Adapter)(nil)
)

// New opens the platform radio with DeviceFactory.
func New(logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE device: %w", NormalizeError(err))
	}
	logger.Debug("BLE device opened")
	return NewWithDevice(dev, logger), nil
}

// NewWithDevice wraps an already opened go-ble device.
func NewWithDevice(dev ble.Device, logger *logrus.Logger) *Adapter {
	scan := func(ctx context.Context, allowDup bool, h func(advertisement)) error {
		return dev.Scan(ctx, allowDup, func(a ble.Advertisement) { h(a) })
	}
	dial := func(ctx context.Context, addr ble.Addr) (gattClient, error) {
		return dev.Dial(ctx, addr)
	}
	return newAdapter(scan, dial, dev.Stop, logger)
}

func newAdapter(scan scanFunc, dial dialFunc, stop func() error, logger *logrus.Logger) *Adapter {
	a := &Adapter{
		logger: logger,
		scan:   scan,
		dial:   dial,
		stop:   stop,
		links:  hashmap.New[adapter.Identity, *link](),
	}
	a.state.Store(int32(adapter.StatePoweredOn))
	return a
}

func (a *Adapter) SetHandler(h adapter.EventHandler) {
	a.handlerMu.Lock()
	a.handler = h
	a.handlerMu.Unlock()
}

func (a *Adapter) State() adapter.State {
	return adapter.State(a.state.Load())
}

func (a *Adapter) IsScanning() bool {
	return a.scanning.Load()
}

// emit delivers an event to the current handler, if any.
func (a *Adapter) emit(fn func(h adapter.EventHandler)) {
	a.handlerMu.RLock()
	h := a.handler
	a.handlerMu.RUnlock()
	if h != nil {
		fn(h)
	}
}

func (a *Adapter) hasHandler() bool {
	a.handlerMu.RLock()
	defer a.handlerMu.RUnlock()
	return a.handler != nil
}

// setState records s and reports a change.
func (a *Adapter) setState(s adapter.State) {
	if adapter.State(a.state.Swap(int32(s))) == s {
		return
	}
	a.logger.WithField("state", s.String()).Info("BLE adapter state changed")
	a.emit(func(h adapter.EventHandler) { h.StateChanged(adapter.StateChanged{State: s}) })
}

// observeError downgrades the adapter state when err says the radio is off.
func (a *Adapter) observeError(err error) {
	if isBluetoothOff(err) {
		a.setState(adapter.StatePoweredOff)
	}
}

// Close stops scanning, drops every link and releases the radio.
func (a *Adapter) Close() error {
	if err := a.StopScan(); err != nil {
		a.logger.WithError(err).Warn("Failed to stop scan on close")
	}
	a.links.Range(func(id adapter.Identity, _ *link) bool {
		if err := a.CancelConnection(id); err != nil {
			a.logger.WithError(err).WithField("peripheral", id).Debug("Failed to cancel link on close")
		}
		return true
	})
	if a.stop == nil {
		return nil
	}
	return NormalizeError(a.stop())
}
