package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/pkg/adapter"
)

// link is one peripheral connection, from dial to disconnect.
type link struct {
	id adapter.Identity

	// mu serializes GATT requests and guards the fields below
	mu       sync.Mutex
	client   gattClient
	services map[adapter.UUID]*ble.Service
	chars    map[charKey]*ble.Characteristic

	cancelDial context.CancelFunc
	connected  atomic.Bool
	requested  atomic.Bool
}

type charKey struct {
	service, characteristic adapter.UUID
}

func newLink(id adapter.Identity) *link {
	return &link{
		id:       id,
		services: make(map[adapter.UUID]*ble.Service),
		chars:    make(map[charKey]*ble.Characteristic),
	}
}

// Connect dials id. The outcome is reported with Connected or ConnectFailed.
func (a *Adapter) Connect(id adapter.Identity, opts adapter.ConnectOptions) error {
	if !a.hasHandler() {
		return adapter.ErrNoHandler
	}
	l := newLink(id)
	if _, loaded := a.links.GetOrInsert(id, l); loaded {
		return adapter.ErrAlreadyConnected
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if opts.DialTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), opts.DialTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	l.cancelDial = cancel

	log := a.logger.WithFields(logrus.Fields{"peripheral": id, "timeout": opts.DialTimeout})
	log.Info("Connecting to BLE peripheral...")

	groutine.Go(context.Background(), "ble-dial:"+string(id), func(context.Context) {
		defer cancel()
		client, err := a.dial(ctx, ble.NewAddr(string(id)))
		if err != nil {
			a.links.Del(id)
			err = NormalizeError(err)
			log.WithError(err).Warn("Failed to dial BLE peripheral")
			a.observeError(err)
			a.emit(func(h adapter.EventHandler) { h.ConnectFailed(adapter.ConnectFailed{Peripheral: id, Err: err}) })
			if l.requested.Load() {
				a.emit(func(h adapter.EventHandler) { h.Disconnected(adapter.Disconnected{Peripheral: id}) })
			}
			return
		}

		l.mu.Lock()
		l.client = client
		l.mu.Unlock()
		l.connected.Store(true)
		log.Info("BLE peripheral connected")
		a.emit(func(h adapter.EventHandler) { h.Connected(adapter.Connected{Peripheral: id}) })

		if l.requested.Load() {
			// cancelled while the dial was completing
			a.disconnect(l)
		}
		a.monitor(l, client)
	})
	return nil
}

// monitor reports the end of the link once the stack closes it.
func (a *Adapter) monitor(l *link, client gattClient) {
	groutine.Go(context.Background(), "ble-monitor:"+string(l.id), func(context.Context) {
		<-client.Disconnected()
		l.connected.Store(false)
		a.links.Del(l.id)

		var err error
		if !l.requested.Load() {
			err = adapter.ErrConnectionLost
		}
		a.logger.WithField("peripheral", l.id).WithField("requested", err == nil).Info("BLE peripheral disconnected")
		a.emit(func(h adapter.EventHandler) { h.Disconnected(adapter.Disconnected{Peripheral: l.id, Err: err}) })
	})
}

// CancelConnection tears the link down. The Disconnected event follows when
// the stack confirms it; a pending dial is aborted instead.
func (a *Adapter) CancelConnection(id adapter.Identity) error {
	l, ok := a.links.Get(id)
	if !ok {
		return adapter.ErrNotConnected
	}
	if !l.requested.CompareAndSwap(false, true) {
		return nil
	}
	if !l.connected.Load() {
		l.cancelDial()
		return nil
	}
	return a.disconnect(l)
}

func (a *Adapter) disconnect(l *link) error {
	l.mu.Lock()
	client := l.client
	l.mu.Unlock()
	if client == nil {
		return nil
	}
	if err := client.CancelConnection(); err != nil {
		err = NormalizeError(err)
		if errors.Is(err, adapter.ErrNotConnected) {
			return nil
		}
		return err
	}
	return nil
}

// connectedLink returns the link of id if it is connected.
func (a *Adapter) connectedLink(id adapter.Identity) (*link, error) {
	l, ok := a.links.Get(id)
	if !ok || !l.connected.Load() {
		return nil, adapter.ErrNotConnected
	}
	return l, nil
}
