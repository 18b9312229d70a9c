package goble

import (
	"bytes"
	"context"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/pkg/adapter"
)

// request runs fn on its own goroutine holding the link's GATT lock.
func (a *Adapter) request(l *link, name string, fn func(client gattClient)) {
	groutine.Go(context.Background(), name+":"+string(l.id), func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		fn(l.client)
	})
}

func (a *Adapter) DiscoverServices(id adapter.Identity, filter []adapter.UUID) error {
	l, err := a.connectedLink(id)
	if err != nil {
		return err
	}
	bleFilter, err := toBLEUUIDs(filter)
	if err != nil {
		return err
	}

	a.request(l, "ble-discover-services", func(client gattClient) {
		found, err := client.DiscoverServices(bleFilter)
		if err != nil {
			err = NormalizeError(err)
			a.emit(func(h adapter.EventHandler) {
				h.ServicesDiscovered(adapter.ServicesDiscovered{Peripheral: id, Err: err})
			})
			return
		}

		uuids := make([]adapter.UUID, 0, len(found))
		for _, s := range found {
			u := fromBLEUUID(s.UUID)
			l.services[u] = s
			uuids = append(uuids, u)
		}
		a.logger.WithFields(logrus.Fields{"peripheral": id, "services": len(uuids)}).Debug("Services discovered")
		a.emit(func(h adapter.EventHandler) {
			h.ServicesDiscovered(adapter.ServicesDiscovered{Peripheral: id, Services: uuids})
		})
	})
	return nil
}

func (a *Adapter) DiscoverCharacteristics(id adapter.Identity, service adapter.UUID, filter []adapter.UUID) error {
	l, err := a.connectedLink(id)
	if err != nil {
		return err
	}
	bleFilter, err := toBLEUUIDs(filter)
	if err != nil {
		return err
	}

	a.request(l, "ble-discover-characteristics", func(client gattClient) {
		report := func(chars []adapter.DiscoveredCharacteristic, err error) {
			a.emit(func(h adapter.EventHandler) {
				h.CharacteristicsDiscovered(adapter.CharacteristicsDiscovered{
					Peripheral: id, Service: service, Characteristics: chars, Err: err,
				})
			})
		}

		svc, ok := l.services[service]
		if !ok {
			report(nil, &adapter.NotFoundError{Resource: "service", IDs: []string{string(service)}})
			return
		}
		found, err := client.DiscoverCharacteristics(bleFilter, svc)
		if err != nil {
			report(nil, NormalizeError(err))
			return
		}

		chars := make([]adapter.DiscoveredCharacteristic, 0, len(found))
		for _, c := range found {
			u := fromBLEUUID(c.UUID)
			l.chars[charKey{service, u}] = c
			chars = append(chars, adapter.DiscoveredCharacteristic{UUID: u, Properties: adapter.Property(c.Property)})
		}
		report(chars, nil)
	})
	return nil
}

func (a *Adapter) ReadValue(id adapter.Identity, service, char adapter.UUID) error {
	l, err := a.connectedLink(id)
	if err != nil {
		return err
	}

	a.request(l, "ble-read", func(client gattClient) {
		e := adapter.ValueUpdated{Peripheral: id, Service: service, Characteristic: char}
		if c, err := l.characteristic(service, char); err != nil {
			e.Err = err
		} else if v, err := client.ReadCharacteristic(c); err != nil {
			e.Err = NormalizeError(err)
		} else {
			e.Value = bytes.Clone(v)
		}
		a.emit(func(h adapter.EventHandler) { h.ValueUpdated(e) })
	})
	return nil
}

// SetNotify subscribes to or unsubscribes from a characteristic. Indications
// are used when the characteristic supports them but not notifications.
func (a *Adapter) SetNotify(id adapter.Identity, service, char adapter.UUID, enabled bool) error {
	l, err := a.connectedLink(id)
	if err != nil {
		return err
	}

	a.request(l, "ble-set-notify", func(client gattClient) {
		e := adapter.NotificationStateUpdated{Peripheral: id, Service: service, Characteristic: char}
		c, err := l.characteristic(service, char)
		if err == nil {
			err = a.toggleNotify(client, id, service, char, c, enabled)
		}
		if err != nil {
			e.Err = NormalizeError(err)
		} else {
			e.Notifying = enabled
		}
		a.emit(func(h adapter.EventHandler) { h.NotificationStateUpdated(e) })
	})
	return nil
}

func (a *Adapter) toggleNotify(client gattClient, id adapter.Identity, service, char adapter.UUID, c *ble.Characteristic, enabled bool) error {
	props := adapter.Property(c.Property)
	ind := props.Has(adapter.PropIndicate) && !props.Has(adapter.PropNotify)
	if !enabled {
		return client.Unsubscribe(c, ind)
	}
	if c.CCCD == nil {
		// the CCCD handle is only known after descriptor discovery on some stacks
		if _, err := client.DiscoverDescriptors(nil, c); err != nil {
			a.logger.WithError(err).WithField("characteristic", char).Debug("Descriptor discovery failed")
		}
	}
	return client.Subscribe(c, ind, func(data []byte) {
		v := bytes.Clone(data)
		a.emit(func(h adapter.EventHandler) {
			h.ValueUpdated(adapter.ValueUpdated{Peripheral: id, Service: service, Characteristic: char, Value: v})
		})
	})
}

// characteristic looks up a discovered characteristic. Caller holds l.mu.
func (l *link) characteristic(service, char adapter.UUID) (*ble.Characteristic, error) {
	c, ok := l.chars[charKey{service, char}]
	if !ok {
		return nil, &adapter.NotFoundError{Resource: "characteristic", IDs: []string{string(service), string(char)}}
	}
	return c, nil
}
