package central

import (
	"bytes"

	"github.com/srg/blecentral/pkg/adapter"
)

// DiscoverServices discovers the peripheral's services, optionally limited to
// filter. An adapter error fails with ErrServiceDiscoveryFailed; a successful
// discovery that yields no services fails with ErrNoServicesForPeripheral.
func (p *Peripheral) DiscoverServices(filter ...adapter.UUID) *Result[[]*Service] {
	desc := operation{kind: opDiscoverServices, peripheral: p.id}
	c := p.owner()
	if c == nil {
		return failed[[]*Service](nil, desc, KindSessionDestroyed, nil)
	}

	return start(c, desc, func(op *operation, resolve func([]*Service), reject func(error)) {
		topics := c.peripheralBus.For(p.id)
		op.onFinish(func() { c.peripheralBus.Release(p.id) })

		op.correlate(topics.Services.Once(nil, func(e adapter.ServicesDiscovered) {
			switch {
			case e.Err != nil:
				reject(op.errorf(KindServiceDiscoveryFailed, e.Err))
			case len(e.Services) == 0:
				reject(op.errorf(KindNoServicesForPeripheral, nil))
			default:
				resolve(p.replaceServices(e.Services))
			}
		}))

		if err := c.adapter.DiscoverServices(p.id, normalizeUUIDs(filter)); err != nil {
			reject(op.errorf(KindServiceDiscoveryFailed, err))
		}
	})
}

// DiscoverCharacteristics discovers the characteristics of svc, which must
// belong to p. Completions for other services of the same peripheral are
// ignored, so discoveries on different services may run concurrently.
func (p *Peripheral) DiscoverCharacteristics(svc *Service, filter ...adapter.UUID) *Result[[]*Characteristic] {
	desc := operation{kind: opDiscoverCharacteristics, peripheral: p.id}
	if svc == nil || svc.peripheral != p {
		return failed[[]*Characteristic](nil, desc, KindCharacteristicDiscoveryFailed,
			&adapter.NotFoundError{Resource: "service", IDs: []string{string(p.id)}})
	}
	desc.service = svc.uuid
	c := p.owner()
	if c == nil {
		return failed[[]*Characteristic](nil, desc, KindSessionDestroyed, nil)
	}

	return start(c, desc, func(op *operation, resolve func([]*Characteristic), reject func(error)) {
		topics := c.peripheralBus.For(p.id)
		op.onFinish(func() { c.peripheralBus.Release(p.id) })

		match := func(e adapter.CharacteristicsDiscovered) bool { return e.Service == svc.uuid }
		op.correlate(topics.Characteristics.Once(match, func(e adapter.CharacteristicsDiscovered) {
			switch {
			case e.Err != nil:
				reject(op.errorf(KindCharacteristicDiscoveryFailed, e.Err))
			case len(e.Characteristics) == 0:
				reject(op.errorf(KindNoCharacteristicsForService, nil))
			default:
				resolve(svc.replaceCharacteristics(e.Characteristics))
			}
		}))

		if err := c.adapter.DiscoverCharacteristics(p.id, svc.uuid, normalizeUUIDs(filter)); err != nil {
			reject(op.errorf(KindCharacteristicDiscoveryFailed, err))
		}
	})
}

// ReadValue reads ch and resolves with the value delivered for it. A
// notification arriving first also completes the read.
func (p *Peripheral) ReadValue(ch *Characteristic) *Result[[]byte] {
	desc := characteristicOp(opReadValue, p, ch)
	if !p.owns(ch) {
		return failed[[]byte](nil, desc, KindReadFailed, characteristicNotFound(p, ch))
	}
	c := p.owner()
	if c == nil {
		return failed[[]byte](nil, desc, KindSessionDestroyed, nil)
	}
	reader, ok := c.adapter.(adapter.ValueReader)
	if !ok {
		return failed[[]byte](c, desc, KindUnsupported, nil)
	}

	return start(c, desc, func(op *operation, resolve func([]byte), reject func(error)) {
		topics := c.peripheralBus.For(p.id)
		op.onFinish(func() { c.peripheralBus.Release(p.id) })

		op.correlate(topics.Values.Once(matchCharacteristic[adapter.ValueUpdated](desc), func(e adapter.ValueUpdated) {
			if e.Err != nil {
				reject(op.errorf(KindReadFailed, e.Err))
				return
			}
			resolve(bytes.Clone(e.Value))
		}))

		if err := reader.ReadValue(p.id, op.service, op.characteristic); err != nil {
			reject(op.errorf(KindReadFailed, err))
		}
	})
}

// SetNotify enables or disables notifications for ch and resolves with the
// notifying state reported by the adapter.
func (p *Peripheral) SetNotify(ch *Characteristic, enabled bool) *Result[bool] {
	desc := characteristicOp(opSetNotify, p, ch)
	if !p.owns(ch) {
		return failed[bool](nil, desc, KindNotifyFailed, characteristicNotFound(p, ch))
	}
	c := p.owner()
	if c == nil {
		return failed[bool](nil, desc, KindSessionDestroyed, nil)
	}
	setter, ok := c.adapter.(adapter.NotifySetter)
	if !ok {
		return failed[bool](c, desc, KindUnsupported, nil)
	}

	return start(c, desc, func(op *operation, resolve func(bool), reject func(error)) {
		topics := c.peripheralBus.For(p.id)
		op.onFinish(func() { c.peripheralBus.Release(p.id) })

		op.correlate(topics.NotifyState.Once(matchCharacteristic[adapter.NotificationStateUpdated](desc),
			func(e adapter.NotificationStateUpdated) {
				if e.Err != nil {
					reject(op.errorf(KindNotifyFailed, e.Err))
					return
				}
				resolve(e.Notifying)
			}))

		if err := setter.SetNotify(p.id, op.service, op.characteristic, enabled); err != nil {
			reject(op.errorf(KindNotifyFailed, err))
		}
	})
}

// Disconnect tears down the link and resolves once the adapter reports the
// disconnection.
func (p *Peripheral) Disconnect() *Result[*Peripheral] {
	desc := operation{kind: opDisconnect, peripheral: p.id}
	c := p.owner()
	if c == nil {
		return failed[*Peripheral](nil, desc, KindSessionDestroyed, nil)
	}
	d, ok := c.adapter.(adapter.Disconnector)
	if !ok {
		return failed[*Peripheral](c, desc, KindUnsupported, nil)
	}

	return start(c, desc, func(op *operation, resolve func(*Peripheral), reject func(error)) {
		match := func(e adapter.Disconnected) bool { return e.Peripheral == p.id }
		op.correlate(c.adapterBus.Disconnected.Once(match, func(adapter.Disconnected) {
			resolve(p)
		}))

		if err := d.CancelConnection(p.id); err != nil {
			reject(op.errorf(KindDisconnectFailed, err))
			return
		}
		if p.State() != Disconnected {
			p.setState(Disconnecting)
		}
	})
}

func characteristicOp(kind opKind, p *Peripheral, ch *Characteristic) operation {
	op := operation{kind: kind, peripheral: p.id}
	if ch != nil {
		op.characteristic = ch.uuid
		if ch.service != nil {
			op.service = ch.service.uuid
		}
	}
	return op
}

func (p *Peripheral) owns(ch *Characteristic) bool {
	return ch != nil && ch.service != nil && ch.service.peripheral == p
}

func characteristicNotFound(p *Peripheral, ch *Characteristic) error {
	ids := []string{string(p.id)}
	if ch != nil {
		ids = append(ids, string(ch.uuid))
	}
	return &adapter.NotFoundError{Resource: "characteristic", IDs: ids}
}

type characteristicEvent interface {
	adapter.ValueUpdated | adapter.NotificationStateUpdated
}

func matchCharacteristic[E characteristicEvent](desc operation) func(E) bool {
	return func(e E) bool {
		var svc, char adapter.UUID
		switch v := any(e).(type) {
		case adapter.ValueUpdated:
			svc, char = v.Service, v.Characteristic
		case adapter.NotificationStateUpdated:
			svc, char = v.Service, v.Characteristic
		}
		return svc == desc.service && char == desc.characteristic
	}
}
