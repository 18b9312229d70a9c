package goble

import (
	"fmt"

	"github.com/go-ble/ble"

	"github.com/srg/blecentral/pkg/adapter"
)

func convertAdvertisement(a advertisement) adapter.PeripheralDiscovered {
	adv := adapter.Advertisement{
		LocalName:        a.LocalName(),
		ManufacturerData: a.ManufacturerData(),
		TxPowerLevel:     a.TxPowerLevel(),
		Connectable:      a.Connectable(),
	}
	for _, u := range a.Services() {
		adv.Services = append(adv.Services, fromBLEUUID(u))
	}
	if sd := a.ServiceData(); len(sd) > 0 {
		adv.ServiceData = make(map[adapter.UUID][]byte, len(sd))
		for _, d := range sd {
			adv.ServiceData[fromBLEUUID(d.UUID)] = d.Data
		}
	}
	return adapter.PeripheralDiscovered{
		Peripheral:    adapter.NormalizeIdentity(a.Addr().String()),
		Advertisement: adv,
		RSSI:          a.RSSI(),
	}
}

func fromBLEUUID(u ble.UUID) adapter.UUID {
	return adapter.NormalizeUUID(u.String())
}

func toBLEUUIDs(uuids []adapter.UUID) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(uuids))
	for _, u := range uuids {
		b, err := ble.Parse(string(u))
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", u, err)
		}
		out = append(out, b)
	}
	return out, nil
}
