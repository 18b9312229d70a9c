package goble

import (
	"github.com/go-ble/ble"
)

// gattClient is the part of ble.Client the adapter uses.
type gattClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// advertisement is the part of ble.Advertisement the adapter reads.
type advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []ble.ServiceData
	Services() []ble.UUID
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() ble.Addr
}
