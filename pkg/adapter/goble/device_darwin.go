//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory opens the platform radio. Tests may replace it.
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}
