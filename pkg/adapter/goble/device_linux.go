//go:build linux

package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"golang.org/x/sys/unix"
)

// DeviceFactory opens the default HCI device. Tests may replace it.
var DeviceFactory = func() (ble.Device, error) {
	dev, err := linux.NewDevice()
	if err != nil && unix.Geteuid() != 0 {
		return nil, fmt.Errorf("%w (raw HCI access usually needs root or CAP_NET_ADMIN)", err)
	}
	if err != nil {
		return nil, err
	}
	return dev, nil
}
