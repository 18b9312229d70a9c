//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

// DeviceFactory reports that no radio backend exists for this platform.
var DeviceFactory = func() (ble.Device, error) {
	return nil, fmt.Errorf("BLE is not supported on %s", runtime.GOOS)
}
