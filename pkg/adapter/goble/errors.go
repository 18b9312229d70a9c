package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blecentral/pkg/adapter"
)

// NormalizeError maps known go-ble error messages onto the adapter
// sentinels, keeping the original error text.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", adapter.ErrBluetoothOff, err)
	case strings.Contains(msg, "device already connected"):
		return &adapter.LinkError{State: adapter.AlreadyConnected, Msg: err.Error()}
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return &adapter.LinkError{State: adapter.NotConnected, Msg: err.Error()}
	default:
		return err
	}
}

func isBluetoothOff(err error) bool {
	return errors.Is(err, adapter.ErrBluetoothOff)
}
