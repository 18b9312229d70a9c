package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/central"
)

// Command-level errors
var (
	// ErrNoPeripheralFound indicates a scan ended without a matching advertisement.
	ErrNoPeripheralFound = errors.New("no matching peripheral found")

	// ErrConnectionLost indicates the peripheral went away while a command was
	// still using it.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError renders err as a single line for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, adapter.ErrBluetoothOff):
		return "Bluetooth is turned off, enable it and try again"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the peripheral"
	}

	var ce *central.Error
	if !errors.As(err, &ce) {
		return err.Error()
	}

	switch ce.Kind {
	case central.KindAdapterNotReady:
		return "Bluetooth adapter is not powered on"
	case central.KindScanAlreadyInProgress:
		return "another scan is already running"
	case central.KindConnectFailed:
		return withCause(fmt.Sprintf("could not connect to %s", ce.Peripheral), ce)
	case central.KindNoServicesForPeripheral:
		return fmt.Sprintf("%s exposes no matching services", ce.Peripheral)
	case central.KindNoCharacteristicsForService:
		return fmt.Sprintf("service %s of %s has no matching characteristics", ce.Service, ce.Peripheral)
	case central.KindUnsupported:
		return "the Bluetooth adapter does not support this operation"
	case central.KindOperationCancelled:
		return "operation cancelled"
	default:
		return ce.Error()
	}
}

func withCause(msg string, ce *central.Error) string {
	if cause := errors.Unwrap(ce); cause != nil {
		return msg + ": " + cause.Error()
	}
	return msg
}
