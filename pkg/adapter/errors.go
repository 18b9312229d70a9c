package adapter

import (
	"errors"
	"fmt"
)

// NotFoundError represents a request for a GATT resource the stack does not know.
type NotFoundError struct {
	Resource string // "peripheral", "service", "characteristic"
	IDs      []string
}

func (e *NotFoundError) Error() string {
	switch len(e.IDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.IDs[0])
	default:
		return fmt.Sprintf("%s %q not found in %q", e.Resource, e.IDs[len(e.IDs)-1], e.IDs[0])
	}
}

// LinkState names a link-level failure.
type LinkState string

const (
	NotConnected     LinkState = "not_connected"
	AlreadyConnected LinkState = "already_connected"
	ConnectionLost   LinkState = "connection_lost"
)

// LinkError represents a link-level problem reported by the stack.
type LinkError struct {
	State LinkState
	Msg   string
}

func (e *LinkError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is compares LinkError values by State.
func (e *LinkError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*LinkError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &LinkError{State: NotConnected}
	ErrAlreadyConnected = &LinkError{State: AlreadyConnected}
	ErrConnectionLost   = &LinkError{State: ConnectionLost}
)

var (
	ErrBluetoothOff   = errors.New("bluetooth is turned off")
	ErrScanInProgress = errors.New("scan already in progress")
	ErrNoHandler      = errors.New("no event handler installed")
)
