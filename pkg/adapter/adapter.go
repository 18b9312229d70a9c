package adapter

import "time"

// ScanOptions tune a scan request.
type ScanOptions struct {
	// AllowDuplicates reports every advertisement instead of one per peripheral.
	AllowDuplicates bool
}

// ConnectOptions tune a connect request.
type ConnectOptions struct {
	// DialTimeout bounds the platform dial; zero leaves it to the stack.
	DialTimeout time.Duration
}

// EventHandler receives adapter events. Implementations must not block: the
// adapter may call them from its own goroutines.
type EventHandler interface {
	StateChanged(e StateChanged)
	PeripheralDiscovered(e PeripheralDiscovered)
	Connected(e Connected)
	ConnectFailed(e ConnectFailed)
	Disconnected(e Disconnected)
	ServicesDiscovered(e ServicesDiscovered)
	CharacteristicsDiscovered(e CharacteristicsDiscovered)
	ValueUpdated(e ValueUpdated)
	NotificationStateUpdated(e NotificationStateUpdated)
}

// Adapter is the request side of the platform stack. Every request returns
// immediately; outcomes arrive through the installed EventHandler.
type Adapter interface {
	// SetHandler installs the event sink. Passing nil detaches it.
	SetHandler(h EventHandler)

	State() State
	IsScanning() bool

	StartScan(services []UUID, opts ScanOptions) error
	StopScan() error

	Connect(id Identity, opts ConnectOptions) error
	DiscoverServices(id Identity, filter []UUID) error
	DiscoverCharacteristics(id Identity, service UUID, filter []UUID) error
}

// Disconnector is implemented by adapters able to tear down a link on request.
// Completion is reported with a Disconnected event.
type Disconnector interface {
	CancelConnection(id Identity) error
}

// ValueReader is implemented by adapters able to read characteristic values.
// Completion is reported with a ValueUpdated event.
type ValueReader interface {
	ReadValue(id Identity, service, characteristic UUID) error
}

// NotifySetter is implemented by adapters able to toggle notifications.
// Completion is reported with a NotificationStateUpdated event.
type NotifySetter interface {
	SetNotify(id Identity, service, characteristic UUID, enabled bool) error
}
