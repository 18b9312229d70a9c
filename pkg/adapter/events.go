package adapter

// Event payloads carried from the adapter into the session. Errors reported by
// the stack travel inside the payload; they never terminate a stream.

// StateChanged is emitted whenever the adapter power/authorization state changes.
type StateChanged struct {
	State State
}

// PeripheralDiscovered is emitted for every advertisement received while scanning.
type PeripheralDiscovered struct {
	Peripheral    Identity
	Advertisement Advertisement
	RSSI          int
}

type Connected struct {
	Peripheral Identity
}

type ConnectFailed struct {
	Peripheral Identity
	Err        error
}

// Disconnected carries a nil Err when the link was closed on request.
type Disconnected struct {
	Peripheral Identity
	Err        error
}

// ServicesDiscovered completes a DiscoverServices request. A nil Services
// slice means the stack reported no list at all.
type ServicesDiscovered struct {
	Peripheral Identity
	Services   []UUID
	Err        error
}

// DiscoveredCharacteristic describes one characteristic found on a service.
type DiscoveredCharacteristic struct {
	UUID       UUID
	Properties Property
}

// CharacteristicsDiscovered completes a DiscoverCharacteristics request for Service.
type CharacteristicsDiscovered struct {
	Peripheral      Identity
	Service         UUID
	Characteristics []DiscoveredCharacteristic
	Err             error
}

// ValueUpdated reports a read response or a notification/indication.
type ValueUpdated struct {
	Peripheral     Identity
	Service        UUID
	Characteristic UUID
	Value          []byte
	Err            error
}

// NotificationStateUpdated completes a SetNotify request.
type NotificationStateUpdated struct {
	Peripheral     Identity
	Service        UUID
	Characteristic UUID
	Notifying      bool
	Err            error
}
