package adapter

import "strings"

// Identity identifies a remote peripheral across events. On Linux it is the
// device address, on macOS the CoreBluetooth peripheral UUID.
type Identity string

// NormalizeIdentity trims and lowercases s so that identities reported by the
// stack and identities typed by users compare equal.
func NormalizeIdentity(s string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(s)))
}

func (id Identity) String() string {
	return string(id)
}
