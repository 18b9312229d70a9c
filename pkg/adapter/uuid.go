package adapter

import (
	"fmt"
	"strings"
)

// UUID is a normalized Bluetooth UUID: lowercase hex without dashes or "0x"
// prefix. UUIDs built on the Bluetooth SIG base are kept in their 16-bit form.
type UUID string

const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts any common textual UUID form into a UUID.
//
//	"0x2902"                               -> "2902"
//	"00002902-0000-1000-8000-00805F9B34FB" -> "2902"
//	"6E400001-B5A3-F393-E0A9-E50E24DCCA9E" -> "6e400001b5a3f393e0a9e50e24dcca9e"
func NormalizeUUID(s string) UUID {
	u := strings.ToLower(strings.TrimSpace(s))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return UUID(u[4:8])
	}
	return UUID(u)
}

// NormalizeUUIDs normalizes every element of uuids, preserving order.
func NormalizeUUIDs(uuids []string) []UUID {
	if uuids == nil {
		return nil
	}
	out := make([]UUID, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// ParseUUID normalizes s and checks that it is a 16, 32 or 128-bit hex UUID.
func ParseUUID(s string) (UUID, error) {
	u := NormalizeUUID(s)
	switch len(u) {
	case 4, 8, 32:
	default:
		return "", fmt.Errorf("invalid UUID %q: unexpected length %d", s, len(u))
	}
	for _, r := range u {
		if !isHex(r) {
			return "", fmt.Errorf("invalid UUID %q: non-hex character %q", s, r)
		}
	}
	return u, nil
}

// ParseUUIDs parses every element of uuids and reports the first invalid one.
func ParseUUIDs(uuids ...string) ([]UUID, error) {
	out := make([]UUID, 0, len(uuids))
	for i, s := range uuids {
		u, err := ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("UUID at index %d: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func (u UUID) String() string {
	return string(u)
}

// Short returns the first eight characters of a 128-bit UUID, for display.
func (u UUID) Short() string {
	if len(u) > 8 {
		return string(u[:8])
	}
	return string(u)
}

// ContainsUUID reports whether u is present in list.
func ContainsUUID(list []UUID, u UUID) bool {
	for _, v := range list {
		if v == u {
			return true
		}
	}
	return false
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}
