package bledb

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/srg/blecentral/pkg/adapter"
)

// ValueDecoder renders a characteristic value for humans.
type ValueDecoder func([]byte) (string, error)

var decoders = map[adapter.UUID]ValueDecoder{
	"2a00": decodeString,
	"2a19": decodeBatteryLevel,
	"2a24": decodeString,
	"2a25": decodeString,
	"2a26": decodeString,
	"2a27": decodeString,
	"2a28": decodeString,
	"2a29": decodeString,
	"2a37": decodeHeartRate,
	"2a38": decodeBodySensorLocation,
}

var bodySensorLocations = []string{"Other", "Chest", "Wrist", "Finger", "Hand", "Ear Lobe", "Foot"}

var companies = map[uint16]string{
	0x0006: "Microsoft",
	0x004c: "Apple, Inc.",
	0x0059: "Nordic Semiconductor ASA",
	0x0075: "Samsung Electronics Co. Ltd.",
	0x00e0: "Google",
	0x0131: "Cypress Semiconductor",
	0x02e5: "Espressif Inc.",
}

// DecodeValue renders value of a well-known characteristic. It returns
// ("", nil) for characteristics it does not know.
func DecodeValue(uuid string, value []byte) (string, error) {
	decode, ok := decoders[adapter.NormalizeUUID(uuid)]
	if !ok {
		return "", nil
	}
	return decode(value)
}

// CompanyID extracts the little-endian company identifier that leads
// manufacturer specific advertising data.
func CompanyID(manufacturerData []byte) (uint16, bool) {
	if len(manufacturerData) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(manufacturerData[:2]), true
}

// LookupCompany returns the assigned name of a company identifier, or "".
func LookupCompany(id uint16) string {
	return companies[id]
}

func decodeString(value []byte) (string, error) {
	if !utf8.Valid(value) {
		return "", fmt.Errorf("invalid UTF-8 string value")
	}
	return strings.TrimRight(string(value), "\x00"), nil
}

func decodeBatteryLevel(value []byte) (string, error) {
	if len(value) != 1 {
		return "", fmt.Errorf("battery level must be 1 byte, got %d", len(value))
	}
	if value[0] > 100 {
		return "", fmt.Errorf("battery level %d out of range", value[0])
	}
	return fmt.Sprintf("%d%%", value[0]), nil
}

// decodeHeartRate reads the measurement value; bit 0 of the flags selects
// a uint16 instead of a uint8.
func decodeHeartRate(value []byte) (string, error) {
	if len(value) < 2 {
		return "", fmt.Errorf("heart rate measurement too short: %d bytes", len(value))
	}
	if value[0]&0x01 == 0 {
		return fmt.Sprintf("%d bpm", value[1]), nil
	}
	if len(value) < 3 {
		return "", fmt.Errorf("heart rate measurement too short for uint16 value: %d bytes", len(value))
	}
	return fmt.Sprintf("%d bpm", binary.LittleEndian.Uint16(value[1:3])), nil
}

func decodeBodySensorLocation(value []byte) (string, error) {
	if len(value) != 1 {
		return "", fmt.Errorf("body sensor location must be 1 byte, got %d", len(value))
	}
	if int(value[0]) >= len(bodySensorLocations) {
		return "Reserved", nil
	}
	return bodySensorLocations[value[0]], nil
}
