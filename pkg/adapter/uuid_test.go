package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected UUID
	}{
		{name: "16-bit UUID", input: "2902", expected: "2902"},
		{name: "16-bit UUID uppercase", input: "180D", expected: "180d"},
		{name: "16-bit UUID with 0x prefix", input: "0x2902", expected: "2902"},
		{name: "16-bit UUID with 0X prefix", input: "0X2902", expected: "2902"},
		{name: "SIG base UUID with dashes", input: "00002902-0000-1000-8000-00805f9b34fb", expected: "2902"},
		{name: "SIG base UUID without dashes", input: "0000290200001000800000805f9b34fb", expected: "2902"},
		{name: "SIG base UUID uppercase", input: "0000180D-0000-1000-8000-00805F9B34FB", expected: "180d"},
		{name: "custom 128-bit UUID", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "custom 128-bit UUID with leading zeros", input: "00001234-5678-90ab-cdef-1234567890ab", expected: "00001234567890abcdef1234567890ab"},
		{name: "32-bit UUID", input: "12345678", expected: "12345678"},
		{name: "surrounding whitespace", input: "  180f ", expected: "180f"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestParseUUID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    UUID
		wantErr string
	}{
		{name: "valid 16-bit", input: "180D", want: "180d"},
		{name: "valid 128-bit", input: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", want: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "empty", input: "", wantErr: "unexpected length 0"},
		{name: "odd length", input: "18d", wantErr: "unexpected length 3"},
		{name: "non hex", input: "18zz", wantErr: "non-hex character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUUID(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUUIDs(t *testing.T) {
	got, err := ParseUUIDs("180d", "0x180F")
	require.NoError(t, err)
	assert.Equal(t, []UUID{"180d", "180f"}, got)

	_, err = ParseUUIDs("180d", "xyz1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")
}

func TestUUIDShort(t *testing.T) {
	assert.Equal(t, "180d", UUID("180d").Short())
	assert.Equal(t, "6e400001", UUID("6e400001b5a3f393e0a9e50e24dcca9e").Short())
}

func TestAdvertisementMatchesAny(t *testing.T) {
	adv := Advertisement{
		Services:    []UUID{"180d"},
		ServiceData: map[UUID][]byte{"feaa": {0x01}},
	}

	assert.True(t, adv.MatchesAny(nil), "empty filter MUST match every advertisement")
	assert.True(t, adv.MatchesAny([]UUID{"180f", "180d"}))
	assert.True(t, adv.MatchesAny([]UUID{"feaa"}), "service data UUIDs MUST count as advertised services")
	assert.False(t, adv.MatchesAny([]UUID{"180f"}))
}
