package bledb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blec/internal/bledb"
)

func TestNormalizeUUID(t *testing.T) {
	// GOAL: Verify every accepted input form collapses to the canonical short form

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"short lowercase", "2a19", "2a19"},
		{"short uppercase", "2A19", "2a19"},
		{"0x prefix", "0x2A19", "2a19"},
		{"padded", " 2a19 ", "2a19"},
		{"sig base long form", "00002a19-0000-1000-8000-00805f9b34fb", "2a19"},
		{"sig base no dashes", "00002A1900001000800000805F9B34FB", "2a19"},
		{"vendor 128-bit", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", "6e400001b5a3f393e0a9e50e24dcca9e"},
		{"non-base prefix stays long", "10002a37-0000-1000-8000-00805f9b34fb", "10002a3700001000800000805f9b34fb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, bledb.NormalizeUUID(tc.in), "normalized form MUST match")
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	// GOAL: Verify batch normalization preserves order

	got := bledb.NormalizeUUIDs([]string{"2A19", "0000180d-0000-1000-8000-00805f9b34fb"})
	assert.Equal(t, []string{"2a19", "180d"}, got, "each element MUST be normalized")
}

func TestValidateUUID(t *testing.T) {
	// GOAL: Verify validation accepts 16/32/128-bit forms and rejects garbage

	got, err := bledb.ValidateUUID("2A19", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E")
	require.NoError(t, err, "valid UUIDs MUST pass")
	assert.Equal(t, []string{"2a19", "6e400001b5a3f393e0a9e50e24dcca9e"}, got, "MUST return normalized forms")

	_, err = bledb.ValidateUUID()
	assert.Error(t, err, "empty input MUST be rejected")

	_, err = bledb.ValidateUUID("")
	assert.Error(t, err, "empty UUID MUST be rejected")

	_, err = bledb.ValidateUUID("zz19")
	assert.Error(t, err, "non-hex UUID MUST be rejected")

	_, err = bledb.ValidateUUID("123")
	assert.Error(t, err, "odd-length UUID MUST be rejected")
}

func TestLookups(t *testing.T) {
	// GOAL: Verify assigned-number lookups normalize before resolving

	assert.Equal(t, "Battery Service", bledb.LookupService("0000180F-0000-1000-8000-00805F9B34FB"), "long form MUST resolve")
	assert.Equal(t, "Heart Rate Measurement", bledb.LookupCharacteristic("2A37"), "uppercase MUST resolve")
	assert.Equal(t, "Client Characteristic Configuration", bledb.LookupDescriptor("2902"), "descriptor MUST resolve")
	assert.Equal(t, "", bledb.LookupService("ffff"), "unknown UUID MUST resolve to empty")
}

func TestShortenUUID(t *testing.T) {
	// GOAL: Verify display truncation keeps short UUIDs intact

	assert.Equal(t, "2a19", bledb.ShortenUUID("2a19"), "short UUID MUST pass through")
	assert.Equal(t, "6e400001", bledb.ShortenUUID("6e400001b5a3f393e0a9e50e24dcca9e"), "long UUID MUST truncate to 8")
}
