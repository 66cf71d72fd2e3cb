package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blec/internal/gatt"
	"github.com/srg/blec/internal/session"
	"github.com/srg/blec/internal/testutils"
	"github.com/srg/blec/scanner"
)

func TestFormatVersion(t *testing.T) {
	// GOAL: Verify version strings get the 'v' prefix only when numeric

	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"), "numeric version MUST gain the prefix")
	assert.Equal(t, "dev", formatVersion("dev"), "non-numeric version MUST pass through")
	assert.Equal(t, "", formatVersion(""), "empty version MUST pass through")
}

func TestFormatUserError(t *testing.T) {
	// GOAL: Verify internal errors map to actionable terminal messages

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"not connected", session.ErrNotConnected, "device is not connected; run 'blec scan' and connect first"},
		{"disconnected", session.ErrDisconnected, "connection lost while the operation was in progress"},
		{"permission", session.ErrPermissionDenied, "Bluetooth permission denied; check system privacy settings"},
		{"overwritten", session.ErrOperationOverwritten, "operation was superseded by a newer request on the same characteristic"},
		{"not found", &session.NotFoundError{Resource: "device", Key: "AA"}, `device "AA" not found`},
		{"passthrough", errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatUserError(tc.err), "message MUST match")
		})
	}

	wrapped := &session.PlatformStatusError{Op: "read", Status: gatt.StatusReadNotPermitted}
	assert.Contains(t, FormatUserError(wrapped), "read failed", "platform errors MUST pass through with context")
}

func TestParseWriteValue(t *testing.T) {
	// GOAL: Verify write payload parsing for text and hex inputs

	data, err := parseWriteValue("hello", false)
	require.NoError(t, err, "text MUST parse")
	assert.Equal(t, []byte("hello"), data, "text MUST pass through as UTF-8")

	data, err = parseWriteValue("0a0B0c", true)
	require.NoError(t, err, "hex MUST parse")
	assert.Equal(t, []byte{0x0a, 0x0b, 0x0c}, data, "hex MUST decode case insensitively")

	data, err = parseWriteValue("0x0a 0b", true)
	require.NoError(t, err, "0x prefix and spaces MUST be tolerated")
	assert.Equal(t, []byte{0x0a, 0x0b}, data, "cleaned hex MUST decode")

	_, err = parseWriteValue("zz", true)
	assert.Error(t, err, "invalid hex MUST be rejected")
}

func TestCollectScanResultsOrdering(t *testing.T) {
	// GOAL: Verify scan output sorts by signal strength, then address

	helper := testutils.NewTestHelper(t)
	stack := testutils.NewFakeStack()
	stack.AddPeripheral(testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:03").WithRSSI(-40).Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:02").WithRSSI(-70).Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:01").WithRSSI(-70).Build())

	s := scanner.NewScanner(stack, helper.Logger)
	devices, err := s.Scan(t.Context(), &scanner.ScanOptions{Duration: 50 * time.Millisecond}, nil)
	require.NoError(t, err, "scan MUST succeed")

	results := collectScanResults(devices)

	require.Len(t, results, 3, "MUST keep every device")
	assert.Equal(t, -40, results[0].RSSI, "strongest signal MUST sort first")
	assert.Equal(t, "AA:BB:CC:DD:EE:01", results[1].Address, "equal RSSI MUST sort by address")
	assert.Equal(t, "AA:BB:CC:DD:EE:02", results[2].Address, "equal RSSI MUST sort by address")
}

func TestPrintScanTable(t *testing.T) {
	// GOAL: Verify the scan table renders aligned columns and the summary line
	//
	// TEST SCENARIO: Scan two peripherals (one unnamed) → render → table matches with dash placeholders

	color.NoColor = true
	helper := testutils.NewTestHelper(t)
	stack := testutils.NewFakeStack()
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:01").
		WithName("HeartRate").WithRSSI(-40).WithService("180D").Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:02").WithRSSI(-70).Build())

	s := scanner.NewScanner(stack, helper.Logger)
	devices, err := s.Scan(t.Context(), &scanner.ScanOptions{Duration: 50 * time.Millisecond}, nil)
	require.NoError(t, err, "scan MUST succeed")

	var buf bytes.Buffer
	printScanTable(&buf, devices)

	testutils.NewTextAsserter(t).
		WithOptions(testutils.WithIgnoreTrailingWhitespace(true)).
		Assert(buf.String(), `ADDRESS            NAME       RSSI  SERVICES
AA:BB:CC:DD:EE:01  HeartRate  -40   180d
AA:BB:CC:DD:EE:02  -          -70   -

2 device(s) found
`)
}

func TestPrintScanTableEmpty(t *testing.T) {
	// GOAL: Verify an empty result set prints the no-devices message

	var buf bytes.Buffer
	printScanTable(&buf, nil)

	assert.Equal(t, "No devices found\n", buf.String(), "empty scan MUST print the placeholder")
}
