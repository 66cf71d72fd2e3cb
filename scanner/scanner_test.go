package scanner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blec/internal/testutils"
	"github.com/srg/blec/scanner"
)

func newScanOptions(d time.Duration) *scanner.ScanOptions {
	opts := scanner.DefaultScanOptions()
	opts.Duration = d
	return opts
}

func TestScanCollectsDevices(t *testing.T) {
	// GOAL: Verify a scan surfaces every advertising peripheral exactly once
	//
	// TEST SCENARIO: Two peripherals advertising → scan → both devices returned under normalized addresses

	helper := testutils.NewTestHelper(t)
	stack := testutils.NewFakeStack()
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:01").
		WithName("HeartRate").WithRSSI(-40).WithService("180D").Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:02").
		WithName("Thermometer").WithRSSI(-60).WithService("1809").Build())

	s := scanner.NewScanner(stack, helper.Logger)

	var phases []string
	devices, err := s.Scan(t.Context(), newScanOptions(50*time.Millisecond), func(phase string) {
		phases = append(phases, phase)
	})

	require.NoError(t, err, "scan MUST succeed")
	require.Len(t, devices, 2, "MUST discover both devices")

	hr := devices["AA:BB:CC:DD:EE:01"]
	require.NotNil(t, hr, "MUST key devices by normalized address")
	assert.Equal(t, "HeartRate", hr.Name(), "name MUST come from the advertisement")
	assert.Equal(t, -40, hr.RSSI(), "RSSI MUST come from the advertisement")
	assert.Equal(t, []string{"180d"}, hr.Services(), "services MUST be normalized")
	assert.False(t, hr.LastSeen().IsZero(), "last seen MUST be stamped")

	assert.Equal(t, []string{"Scanning", "Processing results"}, phases, "progress phases MUST be reported in order")
}

func TestScanServiceFilter(t *testing.T) {
	// GOAL: Verify the service UUID filter keeps only matching advertisers

	helper := testutils.NewTestHelper(t)
	stack := testutils.NewFakeStack()
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:01").
		WithName("HeartRate").WithService("180D").Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:02").
		WithName("Thermometer").WithService("1809").Build())

	s := scanner.NewScanner(stack, helper.Logger)

	opts := newScanOptions(50 * time.Millisecond)
	opts.ServiceUUIDs = []string{"0000180d-0000-1000-8000-00805f9b34fb"}
	devices, err := s.Scan(t.Context(), opts, nil)

	require.NoError(t, err, "scan MUST succeed")
	require.Len(t, devices, 1, "only the heart rate device MUST pass the filter")
	assert.Contains(t, devices, "AA:BB:CC:DD:EE:01", "filter MUST match the normalized service UUID")
}

func TestScanAllowAndBlockLists(t *testing.T) {
	// GOAL: Verify allow and block lists gate discovery by address

	helper := testutils.NewTestHelper(t)
	stack := testutils.NewFakeStack()
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:01").Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:02").Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:03").Build())

	s := scanner.NewScanner(stack, helper.Logger)

	opts := newScanOptions(50 * time.Millisecond)
	opts.AllowList = []string{"AA:BB:CC:DD:EE:01", "aa:bb:cc:dd:ee:02"}
	opts.BlockList = []string{"AA:BB:CC:DD:EE:02"}
	devices, err := s.Scan(t.Context(), opts, nil)

	require.NoError(t, err, "scan MUST succeed")
	require.Len(t, devices, 1, "block list MUST win over allow list")
	assert.Contains(t, devices, "AA:BB:CC:DD:EE:01", "allowed device MUST be present")
}

func TestScanEmitsEvents(t *testing.T) {
	// GOAL: Verify new discoveries surface on the event channel

	helper := testutils.NewTestHelper(t)
	stack := testutils.NewFakeStack()
	stack.AddPeripheral(testutils.NewPeripheralBuilder("aa:bb:cc:dd:ee:01").WithName("HeartRate").Build())

	s := scanner.NewScanner(stack, helper.Logger)

	_, err := s.Scan(t.Context(), newScanOptions(50*time.Millisecond), nil)
	require.NoError(t, err, "scan MUST succeed")

	select {
	case ev := <-s.Events():
		assert.Equal(t, scanner.EventNew, ev.Type, "first sighting MUST be a new-device event")
		assert.Equal(t, "AA:BB:CC:DD:EE:01", ev.Device.Address(), "event MUST carry the device")
	case <-time.After(time.Second):
		t.Fatal("discovery event MUST be emitted")
	}
}
