// Package scanner implements BLE device discovery on top of the gatt.Stack
// scan surface.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blec/internal/bledb"
	"github.com/srg/blec/internal/gatt"
	"github.com/srg/blec/internal/ringchan"
	"github.com/srg/blec/internal/session"
)

// ProgressCallback is called when the scan phase changes.
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated.
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type   DeviceEventType
	Device *DiscoveredDevice
}

// DiscoveredDevice accumulates what advertisements revealed about one
// device. Updates fold newer advertisements into the same record.
type DiscoveredDevice struct {
	mu sync.RWMutex

	address          string
	name             string
	rssi             int
	connectable      bool
	services         []string
	manufacturerData []byte
	lastSeen         time.Time
	advCount         int
}

func newDiscoveredDevice(adv gatt.Advertisement) *DiscoveredDevice {
	d := &DiscoveredDevice{address: session.NormalizeAddress(adv.Address)}
	d.update(adv)
	return d
}

func (d *DiscoveredDevice) update(adv gatt.Advertisement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if adv.Name != "" {
		d.name = adv.Name
	}
	d.rssi = adv.RSSI
	d.connectable = adv.Connectable
	if len(adv.ManufacturerData) > 0 {
		d.manufacturerData = adv.ManufacturerData
	}
	for _, svc := range adv.Services {
		normalized := bledb.NormalizeUUID(svc)
		known := false
		for _, existing := range d.services {
			if existing == normalized {
				known = true
				break
			}
		}
		if !known {
			d.services = append(d.services, normalized)
		}
	}
	sort.Strings(d.services)
	d.lastSeen = time.Now()
	d.advCount++
}

func (d *DiscoveredDevice) Address() string { return d.address }

func (d *DiscoveredDevice) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

func (d *DiscoveredDevice) RSSI() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rssi
}

func (d *DiscoveredDevice) Connectable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectable
}

// Services returns the advertised service UUIDs, normalized and sorted.
func (d *DiscoveredDevice) Services() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]string, len(d.services))
	copy(result, d.services)
	return result
}

func (d *DiscoveredDevice) ManufacturerData() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.manufacturerData
}

func (d *DiscoveredDevice) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// ScanOptions configures scanning behavior.
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery.
type Scanner struct {
	stack   gatt.Stack
	devices *hashmap.Map[string, *DiscoveredDevice]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// NewScanner creates a scanner on top of the given stack.
func NewScanner(stack gatt.Stack, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		stack:  stack,
		events: ringchan.New[DeviceEvent](100),
		logger: logger,
	}
}

// Scan performs BLE discovery with the provided options and returns the
// devices seen, keyed by normalized address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]*DiscoveredDevice, error) {
	s.devices = hashmap.New[string, *DiscoveredDevice]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()

	err := s.stack.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	devices := make(map[string]*DiscoveredDevice, s.devices.Len())
	s.devices.Range(func(key string, value *DiscoveredDevice) bool {
		devices[key] = value
		return true
	})
	return devices, nil
}

// handleAdvertisement updates an existing record or adds a new device.
func (s *Scanner) handleAdvertisement(adv gatt.Advertisement) {
	deviceID := session.NormalizeAddress(adv.Address)

	dev, existing := s.devices.Get(deviceID)
	if !existing {
		if !s.shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		dev, existing = s.devices.GetOrInsert(deviceID, newDiscoveredDevice(adv))
	}

	event := DeviceEvent{Device: dev}
	if existing {
		dev.update(adv)
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name(),
			"address": dev.Address(),
			"rssi":    dev.RSSI(),
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	s.events.ForceSend(event)
}

// shouldIncludeDevice applies the allow/block/service filters.
func (s *Scanner) shouldIncludeDevice(adv gatt.Advertisement, opts *ScanOptions) bool {
	addr := session.NormalizeAddress(adv.Address)

	for _, blocked := range opts.BlockList {
		if addr == session.NormalizeAddress(blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == session.NormalizeAddress(a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		hasRequired := false
		for _, required := range opts.ServiceUUIDs {
			requiredUUID := bledb.NormalizeUUID(required)
			for _, advUUID := range adv.Services {
				if requiredUUID == bledb.NormalizeUUID(advUUID) {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}

// Events returns a read-only channel of device events.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
