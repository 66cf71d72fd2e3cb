// Package blec is the public client surface for BLE central operations:
// scanning, per-device sessions, characteristic I/O and notification
// streams.
package blec

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/srg/blec/internal/bledb"
	"github.com/srg/blec/internal/gatt"
	"github.com/srg/blec/internal/session"
	"github.com/srg/blec/pkg/config"
	"github.com/srg/blec/scanner"
)

// Client owns the session registry and the event plumbing for one GATT
// stack. All methods are safe for concurrent use.
type Client struct {
	stack    gatt.Stack
	gate     gatt.PermissionGate
	cfg      *config.Config
	logger   *logrus.Logger
	registry *session.Registry
	notifier *session.Notifier
	router   *session.Router
	scanner  *scanner.Scanner
}

// New wires a Client on top of the given stack and registers itself as the
// stack's callback sink.
func New(stack gatt.Stack, cfg *config.Config, logger *logrus.Logger) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}

	notifier := session.NewNotifier(logger)
	router := session.NewRouter(logger)
	registry := session.NewRegistry(stack, notifier, logger)
	stack.SetCallbacks(session.NewDispatcher(registry, router, logger))

	return &Client{
		stack:    stack,
		gate:     gatt.AllowAll{},
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		notifier: notifier,
		router:   router,
		scanner:  scanner.NewScanner(stack, logger),
	}
}

// SetPermissionGate replaces the gate consulted before radio operations.
func (c *Client) SetPermissionGate(gate gatt.PermissionGate) {
	if gate == nil {
		gate = gatt.AllowAll{}
	}
	c.gate = gate
}

func (c *Client) checkPermission() error {
	if !c.gate.Allowed() {
		return session.ErrPermissionDenied
	}
	return nil
}

// Scan discovers nearby devices. Every connectable device seen gets a
// registered (disconnected) session so it can be connected without a second
// scan.
func (c *Client) Scan(ctx context.Context, opts *scanner.ScanOptions, progress scanner.ProgressCallback) (map[string]*scanner.DiscoveredDevice, error) {
	if err := c.checkPermission(); err != nil {
		return nil, err
	}
	devices, err := c.scanner.Scan(ctx, opts, progress)
	if err != nil {
		return nil, err
	}
	for addr, dev := range devices {
		if dev.Connectable() {
			c.registry.GetOrCreate(addr)
		}
	}
	return devices, nil
}

// ScanEvents returns the live discovery event channel.
func (c *Client) ScanEvents() <-chan scanner.DeviceEvent {
	return c.scanner.Events()
}

// RegisterDevice registers a session for an address known out of band.
func (c *Client) RegisterDevice(address string) {
	c.registry.GetOrCreate(address)
}

// Connect establishes a connection to a registered device and blocks until
// the stack reports the outcome. Unknown addresses fail with NotFound; use
// Scan or RegisterDevice first.
func (c *Client) Connect(ctx context.Context, address string) error {
	if err := c.checkPermission(); err != nil {
		return err
	}
	sess, err := c.registry.Get(address)
	if err != nil {
		return err
	}
	return sess.Connect(ctx)
}

// Disconnect tears down the connection. It always succeeds: an address with
// no registered session, like a never-connected one, is already disconnected.
func (c *Client) Disconnect(address string) {
	sess, err := c.registry.Get(address)
	if err != nil {
		c.logger.WithField("address", address).Debug("Disconnect for an unregistered device, nothing to do")
		return
	}
	sess.Disconnect()
}

// DisconnectAll tears down every session. Used on shutdown.
func (c *Client) DisconnectAll() {
	c.registry.DisconnectAll()
}

// IsConnected reports whether the device currently holds a live connection.
func (c *Client) IsConnected(address string) bool {
	sess, err := c.registry.Get(address)
	if err != nil {
		return false
	}
	return sess.IsConnected()
}

// DiscoverServices runs GATT discovery on a connected device.
func (c *Client) DiscoverServices(ctx context.Context, address string) ([]*gatt.Service, error) {
	if err := c.checkPermission(); err != nil {
		return nil, err
	}
	sess, err := c.registry.Get(address)
	if err != nil {
		return nil, err
	}
	return sess.DiscoverServices(ctx)
}

// Read reads a characteristic value.
func (c *Client) Read(ctx context.Context, address, charUUID string) ([]byte, error) {
	if err := c.checkPermission(); err != nil {
		return nil, err
	}
	sess, err := c.registry.Get(address)
	if err != nil {
		return nil, err
	}
	return sess.Read(ctx, charUUID)
}

// Write writes a characteristic value.
func (c *Client) Write(ctx context.Context, address, charUUID string, data []byte, withResponse bool) error {
	if err := c.checkPermission(); err != nil {
		return err
	}
	sess, err := c.registry.Get(address)
	if err != nil {
		return err
	}
	return sess.Write(ctx, charUUID, data, withResponse)
}

// Subscribe enables notifications for a characteristic.
func (c *Client) Subscribe(ctx context.Context, address, charUUID string) error {
	if err := c.checkPermission(); err != nil {
		return err
	}
	sess, err := c.registry.Get(address)
	if err != nil {
		return err
	}
	return sess.Subscribe(ctx, charUUID)
}

// Unsubscribe disables notifications for a characteristic.
func (c *Client) Unsubscribe(ctx context.Context, address, charUUID string) error {
	if err := c.checkPermission(); err != nil {
		return err
	}
	sess, err := c.registry.Get(address)
	if err != nil {
		return err
	}
	return sess.Unsubscribe(ctx, charUUID)
}

// RequestMTU negotiates the link MTU and returns the negotiated value.
func (c *Client) RequestMTU(ctx context.Context, address string, mtu int) (int, error) {
	if err := c.checkPermission(); err != nil {
		return 0, err
	}
	sess, err := c.registry.Get(address)
	if err != nil {
		return 0, err
	}
	return sess.RequestMTU(ctx, mtu)
}

// Events registers and returns the process-wide lifecycle event channel.
// Calling it again replaces the previous channel.
func (c *Client) Events() <-chan session.LifecycleEvent {
	return c.notifier.Sink(c.cfg.EventBuffer)
}

// Notifications attaches and returns the notification stream for a device.
// Calling it again for the same address replaces the previous channel.
func (c *Client) Notifications(address string) <-chan session.Notification {
	return c.router.Attach(address, c.cfg.NotifyBuffer)
}

// DetachNotifications closes the device's notification stream.
func (c *Client) DetachNotifications(address string) {
	c.router.Detach(address)
}

// CharacteristicSnapshot describes one characteristic for presentation.
type CharacteristicSnapshot struct {
	UUID        string   `json:"uuid"`
	KnownName   string   `json:"known_name,omitempty"`
	Properties  []string `json:"properties"`
	Descriptors []string `json:"descriptors,omitempty"`
}

// ServiceSnapshot describes one service for presentation.
type ServiceSnapshot struct {
	UUID            string                   `json:"uuid"`
	KnownName       string                   `json:"known_name,omitempty"`
	Characteristics []CharacteristicSnapshot `json:"characteristics"`
}

// DeviceSnapshot is a point-in-time JSON-friendly view of a session.
type DeviceSnapshot struct {
	Address   string            `json:"address"`
	Connected bool              `json:"connected"`
	Services  []ServiceSnapshot `json:"services"`
}

// Snapshot renders the current state of a registered device.
func (c *Client) Snapshot(address string) (*DeviceSnapshot, error) {
	sess, err := c.registry.Get(address)
	if err != nil {
		return nil, err
	}

	snap := &DeviceSnapshot{
		Address:   sess.Address(),
		Connected: sess.IsConnected(),
		Services:  []ServiceSnapshot{},
	}
	for _, svc := range sess.Services() {
		svcSnap := ServiceSnapshot{
			UUID:            bledb.NormalizeUUID(svc.UUID),
			KnownName:       bledb.LookupService(svc.UUID),
			Characteristics: []CharacteristicSnapshot{},
		}
		for _, char := range svc.Characteristics {
			charSnap := CharacteristicSnapshot{
				UUID:       bledb.NormalizeUUID(char.UUID),
				KnownName:  bledb.LookupCharacteristic(char.UUID),
				Properties: propertyNames(char.Properties),
			}
			for _, d := range char.Descriptors {
				charSnap.Descriptors = append(charSnap.Descriptors, bledb.NormalizeUUID(d.UUID))
			}
			svcSnap.Characteristics = append(svcSnap.Characteristics, charSnap)
		}
		snap.Services = append(snap.Services, svcSnap)
	}
	return snap, nil
}

func propertyNames(p gatt.Property) []string {
	names := []string{}
	for _, entry := range []struct {
		prop gatt.Property
		name string
	}{
		{gatt.PropBroadcast, "broadcast"},
		{gatt.PropRead, "read"},
		{gatt.PropWriteWithoutResponse, "write-without-response"},
		{gatt.PropWrite, "write"},
		{gatt.PropNotify, "notify"},
		{gatt.PropIndicate, "indicate"},
		{gatt.PropAuthenticatedSignedWrites, "signed-write"},
		{gatt.PropExtendedProperties, "extended"},
	} {
		if p.Has(entry.prop) {
			names = append(names, entry.name)
		}
	}
	return names
}
