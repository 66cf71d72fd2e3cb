package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/srg/blec/internal/bledb"
	"github.com/srg/blec/internal/gatt"
)

func normalizeAddr(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// StackCounters tracks how many times each native entry point was invoked.
// Tests assert on these to prove state-machine guards fire before any native
// round trip happens.
type StackCounters struct {
	Connect         int
	Disconnect      int
	Discover        int
	Read            int
	Write           int
	WriteDescriptor int
	SetNotify       int
	RequestMTU      int
	Scan            int
}

// FakeConn is a trivial connection handle carrying only the address.
type FakeConn struct {
	Addr string
}

func (c *FakeConn) Address() string { return c.Addr }

// FakePeripheral is one simulated remote device: its GATT profile, its
// characteristic values and the fault injections configured for it.
type FakePeripheral struct {
	Address         string
	Name            string
	RSSI            int
	Services        []*gatt.Service
	Values          map[string][]byte // normalized char UUID -> value
	Descriptors     map[string][]byte // "char/desc" -> last written value
	Notifying       map[string]bool   // normalized char UUID -> native routing enabled
	MTU             int               // value returned by MTU exchange, 0 means echo the request
	ConnectStatus   gatt.Status       // non-zero fails the connect attempt
	DiscoverStatus  gatt.Status       // non-zero fails discovery
	ReadStatus      gatt.Status       // non-zero fails reads
	WriteStatus     gatt.Status       // non-zero fails writes
	DescriptorError error             // non-nil rejects descriptor writes synchronously
}

// Advertisement derives a scan advertisement from the peripheral profile.
func (p *FakePeripheral) Advertisement() gatt.Advertisement {
	services := make([]string, 0, len(p.Services))
	for _, svc := range p.Services {
		services = append(services, svc.UUID)
	}
	return gatt.Advertisement{
		Address:     p.Address,
		Name:        p.Name,
		RSSI:        p.RSSI,
		Connectable: true,
		Services:    services,
	}
}

type heldOp struct {
	charUUID string
	descUUID string
	kind     string // "write" or "descriptor"
}

// FakeStack is an in-memory gatt.Stack. It reports outcomes through the
// registered callbacks synchronously from the issuing call, exactly once per
// request, unless the matching hold flag defers completion until the test
// releases it.
type FakeStack struct {
	mu          sync.Mutex
	callbacks   gatt.Callbacks
	peripherals map[string]*FakePeripheral
	connected   map[string]bool
	counters    StackCounters

	holdWrites      bool
	holdDescriptors bool
	held            map[string][]heldOp // address -> deferred completions
}

// NewFakeStack creates an empty fake with no peripherals configured.
func NewFakeStack() *FakeStack {
	return &FakeStack{
		peripherals: make(map[string]*FakePeripheral),
		connected:   make(map[string]bool),
		held:        make(map[string][]heldOp),
	}
}

// AddPeripheral registers a simulated device.
func (f *FakeStack) AddPeripheral(p *FakePeripheral) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Values == nil {
		p.Values = make(map[string][]byte)
	}
	if p.Descriptors == nil {
		p.Descriptors = make(map[string][]byte)
	}
	if p.Notifying == nil {
		p.Notifying = make(map[string]bool)
	}
	f.peripherals[normalizeAddr(p.Address)] = p
}

// Peripheral returns the registered peripheral for fault injection.
func (f *FakeStack) Peripheral(address string) *FakePeripheral {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peripherals[normalizeAddr(address)]
}

// Counters returns a snapshot of the invocation counters.
func (f *FakeStack) Counters() StackCounters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters
}

// HoldWrites defers write and descriptor completions until released.
func (f *FakeStack) HoldWrites(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdWrites = hold
}

// HoldDescriptors defers descriptor completions until released.
func (f *FakeStack) HoldDescriptors(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdDescriptors = hold
}

// ReleaseHeld completes every deferred operation for the address with the
// given status, oldest first, and returns how many were released.
func (f *FakeStack) ReleaseHeld(address string, status gatt.Status) int {
	key := normalizeAddr(address)

	f.mu.Lock()
	ops := f.held[key]
	delete(f.held, key)
	cb := f.callbacks
	f.mu.Unlock()

	conn := &FakeConn{Addr: key}
	for _, op := range ops {
		switch op.kind {
		case "write":
			cb.OnCharacteristicWrite(conn, op.charUUID, status)
		case "descriptor":
			cb.OnDescriptorWrite(conn, op.charUUID, op.descUUID, status)
		}
	}
	return len(ops)
}

// DescriptorValue returns the last value written to the descriptor, keyed by
// characteristic and descriptor UUID.
func (f *FakeStack) DescriptorValue(address, charUUID, descUUID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.peripherals[normalizeAddr(address)]
	if !ok {
		return nil, false
	}
	v, ok := p.Descriptors[bledb.NormalizeUUID(charUUID)+"/"+bledb.NormalizeUUID(descUUID)]
	return v, ok
}

// NotifyState reports whether native notification routing is enabled for the
// characteristic.
func (f *FakeStack) NotifyState(address, charUUID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.peripherals[normalizeAddr(address)]
	if !ok {
		return false
	}
	return p.Notifying[bledb.NormalizeUUID(charUUID)]
}

// NotifyValue simulates an unsolicited characteristic-change notification.
func (f *FakeStack) NotifyValue(address, charUUID string, data []byte) {
	f.mu.Lock()
	cb := f.callbacks
	f.mu.Unlock()
	cb.OnCharacteristicChanged(&FakeConn{Addr: normalizeAddr(address)}, charUUID, data)
}

// DropConnection simulates an unsolicited link loss.
func (f *FakeStack) DropConnection(address string) {
	key := normalizeAddr(address)

	f.mu.Lock()
	f.connected[key] = false
	delete(f.held, key)
	cb := f.callbacks
	f.mu.Unlock()

	cb.OnConnectionStateChange(&FakeConn{Addr: key}, gatt.StatusFailure, gatt.StateDisconnected)
}

// ----------------------------
// gatt.Stack implementation
// ----------------------------

func (f *FakeStack) SetCallbacks(cb gatt.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = cb
}

func (f *FakeStack) Connect(address string) error {
	key := normalizeAddr(address)

	f.mu.Lock()
	f.counters.Connect++
	p, ok := f.peripherals[key]
	cb := f.callbacks
	if ok && p.ConnectStatus.Ok() {
		f.connected[key] = true
	}
	f.mu.Unlock()

	conn := &FakeConn{Addr: key}
	switch {
	case !ok:
		cb.OnConnectionStateChange(conn, gatt.StatusFailure, gatt.StateDisconnected)
	case !p.ConnectStatus.Ok():
		cb.OnConnectionStateChange(conn, p.ConnectStatus, gatt.StateDisconnected)
	default:
		cb.OnConnectionStateChange(conn, gatt.StatusSuccess, gatt.StateConnected)
	}
	return nil
}

func (f *FakeStack) Disconnect(conn gatt.Conn) error {
	key := normalizeAddr(conn.Address())

	f.mu.Lock()
	f.counters.Disconnect++
	f.connected[key] = false
	delete(f.held, key)
	cb := f.callbacks
	f.mu.Unlock()

	cb.OnConnectionStateChange(conn, gatt.StatusSuccess, gatt.StateDisconnected)
	return nil
}

func (f *FakeStack) DiscoverServices(conn gatt.Conn) error {
	f.mu.Lock()
	f.counters.Discover++
	p, ok := f.peripherals[normalizeAddr(conn.Address())]
	cb := f.callbacks
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("no peripheral at %s", conn.Address())
	}
	if !p.DiscoverStatus.Ok() {
		cb.OnServicesDiscovered(conn, nil, p.DiscoverStatus)
		return nil
	}
	cb.OnServicesDiscovered(conn, p.Services, gatt.StatusSuccess)
	return nil
}

func (f *FakeStack) ReadCharacteristic(conn gatt.Conn, char *gatt.Characteristic) error {
	f.mu.Lock()
	f.counters.Read++
	p, ok := f.peripherals[normalizeAddr(conn.Address())]
	cb := f.callbacks
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("no peripheral at %s", conn.Address())
	}
	if !p.ReadStatus.Ok() {
		cb.OnCharacteristicRead(conn, char.UUID, nil, p.ReadStatus)
		return nil
	}
	cb.OnCharacteristicRead(conn, char.UUID, p.Values[bledb.NormalizeUUID(char.UUID)], gatt.StatusSuccess)
	return nil
}

func (f *FakeStack) WriteCharacteristic(conn gatt.Conn, char *gatt.Characteristic, value []byte, withResponse bool) error {
	key := normalizeAddr(conn.Address())

	f.mu.Lock()
	f.counters.Write++
	p, ok := f.peripherals[key]
	cb := f.callbacks
	if ok && p.WriteStatus.Ok() {
		stored := make([]byte, len(value))
		copy(stored, value)
		p.Values[bledb.NormalizeUUID(char.UUID)] = stored
	}
	if ok && f.holdWrites {
		f.held[key] = append(f.held[key], heldOp{charUUID: char.UUID, kind: "write"})
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("no peripheral at %s", conn.Address())
	}
	if !withResponse {
		// Write-without-response still completes through the callback so the
		// session's correlation model stays uniform.
		cb.OnCharacteristicWrite(conn, char.UUID, gatt.StatusSuccess)
		return nil
	}
	if !p.WriteStatus.Ok() {
		cb.OnCharacteristicWrite(conn, char.UUID, p.WriteStatus)
		return nil
	}
	cb.OnCharacteristicWrite(conn, char.UUID, gatt.StatusSuccess)
	return nil
}

func (f *FakeStack) WriteDescriptor(conn gatt.Conn, char *gatt.Characteristic, descUUID string, value []byte) error {
	key := normalizeAddr(conn.Address())

	f.mu.Lock()
	f.counters.WriteDescriptor++
	p, ok := f.peripherals[key]
	cb := f.callbacks
	if ok && p.DescriptorError != nil {
		f.mu.Unlock()
		return p.DescriptorError
	}
	if ok {
		stored := make([]byte, len(value))
		copy(stored, value)
		p.Descriptors[bledb.NormalizeUUID(char.UUID)+"/"+bledb.NormalizeUUID(descUUID)] = stored
	}
	if ok && (f.holdWrites || f.holdDescriptors) {
		f.held[key] = append(f.held[key], heldOp{charUUID: char.UUID, descUUID: descUUID, kind: "descriptor"})
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("no peripheral at %s", conn.Address())
	}
	cb.OnDescriptorWrite(conn, char.UUID, descUUID, gatt.StatusSuccess)
	return nil
}

func (f *FakeStack) SetNotify(conn gatt.Conn, char *gatt.Characteristic, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters.SetNotify++
	p, ok := f.peripherals[normalizeAddr(conn.Address())]
	if !ok {
		return fmt.Errorf("no peripheral at %s", conn.Address())
	}
	p.Notifying[bledb.NormalizeUUID(char.UUID)] = enable
	return nil
}

func (f *FakeStack) RequestMTU(conn gatt.Conn, mtu int) error {
	f.mu.Lock()
	f.counters.RequestMTU++
	p, ok := f.peripherals[normalizeAddr(conn.Address())]
	cb := f.callbacks
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("no peripheral at %s", conn.Address())
	}
	negotiated := mtu
	if p.MTU > 0 && p.MTU < mtu {
		negotiated = p.MTU
	}
	cb.OnMTUChanged(conn, negotiated, gatt.StatusSuccess)
	return nil
}

// Scan replays every configured peripheral's advertisement once, then blocks
// until ctx is cancelled.
func (f *FakeStack) Scan(ctx context.Context, allowDuplicates bool, handler func(gatt.Advertisement)) error {
	f.mu.Lock()
	f.counters.Scan++
	advs := make([]gatt.Advertisement, 0, len(f.peripherals))
	for _, p := range f.peripherals {
		advs = append(advs, p.Advertisement())
	}
	f.mu.Unlock()

	for _, adv := range advs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}
