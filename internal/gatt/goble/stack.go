// Package goble adapts the synchronous go-ble client API to the
// callback-driven gatt.Stack surface the session layer consumes. Blocking
// library calls run on named goroutines and report their outcome through the
// registered callbacks.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blec/internal/bledb"
	"github.com/srg/blec/internal/gatt"
	"github.com/srg/blec/internal/groutine"
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 30 * time.Second

// link is one live go-ble connection plus the characteristic handles
// resolved by the last profile discovery.
type link struct {
	addr   string
	client ble.Client

	mu    sync.Mutex
	chars map[string]*ble.Characteristic
}

func (l *link) Address() string { return l.addr }

func (l *link) characteristic(uuid string) (*ble.Characteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bc, ok := l.chars[bledb.NormalizeUUID(uuid)]
	if !ok {
		return nil, fmt.Errorf("characteristic %q not discovered", uuid)
	}
	return bc, nil
}

// Stack is the production gatt.Stack backed by go-ble.
type Stack struct {
	logger         *logrus.Logger
	connectTimeout time.Duration

	mu     sync.Mutex
	cb     gatt.Callbacks
	device ble.Device
	links  map[string]*link
}

// NewStack creates a Stack. The underlying ble.Device is created lazily on
// first use so constructing the stack never touches the radio.
func NewStack(logger *logrus.Logger) *Stack {
	if logger == nil {
		logger = logrus.New()
	}
	return &Stack{
		logger:         logger,
		connectTimeout: DefaultConnectTimeout,
		links:          make(map[string]*link),
	}
}

// SetConnectTimeout overrides the dial timeout.
func (s *Stack) SetConnectTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectTimeout = d
}

func (s *Stack) SetCallbacks(cb gatt.Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func (s *Stack) callbacks() gatt.Callbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

func (s *Stack) ensureDevice() (ble.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return s.device, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	s.device = dev
	return dev, nil
}

func normalizeAddr(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// Connect dials the device on a named goroutine. The outcome, success or
// failure, arrives through OnConnectionStateChange.
func (s *Stack) Connect(address string) error {
	dev, err := s.ensureDevice()
	if err != nil {
		return err
	}

	key := normalizeAddr(address)
	s.mu.Lock()
	timeout := s.connectTimeout
	s.mu.Unlock()

	groutine.Go(context.Background(), "goble-connect-"+key, func(ctx context.Context) {
		cb := s.callbacks()
		conn := &link{addr: key, chars: make(map[string]*ble.Characteristic)}

		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		client, err := dev.Dial(dialCtx, ble.NewAddr(address))
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"address": key,
				"error":   err,
			}).Error("Failed to dial BLE device")
			cb.OnConnectionStateChange(conn, statusFromError(err), gatt.StateDisconnected)
			return
		}

		conn.client = client
		s.mu.Lock()
		s.links[key] = conn
		s.mu.Unlock()

		cb.OnConnectionStateChange(conn, gatt.StatusSuccess, gatt.StateConnected)

		groutine.Go(context.Background(), "goble-watch-"+key, func(context.Context) {
			<-client.Disconnected()
			s.mu.Lock()
			if s.links[key] == conn {
				delete(s.links, key)
			}
			s.mu.Unlock()
			s.logger.WithField("address", key).Debug("go-ble reported link loss")
			s.callbacks().OnConnectionStateChange(conn, gatt.StatusFailure, gatt.StateDisconnected)
		})
	})
	return nil
}

// Disconnect cancels the connection. Teardown confirmation arrives through
// the link watcher when go-ble closes the Disconnected channel.
func (s *Stack) Disconnect(conn gatt.Conn) error {
	l, ok := conn.(*link)
	if !ok || l.client == nil {
		return fmt.Errorf("no live go-ble connection for %s", conn.Address())
	}
	s.mu.Lock()
	if s.links[l.addr] == l {
		delete(s.links, l.addr)
	}
	s.mu.Unlock()
	return l.client.CancelConnection()
}

func (s *Stack) DiscoverServices(conn gatt.Conn) error {
	l, ok := conn.(*link)
	if !ok || l.client == nil {
		return fmt.Errorf("no live go-ble connection for %s", conn.Address())
	}

	groutine.Go(context.Background(), "goble-discover-"+l.addr, func(context.Context) {
		cb := s.callbacks()
		profile, err := l.client.DiscoverProfile(true)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"address": l.addr,
				"error":   err,
			}).Error("Profile discovery failed")
			cb.OnServicesDiscovered(conn, nil, statusFromError(err))
			return
		}

		services := make([]*gatt.Service, 0, len(profile.Services))
		chars := make(map[string]*ble.Characteristic)
		for _, bleSvc := range profile.Services {
			svc := &gatt.Service{UUID: bleSvc.UUID.String(), Primary: true}
			for _, bleChar := range bleSvc.Characteristics {
				char := &gatt.Characteristic{
					UUID:       bleChar.UUID.String(),
					Properties: convertProperties(bleChar.Property),
				}
				for _, d := range bleChar.Descriptors {
					char.Descriptors = append(char.Descriptors, gatt.Descriptor{UUID: d.UUID.String()})
				}
				svc.Characteristics = append(svc.Characteristics, char)
				chars[bledb.NormalizeUUID(char.UUID)] = bleChar
			}
			services = append(services, svc)
		}

		l.mu.Lock()
		l.chars = chars
		l.mu.Unlock()

		cb.OnServicesDiscovered(conn, services, gatt.StatusSuccess)
	})
	return nil
}

func (s *Stack) ReadCharacteristic(conn gatt.Conn, char *gatt.Characteristic) error {
	l, ok := conn.(*link)
	if !ok || l.client == nil {
		return fmt.Errorf("no live go-ble connection for %s", conn.Address())
	}
	bc, err := l.characteristic(char.UUID)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "goble-read-"+l.addr, func(context.Context) {
		data, err := l.client.ReadCharacteristic(bc)
		s.callbacks().OnCharacteristicRead(conn, char.UUID, data, statusFromError(err))
	})
	return nil
}

func (s *Stack) WriteCharacteristic(conn gatt.Conn, char *gatt.Characteristic, value []byte, withResponse bool) error {
	l, ok := conn.(*link)
	if !ok || l.client == nil {
		return fmt.Errorf("no live go-ble connection for %s", conn.Address())
	}
	bc, err := l.characteristic(char.UUID)
	if err != nil {
		return err
	}

	data := make([]byte, len(value))
	copy(data, value)

	groutine.Go(context.Background(), "goble-write-"+l.addr, func(context.Context) {
		err := l.client.WriteCharacteristic(bc, data, !withResponse)
		s.callbacks().OnCharacteristicWrite(conn, char.UUID, statusFromError(err))
	})
	return nil
}

// WriteDescriptor writes a characteristic descriptor. The CCCD is special:
// go-ble manages it inside Subscribe/Unsubscribe, so a CCCD write completes
// successfully without a second native write.
func (s *Stack) WriteDescriptor(conn gatt.Conn, char *gatt.Characteristic, descUUID string, value []byte) error {
	l, ok := conn.(*link)
	if !ok || l.client == nil {
		return fmt.Errorf("no live go-ble connection for %s", conn.Address())
	}
	bc, err := l.characteristic(char.UUID)
	if err != nil {
		return err
	}

	key := bledb.NormalizeUUID(descUUID)
	if key == bledb.NormalizeUUID(gatt.CCCDUUID) {
		s.callbacks().OnDescriptorWrite(conn, char.UUID, descUUID, gatt.StatusSuccess)
		return nil
	}

	var target *ble.Descriptor
	for _, d := range bc.Descriptors {
		if bledb.NormalizeUUID(d.UUID.String()) == key {
			target = d
			break
		}
	}
	if target == nil {
		return fmt.Errorf("descriptor %q not discovered on %q", descUUID, char.UUID)
	}

	data := make([]byte, len(value))
	copy(data, value)

	groutine.Go(context.Background(), "goble-write-desc-"+l.addr, func(context.Context) {
		err := l.client.WriteDescriptor(target, data)
		s.callbacks().OnDescriptorWrite(conn, char.UUID, descUUID, statusFromError(err))
	})
	return nil
}

func (s *Stack) SetNotify(conn gatt.Conn, char *gatt.Characteristic, enable bool) error {
	l, ok := conn.(*link)
	if !ok || l.client == nil {
		return fmt.Errorf("no live go-ble connection for %s", conn.Address())
	}
	bc, err := l.characteristic(char.UUID)
	if err != nil {
		return err
	}

	indicate := !char.Properties.Has(gatt.PropNotify) && char.Properties.Has(gatt.PropIndicate)
	if !enable {
		return l.client.Unsubscribe(bc, indicate)
	}

	uuid := char.UUID
	return l.client.Subscribe(bc, indicate, func(data []byte) {
		s.callbacks().OnCharacteristicChanged(conn, uuid, data)
	})
}

func (s *Stack) RequestMTU(conn gatt.Conn, mtu int) error {
	l, ok := conn.(*link)
	if !ok || l.client == nil {
		return fmt.Errorf("no live go-ble connection for %s", conn.Address())
	}

	groutine.Go(context.Background(), "goble-mtu-"+l.addr, func(context.Context) {
		negotiated, err := l.client.ExchangeMTU(mtu)
		s.callbacks().OnMTUChanged(conn, negotiated, statusFromError(err))
	})
	return nil
}

// Scan runs a radio scan until ctx is done, converting each advertisement to
// the transport-neutral form.
func (s *Stack) Scan(ctx context.Context, allowDuplicates bool, handler func(gatt.Advertisement)) error {
	dev, err := s.ensureDevice()
	if err != nil {
		return err
	}
	return dev.Scan(ctx, allowDuplicates, func(a ble.Advertisement) {
		handler(convertAdvertisement(a))
	})
}

func convertAdvertisement(a ble.Advertisement) gatt.Advertisement {
	services := make([]string, 0, len(a.Services()))
	for _, u := range a.Services() {
		services = append(services, u.String())
	}
	return gatt.Advertisement{
		Address:          a.Addr().String(),
		Name:             a.LocalName(),
		RSSI:             a.RSSI(),
		Connectable:      a.Connectable(),
		Services:         services,
		ManufacturerData: a.ManufacturerData(),
	}
}

func convertProperties(p ble.Property) gatt.Property {
	var result gatt.Property
	if p&ble.CharBroadcast != 0 {
		result |= gatt.PropBroadcast
	}
	if p&ble.CharRead != 0 {
		result |= gatt.PropRead
	}
	if p&ble.CharWriteNR != 0 {
		result |= gatt.PropWriteWithoutResponse
	}
	if p&ble.CharWrite != 0 {
		result |= gatt.PropWrite
	}
	if p&ble.CharNotify != 0 {
		result |= gatt.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		result |= gatt.PropIndicate
	}
	if p&ble.CharSignedWrite != 0 {
		result |= gatt.PropAuthenticatedSignedWrites
	}
	if p&ble.CharExtended != 0 {
		result |= gatt.PropExtendedProperties
	}
	return result
}
