package session

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/blec/internal/gatt"
)

// Dispatcher implements gatt.Callbacks and fans stack events out to the
// owning session by connection address. Notifications bypass the session
// and go straight to the router.
type Dispatcher struct {
	registry *Registry
	router   *Router
	logger   *logrus.Logger
}

// NewDispatcher wires the registry and router behind a single callback sink.
func NewDispatcher(registry *Registry, router *Router, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{registry: registry, router: router, logger: logger}
}

func (d *Dispatcher) session(conn gatt.Conn) *Session {
	s, err := d.registry.Get(conn.Address())
	if err != nil {
		d.logger.WithField("address", conn.Address()).Debug("Stack event for an unregistered device, dropped")
		return nil
	}
	return s
}

func (d *Dispatcher) OnConnectionStateChange(conn gatt.Conn, status gatt.Status, newState int) {
	if s := d.session(conn); s != nil {
		s.HandleConnectionStateChange(conn, status, newState)
	}
}

func (d *Dispatcher) OnServicesDiscovered(conn gatt.Conn, services []*gatt.Service, status gatt.Status) {
	if s := d.session(conn); s != nil {
		s.HandleServicesDiscovered(services, status)
	}
}

func (d *Dispatcher) OnCharacteristicRead(conn gatt.Conn, charUUID string, value []byte, status gatt.Status) {
	if s := d.session(conn); s != nil {
		s.HandleCharacteristicRead(charUUID, value, status)
	}
}

func (d *Dispatcher) OnCharacteristicWrite(conn gatt.Conn, charUUID string, status gatt.Status) {
	if s := d.session(conn); s != nil {
		s.HandleCharacteristicWrite(charUUID, status)
	}
}

func (d *Dispatcher) OnDescriptorWrite(conn gatt.Conn, charUUID, descUUID string, status gatt.Status) {
	if s := d.session(conn); s != nil {
		s.HandleDescriptorWrite(charUUID, descUUID, status)
	}
}

func (d *Dispatcher) OnMTUChanged(conn gatt.Conn, mtu int, status gatt.Status) {
	if s := d.session(conn); s != nil {
		s.HandleMTUChanged(mtu, status)
	}
}

func (d *Dispatcher) OnCharacteristicChanged(conn gatt.Conn, charUUID string, value []byte) {
	d.router.Route(conn.Address(), charUUID, value)
}
