// Package session implements the per-device GATT session core: the
// connection state machine, the service discovery pipeline and the
// pending-operation registry that correlates callback-driven native
// completions with blocked callers.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blec/internal/bledb"
	"github.com/srg/blec/internal/gatt"
)

// ConnectionState is the session's view of the link.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// descriptorOp is the single session-global descriptor completion slot shared
// by subscribe and unsubscribe.
type descriptorOp struct {
	charUUID string
	enable   bool
	done     *completion[struct{}]
}

// Session is one GATT connection's state machine, characteristic index and
// pending-operation registry.
//
// Public operations validate under the session lock, issue the native request
// outside it, then block on a completion that the matching Handle* callback
// resolves. Requests and callbacks run on different goroutines; every piece
// of mutable state below mu is only touched with mu held.
type Session struct {
	address  string
	stack    gatt.Stack
	notifier *Notifier
	logger   *logrus.Logger

	mu    sync.Mutex
	state ConnectionState
	conn  gatt.Conn

	// Discovered GATT topology. services preserves discovery order;
	// charIndex flattens every characteristic across all services, last
	// write wins on UUID collisions.
	services  *orderedmap.OrderedMap[string, *gatt.Service]
	charIndex map[string]*gatt.Characteristic

	// Pending completions. At most one entry per UUID per map; the
	// descriptor and MTU slots are session global.
	pendingConnect    *completion[struct{}]
	pendingDiscover   *completion[[]*gatt.Service]
	pendingReads      map[string]*completion[[]byte]
	pendingWrites     map[string]*completion[struct{}]
	pendingDescriptor *descriptorOp
	pendingMTU        *completion[int]
}

// New creates an empty, disconnected session for the given address.
func New(address string, stack gatt.Stack, notifier *Notifier, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		address:       address,
		stack:         stack,
		notifier:      notifier,
		logger:        logger,
		state:         StateDisconnected,
		services:      orderedmap.New[string, *gatt.Service](),
		charIndex:     make(map[string]*gatt.Characteristic),
		pendingReads:  make(map[string]*completion[[]byte]),
		pendingWrites: make(map[string]*completion[struct{}]),
	}
}

// Address returns the stable device identifier this session is bound to.
func (s *Session) Address() string { return s.address }

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the session holds a live connection.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.conn != nil
}

// Connect requests a native connection and blocks until the stack reports
// the outcome. The state only reaches Connected through the stack callback.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	if s.state == StateConnecting || s.pendingConnect != nil {
		s.mu.Unlock()
		return &StateError{State: AlreadyConnected, Msg: "connect already in progress"}
	}
	c := newCompletion[struct{}]()
	s.pendingConnect = c
	s.state = StateConnecting
	s.mu.Unlock()

	s.logger.WithField("address", s.address).Info("Connecting to device")

	if err := s.stack.Connect(s.address); err != nil {
		s.mu.Lock()
		if s.pendingConnect == c {
			s.pendingConnect = nil
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		return fmt.Errorf("connect request rejected: %w", err)
	}

	_, err := c.await(ctx)
	if err != nil && ctx.Err() != nil {
		// Caller gave up; withdraw the pending completion so a late
		// callback does not resolve into the void forever.
		s.mu.Lock()
		if s.pendingConnect == c {
			s.pendingConnect = nil
			s.state = StateDisconnected
		}
		s.mu.Unlock()
	}
	return err
}

// Disconnect tears the session down. It always succeeds from the caller's
// perspective: the handle is cleared and the state forced to Disconnected
// immediately, every outstanding completion is failed with a Disconnected
// error, and the native teardown proceeds asynchronously. Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	wasDown := s.state == StateDisconnected && conn == nil && s.pendingConnect == nil

	s.conn = nil
	s.state = StateDisconnected
	s.clearDiscoveredLocked()
	failed := s.collectPendingLocked()
	if s.pendingConnect != nil {
		failed = append(failed, s.pendingConnect.fail)
		s.pendingConnect = nil
	}
	s.mu.Unlock()

	for _, fail := range failed {
		fail(ErrDisconnected)
	}

	if wasDown {
		s.logger.WithField("address", s.address).Debug("Disconnect on a session that is already down")
		return
	}

	s.notifier.Emit(EventDisconnected, s.address)

	if conn != nil {
		if err := s.stack.Disconnect(conn); err != nil {
			s.logger.WithFields(logrus.Fields{
				"address": s.address,
				"error":   err,
			}).Warn("Native teardown reported an error")
		}
	}
	s.logger.WithField("address", s.address).Info("Device disconnected")
}

// DiscoverServices triggers native service discovery and blocks for the
// result. On success the discovered tree replaces the previous one and the
// characteristic index is rebuilt; on failure both are cleared.
func (s *Session) DiscoverServices(ctx context.Context) ([]*gatt.Service, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	stale := s.pendingDiscover
	c := newCompletion[[]*gatt.Service]()
	s.pendingDiscover = c
	conn := s.conn
	s.mu.Unlock()

	if stale != nil {
		stale.fail(ErrOperationOverwritten)
	}

	if err := s.stack.DiscoverServices(conn); err != nil {
		s.withdrawDiscover(c)
		return nil, fmt.Errorf("discovery request rejected: %w", err)
	}

	services, err := c.await(ctx)
	if err != nil && ctx.Err() != nil {
		s.withdrawDiscover(c)
	}
	return services, err
}

func (s *Session) withdrawDiscover(c *completion[[]*gatt.Service]) {
	s.mu.Lock()
	if s.pendingDiscover == c {
		s.pendingDiscover = nil
	}
	s.mu.Unlock()
}

// Services returns a snapshot of the discovered services in discovery order.
// Valid (and empty) before any discovery has run.
func (s *Session) Services() []*gatt.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*gatt.Service, 0, s.services.Len())
	for pair := s.services.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// Characteristic looks up a characteristic handle by UUID in the flattened
// index.
func (s *Session) Characteristic(uuid string) (*gatt.Characteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	char, ok := s.charIndex[bledb.NormalizeUUID(uuid)]
	if !ok {
		return nil, &NotFoundError{Resource: "characteristic", Key: uuid}
	}
	return char, nil
}

// Read issues a native characteristic read and blocks for the payload. A
// read already pending on the same UUID is failed with
// ErrOperationOverwritten before the new one is issued.
func (s *Session) Read(ctx context.Context, uuid string) ([]byte, error) {
	key := bledb.NormalizeUUID(uuid)

	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	char, ok := s.charIndex[key]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{Resource: "characteristic", Key: uuid}
	}
	stale := s.pendingReads[key]
	c := newCompletion[[]byte]()
	s.pendingReads[key] = c
	conn := s.conn
	s.mu.Unlock()

	if stale != nil {
		stale.fail(ErrOperationOverwritten)
	}

	if err := s.stack.ReadCharacteristic(conn, char); err != nil {
		s.withdrawRead(key, c)
		return nil, fmt.Errorf("read request rejected: %w", err)
	}

	data, err := c.await(ctx)
	if err != nil && ctx.Err() != nil {
		s.withdrawRead(key, c)
	}
	return data, err
}

func (s *Session) withdrawRead(key string, c *completion[[]byte]) {
	s.mu.Lock()
	if s.pendingReads[key] == c {
		delete(s.pendingReads, key)
	}
	s.mu.Unlock()
}

// Write issues a native characteristic write and blocks for the completion
// callback. Overwrite semantics match Read.
func (s *Session) Write(ctx context.Context, uuid string, data []byte, withResponse bool) error {
	key := bledb.NormalizeUUID(uuid)

	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	char, ok := s.charIndex[key]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Resource: "characteristic", Key: uuid}
	}
	stale := s.pendingWrites[key]
	c := newCompletion[struct{}]()
	s.pendingWrites[key] = c
	conn := s.conn
	s.mu.Unlock()

	if stale != nil {
		stale.fail(ErrOperationOverwritten)
	}

	if err := s.stack.WriteCharacteristic(conn, char, data, withResponse); err != nil {
		s.withdrawWrite(key, c)
		return fmt.Errorf("write request rejected: %w", err)
	}

	_, err := c.await(ctx)
	if err != nil && ctx.Err() != nil {
		s.withdrawWrite(key, c)
	}
	return err
}

func (s *Session) withdrawWrite(key string, c *completion[struct{}]) {
	s.mu.Lock()
	if s.pendingWrites[key] == c {
		delete(s.pendingWrites, key)
	}
	s.mu.Unlock()
}

// Subscribe enables notification delivery for the characteristic: native
// notification routing is switched on and the CCCD enable value is written.
// The completion is correlated through the session-global descriptor slot; a
// concurrent descriptor operation is rejected with ErrDescriptorOpInFlight.
func (s *Session) Subscribe(ctx context.Context, uuid string) error {
	return s.setSubscription(ctx, uuid, true)
}

// Unsubscribe disables notification delivery for the characteristic.
func (s *Session) Unsubscribe(ctx context.Context, uuid string) error {
	return s.setSubscription(ctx, uuid, false)
}

func (s *Session) setSubscription(ctx context.Context, uuid string, enable bool) error {
	key := bledb.NormalizeUUID(uuid)

	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	char, ok := s.charIndex[key]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Resource: "characteristic", Key: uuid}
	}
	if s.pendingDescriptor != nil {
		s.mu.Unlock()
		return ErrDescriptorOpInFlight
	}
	op := &descriptorOp{charUUID: key, enable: enable, done: newCompletion[struct{}]()}
	s.pendingDescriptor = op
	conn := s.conn
	s.mu.Unlock()

	if err := s.stack.SetNotify(conn, char, enable); err != nil {
		s.withdrawDescriptor(op)
		return fmt.Errorf("set notify rejected: %w", err)
	}

	value := gatt.CCCDDisable
	if enable {
		value = gatt.CCCDNotifyEnable
		if !char.Properties.Has(gatt.PropNotify) && char.Properties.Has(gatt.PropIndicate) {
			value = gatt.CCCDIndicateEnable
		}
	}

	if err := s.stack.WriteDescriptor(conn, char, gatt.CCCDUUID, value); err != nil {
		s.withdrawDescriptor(op)
		// SetNotify already went through; restore the previous routing state
		// so a rejected CCCD write does not leave them disagreeing.
		if nerr := s.stack.SetNotify(conn, char, !enable); nerr != nil {
			s.logger.WithFields(logrus.Fields{
				"address":   s.address,
				"char_uuid": key,
				"error":     nerr,
			}).Warn("Notify rollback failed after rejected descriptor write")
		}
		return fmt.Errorf("descriptor write rejected: %w", err)
	}

	_, err := op.done.await(ctx)
	if err != nil && ctx.Err() != nil {
		s.withdrawDescriptor(op)
	}
	return err
}

func (s *Session) withdrawDescriptor(op *descriptorOp) {
	s.mu.Lock()
	if s.pendingDescriptor == op {
		s.pendingDescriptor = nil
	}
	s.mu.Unlock()
}

// RequestMTU negotiates the link MTU and blocks for the negotiated value.
// Fails fast with ErrNoGattSession when no live handle exists. A stale
// pending MTU negotiation is displaced like a read or write.
func (s *Session) RequestMTU(ctx context.Context, mtu int) (int, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return 0, ErrNoGattSession
	}
	stale := s.pendingMTU
	c := newCompletion[int]()
	s.pendingMTU = c
	conn := s.conn
	s.mu.Unlock()

	if stale != nil {
		stale.fail(ErrOperationOverwritten)
	}

	if err := s.stack.RequestMTU(conn, mtu); err != nil {
		s.mu.Lock()
		if s.pendingMTU == c {
			s.pendingMTU = nil
		}
		s.mu.Unlock()
		return 0, fmt.Errorf("mtu request rejected: %w", err)
	}

	negotiated, err := c.await(ctx)
	if err != nil && ctx.Err() != nil {
		s.mu.Lock()
		if s.pendingMTU == c {
			s.pendingMTU = nil
		}
		s.mu.Unlock()
	}
	return negotiated, err
}

// ----------------------------
// Stack callback handlers
// ----------------------------

// HandleConnectionStateChange applies a connection transition reported by
// the stack. This is the only place the session reaches Connected.
func (s *Session) HandleConnectionStateChange(conn gatt.Conn, status gatt.Status, newState int) {
	if newState == gatt.StateConnected && status.Ok() {
		s.mu.Lock()
		if s.pendingConnect == nil {
			live := s.state == StateConnected
			s.mu.Unlock()
			if live {
				// Duplicate report for a link the session already holds.
				return
			}
			// A dial withdrawn by Disconnect or a cancelled Connect can
			// still succeed natively. Nobody wants this link; close it
			// instead of resurrecting the session.
			s.logger.WithField("address", s.address).Debug("Stale connect success after withdrawal, closing link")
			if err := s.stack.Disconnect(conn); err != nil {
				s.logger.WithFields(logrus.Fields{
					"address": s.address,
					"error":   err,
				}).Warn("Teardown of an unwanted link reported an error")
			}
			return
		}
		c := s.pendingConnect
		s.pendingConnect = nil
		s.state = StateConnected
		s.conn = conn
		s.mu.Unlock()

		s.logger.WithField("address", s.address).Info("Device connected")
		s.notifier.Emit(EventConnected, s.address)
		if c != nil {
			c.resolve(struct{}{})
		}
		return
	}

	// Everything else means the link is down: failed connect attempts,
	// requested teardown confirmations, and unsolicited drops all clear the
	// handle and fail whatever was outstanding.
	s.mu.Lock()
	wasDown := s.state == StateDisconnected && s.conn == nil && s.pendingConnect == nil
	s.conn = nil
	s.state = StateDisconnected
	s.clearDiscoveredLocked()
	c := s.pendingConnect
	s.pendingConnect = nil
	failed := s.collectPendingLocked()
	s.mu.Unlock()

	if wasDown {
		// Teardown confirmation for a disconnect the caller already
		// observed; nothing left to resolve or announce.
		return
	}

	for _, fail := range failed {
		fail(ErrDisconnected)
	}
	if c != nil {
		c.fail(&PlatformStatusError{Op: "connect", Status: status})
	}

	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"status":  status.String(),
	}).Info("Device disconnected by stack")
	s.notifier.Emit(EventDisconnected, s.address)
}

// HandleServicesDiscovered applies a discovery outcome. On success the
// flattened characteristic index is rebuilt, last write wins on UUID
// collisions across services; on failure all discovered state is cleared.
func (s *Session) HandleServicesDiscovered(services []*gatt.Service, status gatt.Status) {
	s.mu.Lock()
	c := s.pendingDiscover
	s.pendingDiscover = nil

	if s.state != StateConnected {
		// The discovery goroutine can outlive a teardown; its result must
		// not repopulate a session that already reported disconnected.
		s.mu.Unlock()
		s.logger.WithField("address", s.address).Debug("Discovery callback after teardown, dropped")
		if c != nil {
			c.fail(ErrDisconnected)
		}
		return
	}

	if status.Ok() {
		s.services = orderedmap.New[string, *gatt.Service]()
		s.charIndex = make(map[string]*gatt.Characteristic)
		for _, svc := range services {
			s.services.Set(bledb.NormalizeUUID(svc.UUID), svc)
			for _, char := range svc.Characteristics {
				s.charIndex[bledb.NormalizeUUID(char.UUID)] = char
			}
		}
	} else {
		s.clearDiscoveredLocked()
	}
	indexed := len(s.charIndex)
	s.mu.Unlock()

	if !status.Ok() {
		s.logger.WithFields(logrus.Fields{
			"address": s.address,
			"status":  status.String(),
		}).Warn("Service discovery failed")
		if c != nil {
			c.fail(&PlatformStatusError{Op: "discover services", Status: status})
		}
		return
	}

	s.logger.WithFields(logrus.Fields{
		"address":         s.address,
		"services":        len(services),
		"characteristics": indexed,
	}).Info("Services discovered")
	if c != nil {
		c.resolve(services)
	}
}

// HandleCharacteristicRead resolves the pending read for the UUID, if any.
func (s *Session) HandleCharacteristicRead(charUUID string, value []byte, status gatt.Status) {
	key := bledb.NormalizeUUID(charUUID)

	s.mu.Lock()
	c := s.pendingReads[key]
	delete(s.pendingReads, key)
	s.mu.Unlock()

	if c == nil {
		s.logger.WithFields(logrus.Fields{
			"address":   s.address,
			"char_uuid": key,
		}).Debug("Read callback without a pending read, dropped")
		return
	}
	if !status.Ok() {
		c.fail(&PlatformStatusError{Op: "read", Status: status})
		return
	}
	c.resolve(value)
}

// HandleCharacteristicWrite resolves the pending write for the UUID, if any.
func (s *Session) HandleCharacteristicWrite(charUUID string, status gatt.Status) {
	key := bledb.NormalizeUUID(charUUID)

	s.mu.Lock()
	c := s.pendingWrites[key]
	delete(s.pendingWrites, key)
	s.mu.Unlock()

	if c == nil {
		s.logger.WithFields(logrus.Fields{
			"address":   s.address,
			"char_uuid": key,
		}).Debug("Write callback without a pending write, dropped")
		return
	}
	if !status.Ok() {
		c.fail(&PlatformStatusError{Op: "write", Status: status})
		return
	}
	c.resolve(struct{}{})
}

// HandleDescriptorWrite resolves the session-global descriptor slot.
func (s *Session) HandleDescriptorWrite(charUUID, descUUID string, status gatt.Status) {
	key := bledb.NormalizeUUID(charUUID)

	s.mu.Lock()
	op := s.pendingDescriptor
	s.pendingDescriptor = nil
	s.mu.Unlock()

	if op == nil {
		return
	}
	if op.charUUID != key {
		s.logger.WithFields(logrus.Fields{
			"address":  s.address,
			"expected": op.charUUID,
			"got":      key,
		}).Warn("Descriptor callback for a different characteristic than the pending operation")
	}
	if !status.Ok() {
		op.done.fail(&PlatformStatusError{Op: "descriptor write", Status: status})
		return
	}
	op.done.resolve(struct{}{})
}

// HandleMTUChanged resolves the pending MTU negotiation, if any.
func (s *Session) HandleMTUChanged(mtu int, status gatt.Status) {
	s.mu.Lock()
	c := s.pendingMTU
	s.pendingMTU = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if !status.Ok() {
		c.fail(&PlatformStatusError{Op: "mtu exchange", Status: status})
		return
	}
	c.resolve(mtu)
}

// ----------------------------
// Internals (mu held)
// ----------------------------

func (s *Session) clearDiscoveredLocked() {
	s.services = orderedmap.New[string, *gatt.Service]()
	s.charIndex = make(map[string]*gatt.Characteristic)
}

// collectPendingLocked removes every outstanding completion and returns
// their fail functions for invocation outside the lock.
func (s *Session) collectPendingLocked() []func(error) {
	var failed []func(error)

	for key, c := range s.pendingReads {
		failed = append(failed, c.fail)
		delete(s.pendingReads, key)
	}
	for key, c := range s.pendingWrites {
		failed = append(failed, c.fail)
		delete(s.pendingWrites, key)
	}
	if s.pendingDescriptor != nil {
		failed = append(failed, s.pendingDescriptor.done.fail)
		s.pendingDescriptor = nil
	}
	if s.pendingMTU != nil {
		failed = append(failed, s.pendingMTU.fail)
		s.pendingMTU = nil
	}
	if s.pendingDiscover != nil {
		failed = append(failed, s.pendingDiscover.fail)
		s.pendingDiscover = nil
	}

	return failed
}
