// Package gatt defines the boundary between the session core and the native
// BLE radio stack.
//
// The native stack is callback driven: every accepted request completes later
// through exactly one callback, delivered on an arbitrary goroutine, and the
// only correlation key is the characteristic identity (there is no
// caller-supplied request id). The session core bridges that model to a
// request/response API.
package gatt

import "context"

// Connection states reported through Callbacks.OnConnectionStateChange.
const (
	StateDisconnected = 0
	StateConnecting   = 1
	StateConnected    = 2
)

// Conn is an opaque handle to a live native connection. It is handed out by
// the stack through OnConnectionStateChange and must be passed back for every
// per-connection operation.
type Conn interface {
	Address() string
}

// Callbacks receives all asynchronous outcomes from the native stack.
// Implementations must be safe for invocation from any goroutine and must not
// block: the stack may deliver callbacks from its radio event loop.
type Callbacks interface {
	// OnConnectionStateChange reports connection transitions. A successful
	// connect delivers (StatusSuccess, StateConnected); every other
	// combination means the link is down.
	OnConnectionStateChange(conn Conn, status Status, newState int)

	// OnServicesDiscovered delivers the discovered GATT tree. The services
	// slice is only valid when status is StatusSuccess.
	OnServicesDiscovered(conn Conn, services []*Service, status Status)

	OnCharacteristicRead(conn Conn, charUUID string, value []byte, status Status)
	OnCharacteristicWrite(conn Conn, charUUID string, status Status)
	OnDescriptorWrite(conn Conn, charUUID, descUUID string, status Status)
	OnMTUChanged(conn Conn, mtu int, status Status)

	// OnCharacteristicChanged delivers an inbound notification or indication.
	// The value slice must be copied if retained beyond the call.
	OnCharacteristicChanged(conn Conn, charUUID string, value []byte)
}

// Stack is the request side of the native radio stack.
//
// A synchronous error means the request never reached the radio and no
// callback will follow. The stack supports one in-flight read and one
// in-flight write per characteristic; issuing a second request before the
// first completes is the caller's problem to arbitrate.
type Stack interface {
	// SetCallbacks registers the single callback sink. Must be called before
	// any other method.
	SetCallbacks(cb Callbacks)

	// Connect requests a connection to the given address. The outcome arrives
	// via OnConnectionStateChange.
	Connect(address string) error

	// Disconnect requests teardown of a live connection. Best effort: the
	// caller must not depend on a confirming callback.
	Disconnect(conn Conn) error

	DiscoverServices(conn Conn) error
	ReadCharacteristic(conn Conn, char *Characteristic) error
	WriteCharacteristic(conn Conn, char *Characteristic, value []byte, withResponse bool) error
	WriteDescriptor(conn Conn, char *Characteristic, descUUID string, value []byte) error

	// SetNotify toggles local routing of notifications for the
	// characteristic. Enabling delivery on the remote side additionally
	// requires writing the CCCD (see WriteDescriptor and the CCCD constants).
	SetNotify(conn Conn, char *Characteristic, enable bool) error

	RequestMTU(conn Conn, mtu int) error

	// Scan streams advertisements to the handler until ctx is done.
	Scan(ctx context.Context, allowDuplicates bool, handler func(Advertisement)) error
}

// PermissionGate is the synchronous precondition check performed before radio
// operations. Implementations may trigger an OS permission prompt as a side
// effect of Allowed.
type PermissionGate interface {
	Allowed() bool
}

// AllowAll is a PermissionGate that grants every request.
type AllowAll struct{}

func (AllowAll) Allowed() bool { return true }
