package session

import (
	"errors"
	"fmt"

	"github.com/srg/blec/internal/gatt"
)

// State is the specific kind of session state failure.
type State string

const (
	// NotConnected means the operation requires an active connection.
	NotConnected State = "not_connected"
	// NoGattSession means no live handle existed at issuance time.
	NoGattSession State = "no_gatt_session"
	// Disconnected means the connection dropped while the operation was
	// outstanding.
	Disconnected State = "disconnected"
	// AlreadyConnected means a connect was requested on a live session.
	AlreadyConnected State = "already_connected"
	// PermissionDenied means the permission gate rejected the request.
	PermissionDenied State = "permission_denied"
)

// StateError represents any session state related problem.
type StateError struct {
	State State
	Msg   string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare StateError values by State.
func (e *StateError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for session states.
var (
	ErrNotConnected     = &StateError{State: NotConnected}
	ErrNoGattSession    = &StateError{State: NoGattSession}
	ErrDisconnected     = &StateError{State: Disconnected}
	ErrAlreadyConnected = &StateError{State: AlreadyConnected}
	ErrPermissionDenied = &StateError{State: PermissionDenied}
)

// Operation errors.
var (
	// ErrOperationOverwritten is delivered to a pending read or write that
	// was displaced by a newer request on the same characteristic.
	ErrOperationOverwritten = errors.New("operation overwritten by a newer request")

	// ErrDescriptorOpInFlight rejects a subscribe or unsubscribe issued while
	// another descriptor operation is outstanding. The descriptor completion
	// slot is session global, not keyed by characteristic, so a concurrent
	// call could resolve the wrong caller; rejecting is the deterministic
	// alternative.
	ErrDescriptorOpInFlight = errors.New("descriptor operation already in flight")
)

// NotFoundError reports an unknown device address or characteristic UUID.
type NotFoundError struct {
	Resource string // "device", "characteristic", "descriptor"
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// PlatformStatusError wraps a non-success status reported by the native
// stack for a specific operation.
type PlatformStatusError struct {
	Op     string
	Status gatt.Status
}

func (e *PlatformStatusError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Status)
}

// IsPlatformStatus reports whether err carries a native stack status and
// returns it.
func IsPlatformStatus(err error) (gatt.Status, bool) {
	var perr *PlatformStatusError
	if errors.As(err, &perr) {
		return perr.Status, true
	}
	return gatt.StatusSuccess, false
}
