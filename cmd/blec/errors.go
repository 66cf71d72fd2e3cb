package main

import (
	"errors"

	"github.com/srg/blec/internal/session"
)

// FormatUserError maps internal errors to messages fit for the terminal.
func FormatUserError(err error) string {
	var notFound *session.NotFoundError
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return "device is not connected; run 'blec scan' and connect first"
	case errors.Is(err, session.ErrNoGattSession):
		return "no active GATT session for this device"
	case errors.Is(err, session.ErrDisconnected):
		return "connection lost while the operation was in progress"
	case errors.Is(err, session.ErrAlreadyConnected):
		return "device is already connected"
	case errors.Is(err, session.ErrPermissionDenied):
		return "Bluetooth permission denied; check system privacy settings"
	case errors.Is(err, session.ErrOperationOverwritten):
		return "operation was superseded by a newer request on the same characteristic"
	case errors.As(err, &notFound):
		return err.Error()
	default:
		return err.Error()
	}
}
