package goble

import (
	"context"
	"errors"
	"strings"

	"github.com/srg/blec/internal/gatt"
)

// statusFromError maps a go-ble error to the Android-style attribute status
// the callback surface carries. The library reports errors as strings, so
// mapping is substring based and deliberately conservative.
func statusFromError(err error) gatt.Status {
	if err == nil {
		return gatt.StatusSuccess
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "read not permitted"):
		return gatt.StatusReadNotPermitted
	case strings.Contains(msg, "write not permitted"):
		return gatt.StatusWriteNotPermitted
	case strings.Contains(msg, "authentication"):
		return gatt.StatusInsufficientAuthentication
	case strings.Contains(msg, "not supported"):
		return gatt.StatusRequestNotSupported
	case strings.Contains(msg, "invalid offset"):
		return gatt.StatusInvalidOffset
	case strings.Contains(msg, "invalid attribute"):
		return gatt.StatusInvalidAttributeLength
	case strings.Contains(msg, "congest"):
		return gatt.StatusConnectionCongested
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return gatt.StatusFailure
	default:
		return gatt.StatusFailure
	}
}
