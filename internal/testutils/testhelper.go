package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/srg/blec/internal/gatt"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// ParseProperties converts a comma-separated property list ("read,notify")
// into a gatt.Property bitmask. Unknown names are ignored.
func ParseProperties(props string) gatt.Property {
	var result gatt.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(p)) {
		case "broadcast":
			result |= gatt.PropBroadcast
		case "read":
			result |= gatt.PropRead
		case "write-without-response", "writewithoutresponse":
			result |= gatt.PropWriteWithoutResponse
		case "write":
			result |= gatt.PropWrite
		case "notify":
			result |= gatt.PropNotify
		case "indicate":
			result |= gatt.PropIndicate
		}
	}
	return result
}
