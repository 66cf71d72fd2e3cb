package gatt

import "strings"

// Property is the characteristic capability bitmask, matching the GATT
// characteristic properties field bit for bit.
type Property int

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropAuthenticatedSignedWrites
	PropExtendedProperties
)

// Has reports whether every bit of p2 is set in p.
func (p Property) Has(p2 Property) bool { return p&p2 == p2 }

func (p Property) String() string {
	names := []struct {
		bit  Property
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteWithoutResponse, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
		{PropAuthenticatedSignedWrites, "authenticated-signed-writes"},
		{PropExtendedProperties, "extended-properties"},
	}
	var parts []string
	for _, n := range names {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// Descriptor is a native descriptor handle within a characteristic.
type Descriptor struct {
	UUID string
}

// Characteristic is the stack-native characteristic handle. The session core
// indexes these by UUID and passes them back to the stack for every
// read/write/subscribe request.
type Characteristic struct {
	UUID        string
	Properties  Property
	Descriptors []Descriptor
}

// HasDescriptor reports whether the characteristic lists the given descriptor.
func (c *Characteristic) HasDescriptor(uuid string) bool {
	for _, d := range c.Descriptors {
		if d.UUID == uuid {
			return true
		}
	}
	return false
}

// Service is one discovered GATT service and its characteristics, in the
// order the stack reported them.
type Service struct {
	UUID            string
	Primary         bool
	Characteristics []*Characteristic
}

// Advertisement is a scan result descriptor. Only Address matters to the
// session core; the rest exists for scan-time presentation.
type Advertisement struct {
	Address          string
	Name             string
	RSSI             int
	Connectable      bool
	Services         []string
	ManufacturerData []byte
}

// Client Characteristic Configuration Descriptor: the standard descriptor
// written to enable or disable notification delivery for a characteristic.
const CCCDUUID = "2902"

// CCCD values. Little-endian 16-bit configuration bits.
var (
	CCCDNotifyEnable   = []byte{0x01, 0x00}
	CCCDIndicateEnable = []byte{0x02, 0x00}
	CCCDDisable        = []byte{0x00, 0x00}
)
