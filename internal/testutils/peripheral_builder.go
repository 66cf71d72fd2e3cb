package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blec/internal/bledb"
	"github.com/srg/blec/internal/gatt"
)

// CharacteristicConfig describes one characteristic of a simulated device.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes one service of a simulated device.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig is the complete profile of a simulated device.
type PeripheralConfig struct {
	Address  string          `json:"address"`
	Name     string          `json:"name,omitempty"`
	RSSI     int             `json:"rssi,omitempty"`
	MTU      int             `json:"mtu,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder assembles a FakePeripheral with a fluent API.
type PeripheralBuilder struct {
	config PeripheralConfig
}

// NewPeripheralBuilder starts a builder for a device at the given address.
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{config: PeripheralConfig{Address: address}}
}

// FromJSON replaces the whole profile from a JSON document. Invalid JSON
// panics; builders only run in tests.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	doc := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(doc), &b.config); err != nil {
		panic(fmt.Sprintf("invalid peripheral JSON: %v", err))
	}
	return b
}

func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.config.Name = name
	return b
}

func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.config.RSSI = rssi
	return b
}

func (b *PeripheralBuilder) WithMTU(mtu int) *PeripheralBuilder {
	b.config.MTU = mtu
	return b
}

// WithService appends a service to the profile.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.config.Services = append(b.config.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic appends a characteristic to the last added service.
// Panics when no service has been added.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.config.Services) == 0 {
		panic("WithCharacteristic called before WithService")
	}
	svc := &b.config.Services[len(b.config.Services)-1]
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// Build materializes the FakePeripheral. Characteristics with a notify or
// indicate property get a CCCD descriptor so subscription paths exercise the
// descriptor write.
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := &FakePeripheral{
		Address: b.config.Address,
		Name:    b.config.Name,
		RSSI:    b.config.RSSI,
		MTU:     b.config.MTU,
		Values:  make(map[string][]byte),
	}

	for _, svcCfg := range b.config.Services {
		svc := &gatt.Service{UUID: svcCfg.UUID, Primary: true}
		for _, charCfg := range svcCfg.Characteristics {
			char := &gatt.Characteristic{
				UUID:       charCfg.UUID,
				Properties: ParseProperties(charCfg.Properties),
			}
			if char.Properties.Has(gatt.PropNotify) || char.Properties.Has(gatt.PropIndicate) {
				char.Descriptors = append(char.Descriptors, gatt.Descriptor{UUID: gatt.CCCDUUID})
			}
			svc.Characteristics = append(svc.Characteristics, char)
			if charCfg.Value != nil {
				value := make([]byte, len(charCfg.Value))
				copy(value, charCfg.Value)
				p.Values[bledb.NormalizeUUID(charCfg.UUID)] = value
			}
		}
		p.Services = append(p.Services, svc)
	}
	return p
}
