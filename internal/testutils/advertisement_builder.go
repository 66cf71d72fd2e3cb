package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blec/internal/gatt"
)

// AdvertisementBuilder assembles a gatt.Advertisement for scanner tests.
type AdvertisementBuilder struct {
	adv gatt.Advertisement
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: gatt.Advertisement{Connectable: true}}
}

// FromJSON replaces the advertisement from a JSON document. Panics on
// invalid JSON.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	doc := fmt.Sprintf(jsonStrFmt, args...)
	var cfg struct {
		Address          string   `json:"address"`
		Name             string   `json:"name,omitempty"`
		RSSI             int      `json:"rssi,omitempty"`
		Connectable      *bool    `json:"connectable,omitempty"`
		Services         []string `json:"services,omitempty"`
		ManufacturerData []byte   `json:"manufacturer_data,omitempty"`
	}
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		panic(fmt.Sprintf("invalid advertisement JSON: %v", err))
	}
	b.adv = gatt.Advertisement{
		Address:          cfg.Address,
		Name:             cfg.Name,
		RSSI:             cfg.RSSI,
		Connectable:      cfg.Connectable == nil || *cfg.Connectable,
		Services:         cfg.Services,
		ManufacturerData: cfg.ManufacturerData,
	}
	return b
}

func (b *AdvertisementBuilder) WithAddress(address string) *AdvertisementBuilder {
	b.adv.Address = address
	return b
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.RSSI = rssi
	return b
}

func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.Services = append(b.adv.Services, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufacturerData = data
	return b
}

func (b *AdvertisementBuilder) NotConnectable() *AdvertisementBuilder {
	b.adv.Connectable = false
	return b
}

func (b *AdvertisementBuilder) Build() gatt.Advertisement {
	return b.adv
}

// CreateMockAdvertisement is a shorthand for the common name/address/rssi case.
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}
