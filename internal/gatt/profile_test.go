package gatt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/blec/internal/gatt"
)

func TestPropertyHas(t *testing.T) {
	// GOAL: Verify bitmask queries require every requested bit

	p := gatt.PropRead | gatt.PropNotify

	assert.True(t, p.Has(gatt.PropRead), "single set bit MUST match")
	assert.True(t, p.Has(gatt.PropRead|gatt.PropNotify), "full mask MUST match")
	assert.False(t, p.Has(gatt.PropWrite), "unset bit MUST NOT match")
	assert.False(t, p.Has(gatt.PropRead|gatt.PropWrite), "partially set mask MUST NOT match")
}

func TestPropertyString(t *testing.T) {
	// GOAL: Verify the human-readable property rendering

	p := gatt.PropRead | gatt.PropWrite | gatt.PropNotify

	assert.Equal(t, "read,write,notify", p.String(), "names MUST follow bit order")
	assert.Equal(t, "", gatt.Property(0).String(), "empty mask MUST render empty")
}

func TestCharacteristicHasDescriptor(t *testing.T) {
	// GOAL: Verify descriptor membership lookup

	char := &gatt.Characteristic{
		UUID:        "2a37",
		Descriptors: []gatt.Descriptor{{UUID: gatt.CCCDUUID}},
	}

	assert.True(t, char.HasDescriptor(gatt.CCCDUUID), "listed descriptor MUST be found")
	assert.False(t, char.HasDescriptor("2901"), "unlisted descriptor MUST NOT be found")
}

func TestStatus(t *testing.T) {
	// GOAL: Verify status success check and rendering

	assert.True(t, gatt.StatusSuccess.Ok(), "success MUST report ok")
	assert.False(t, gatt.StatusFailure.Ok(), "failure MUST NOT report ok")
	assert.Equal(t, "read not permitted", gatt.StatusReadNotPermitted.String(), "known code MUST render its name")
	assert.Equal(t, "status 0x42", gatt.Status(0x42).String(), "unknown code MUST render in hex")
}
