package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blec/internal/session"
	"github.com/srg/blec/internal/testutils"
)

func newTestRegistry(t *testing.T) (*session.Registry, *testutils.FakeStack) {
	helper := testutils.NewTestHelper(t)
	stack := testutils.NewFakeStack()
	notifier := session.NewNotifier(helper.Logger)
	registry := session.NewRegistry(stack, notifier, helper.Logger)
	router := session.NewRouter(helper.Logger)
	stack.SetCallbacks(session.NewDispatcher(registry, router, helper.Logger))
	return registry, stack
}

func TestRegistryAddressNormalization(t *testing.T) {
	// GOAL: Verify address lookups are case and whitespace insensitive
	//
	// TEST SCENARIO: Register via lowercase → look up via uppercase and padded forms → same session

	registry, _ := newTestRegistry(t)

	created := registry.GetOrCreate("aa:bb:cc:dd:ee:ff")

	got, err := registry.Get("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err, "uppercase lookup MUST find the session")
	assert.Same(t, created, got, "MUST be the same session instance")

	got, err = registry.Get("  aa:bb:cc:dd:ee:ff ")
	require.NoError(t, err, "padded lookup MUST find the session")
	assert.Same(t, created, got, "MUST be the same session instance")

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", created.Address(), "session MUST carry the normalized address")
}

func TestRegistryGetUnknown(t *testing.T) {
	// GOAL: Verify lookups of unregistered addresses fail with NotFound

	registry, _ := newTestRegistry(t)

	_, err := registry.Get("11:22:33:44:55:66")

	var notFound *session.NotFoundError
	require.ErrorAs(t, err, &notFound, "error MUST be NotFoundError")
	assert.Equal(t, "device", notFound.Resource, "resource MUST be device")
}

func TestRegistryGetOrCreateIsStable(t *testing.T) {
	// GOAL: Verify repeated GetOrCreate converges on one session per address

	registry, _ := newTestRegistry(t)

	first := registry.GetOrCreate("AA:BB:CC:DD:EE:FF")
	second := registry.GetOrCreate("aa:bb:cc:dd:ee:ff")

	assert.Same(t, first, second, "MUST return the existing session")
	assert.Equal(t, 1, registry.Len(), "registry MUST hold one session")
}

func TestRegistryRemoveDisconnects(t *testing.T) {
	// GOAL: Verify Remove tears the session down before dropping it
	//
	// TEST SCENARIO: Connect → Remove → session disconnected, address gone, repeat Remove is a no-op

	registry, stack := newTestRegistry(t)
	stack.AddPeripheral(testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:FF").Build())

	sess := registry.GetOrCreate("AA:BB:CC:DD:EE:FF")
	require.NoError(t, sess.Connect(t.Context()), "connect MUST succeed")

	registry.Remove("aa:bb:cc:dd:ee:ff")

	assert.False(t, sess.IsConnected(), "removed session MUST be disconnected")
	_, err := registry.Get("AA:BB:CC:DD:EE:FF")
	assert.Error(t, err, "removed address MUST be unknown")

	registry.Remove("AA:BB:CC:DD:EE:FF")
}

func TestRegistryDisconnectAll(t *testing.T) {
	// GOAL: Verify shutdown tears down every registered session

	registry, stack := newTestRegistry(t)
	stack.AddPeripheral(testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:01").Build())
	stack.AddPeripheral(testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:02").Build())

	one := registry.GetOrCreate("AA:BB:CC:DD:EE:01")
	two := registry.GetOrCreate("AA:BB:CC:DD:EE:02")
	require.NoError(t, one.Connect(t.Context()), "connect MUST succeed")
	require.NoError(t, two.Connect(t.Context()), "connect MUST succeed")

	registry.DisconnectAll()

	assert.False(t, one.IsConnected(), "first session MUST be disconnected")
	assert.False(t, two.IsConnected(), "second session MUST be disconnected")
	assert.Equal(t, 2, registry.Len(), "sessions MUST remain registered")
}
