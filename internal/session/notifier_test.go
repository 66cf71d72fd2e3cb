package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blec/internal/session"
	"github.com/srg/blec/internal/testutils"
)

func TestNotifierDropsWithoutSink(t *testing.T) {
	// GOAL: Verify emitting with no sink registered is a safe no-op

	helper := testutils.NewTestHelper(t)
	notifier := session.NewNotifier(helper.Logger)

	notifier.Emit(session.EventConnected, "AA:BB:CC:DD:EE:FF")
}

func TestNotifierDeliversInOrder(t *testing.T) {
	// GOAL: Verify events arrive on the sink in emission order

	helper := testutils.NewTestHelper(t)
	notifier := session.NewNotifier(helper.Logger)
	sink := notifier.Sink(4)

	notifier.Emit(session.EventConnected, "AA:BB:CC:DD:EE:01")
	notifier.Emit(session.EventDisconnected, "AA:BB:CC:DD:EE:01")

	ev := <-sink
	assert.Equal(t, session.EventConnected, ev.Type, "first event MUST be connected")
	ev = <-sink
	assert.Equal(t, session.EventDisconnected, ev.Type, "second event MUST be disconnected")
}

func TestNotifierOverwritesOldestWhenFull(t *testing.T) {
	// GOAL: Verify a slow consumer loses the oldest events, never blocks the emitter
	//
	// TEST SCENARIO: Capacity 2 sink → three emissions → first event gone, last two retained

	helper := testutils.NewTestHelper(t)
	notifier := session.NewNotifier(helper.Logger)
	sink := notifier.Sink(2)

	notifier.Emit(session.EventConnected, "AA:BB:CC:DD:EE:01")
	notifier.Emit(session.EventConnected, "AA:BB:CC:DD:EE:02")
	notifier.Emit(session.EventConnected, "AA:BB:CC:DD:EE:03")

	ev := <-sink
	assert.Equal(t, "AA:BB:CC:DD:EE:02", ev.Address, "oldest event MUST have been dropped")
	ev = <-sink
	assert.Equal(t, "AA:BB:CC:DD:EE:03", ev.Address, "newest event MUST be retained")
}

func TestNotifierSinkReplacement(t *testing.T) {
	// GOAL: Verify re-registering the sink closes the previous channel

	helper := testutils.NewTestHelper(t)
	notifier := session.NewNotifier(helper.Logger)
	old := notifier.Sink(2)

	fresh := notifier.Sink(2)
	notifier.Emit(session.EventConnected, "AA:BB:CC:DD:EE:FF")

	_, ok := <-old
	assert.False(t, ok, "previous sink MUST be closed")
	ev := <-fresh
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", ev.Address, "new sink MUST receive events")
}

func TestNotifierSinkReplacementUnderLoad(t *testing.T) {
	// GOAL: Verify replacing the sink while events flow never faults the emitter
	//
	// TEST SCENARIO: One goroutine emits in a tight loop while the sink is re-registered repeatedly

	helper := testutils.NewTestHelper(t)
	notifier := session.NewNotifier(helper.Logger)
	notifier.Sink(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			notifier.Emit(session.EventConnected, "AA:BB:CC:DD:EE:FF")
		}
	}()

	for i := 0; i < 500; i++ {
		notifier.Sink(1)
	}
	<-done
}

func TestRouterRoutesByAddress(t *testing.T) {
	// GOAL: Verify notifications reach only the sink attached for their address

	helper := testutils.NewTestHelper(t)
	router := session.NewRouter(helper.Logger)
	one := router.Attach("AA:BB:CC:DD:EE:01", 4)
	two := router.Attach("AA:BB:CC:DD:EE:02", 4)

	router.Route("aa:bb:cc:dd:ee:01", "2A37", []byte{0x10})

	n := <-one
	require.Equal(t, "2a37", n.UUID, "UUID MUST be normalized")
	assert.Equal(t, []byte{0x10}, n.Data, "payload MUST match")

	select {
	case got := <-two:
		t.Fatalf("sink for another address MUST stay empty, got %v", got)
	default:
	}
}

func TestRouterCopiesPayload(t *testing.T) {
	// GOAL: Verify routed payloads are detached from the stack-owned buffer

	helper := testutils.NewTestHelper(t)
	router := session.NewRouter(helper.Logger)
	sink := router.Attach("AA:BB:CC:DD:EE:FF", 4)

	buf := []byte{0x01, 0x02}
	router.Route("AA:BB:CC:DD:EE:FF", "2A19", buf)
	buf[0] = 0xFF

	n := <-sink
	assert.Equal(t, []byte{0x01, 0x02}, n.Data, "payload MUST be a copy")
}

func TestRouterDetach(t *testing.T) {
	// GOAL: Verify detach closes the sink and later notifications are dropped

	helper := testutils.NewTestHelper(t)
	router := session.NewRouter(helper.Logger)
	sink := router.Attach("AA:BB:CC:DD:EE:FF", 4)

	router.Detach("AA:BB:CC:DD:EE:FF")
	router.Route("AA:BB:CC:DD:EE:FF", "2A19", []byte{1})

	_, ok := <-sink
	assert.False(t, ok, "detached sink MUST be closed")

	router.Detach("AA:BB:CC:DD:EE:FF")
}

func TestRouterReattachUnderLoad(t *testing.T) {
	// GOAL: Verify re-attaching a sink while notifications flow never faults delivery
	//
	// TEST SCENARIO: One goroutine routes in a tight loop while the sink is re-attached repeatedly, then detached

	helper := testutils.NewTestHelper(t)
	router := session.NewRouter(helper.Logger)
	router.Attach("AA:BB:CC:DD:EE:FF", 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			router.Route("AA:BB:CC:DD:EE:FF", "2A19", []byte{1})
		}
	}()

	for i := 0; i < 500; i++ {
		router.Attach("AA:BB:CC:DD:EE:FF", 1)
	}
	router.Detach("AA:BB:CC:DD:EE:FF")
	<-done
}
