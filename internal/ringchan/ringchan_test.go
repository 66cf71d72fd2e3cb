package ringchan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blec/internal/ringchan"
)

func TestSendReceive(t *testing.T) {
	// GOAL: Verify basic FIFO delivery

	ch := ringchan.New[int](4)
	defer ch.Close()

	ch.Send(1)
	ch.Send(2)

	v, ok := ch.Receive()
	require.True(t, ok, "receive MUST succeed")
	assert.Equal(t, 1, v, "MUST deliver in order")
	v, ok = ch.Receive()
	require.True(t, ok, "receive MUST succeed")
	assert.Equal(t, 2, v, "MUST deliver in order")
}

func TestForceSendOverwritesOldest(t *testing.T) {
	// GOAL: Verify ForceSend never blocks and drops the oldest element when full

	ch := ringchan.New[int](2)
	defer ch.Close()

	assert.False(t, ch.ForceSend(1), "send into free space MUST NOT drop")
	assert.False(t, ch.ForceSend(2), "send into free space MUST NOT drop")
	assert.True(t, ch.ForceSend(3), "send into full channel MUST drop the oldest")

	v, _ := ch.Receive()
	assert.Equal(t, 2, v, "oldest element MUST be gone")
	v, _ = ch.Receive()
	assert.Equal(t, 3, v, "newest element MUST survive")

	metrics := ch.GetMetrics()
	assert.Equal(t, int64(3), metrics.Written, "written counter MUST track sends")
	assert.Equal(t, int64(1), metrics.Overwritten, "overwritten counter MUST track drops")
}

func TestTrySendWhenFull(t *testing.T) {
	// GOAL: Verify TrySend reports a full channel without blocking

	ch := ringchan.New[int](1)
	defer ch.Close()

	assert.True(t, ch.TrySend(1), "TrySend into free space MUST succeed")
	assert.False(t, ch.TrySend(2), "TrySend into full channel MUST fail")
	assert.Equal(t, 1, ch.Len(), "length MUST be unchanged")
}

func TestTryReceiveWhenEmpty(t *testing.T) {
	// GOAL: Verify TryReceive reports an empty channel without blocking

	ch := ringchan.New[int](1)
	defer ch.Close()

	_, ok := ch.TryReceive()
	assert.False(t, ok, "TryReceive on empty channel MUST fail")
}

func TestCloseDrainsConsumers(t *testing.T) {
	// GOAL: Verify the receive side observes closure

	ch := ringchan.New[int](1)
	ch.Send(7)
	ch.Close()

	v, ok := <-ch.C()
	require.True(t, ok, "buffered value MUST still be readable")
	assert.Equal(t, 7, v, "value MUST match")

	_, ok = <-ch.C()
	assert.False(t, ok, "channel MUST be closed after drain")
}

func TestNewPanicsOnInvalidCapacity(t *testing.T) {
	// GOAL: Verify zero capacity is rejected at construction

	assert.Panics(t, func() { ringchan.New[int](0) }, "zero capacity MUST panic")
}
