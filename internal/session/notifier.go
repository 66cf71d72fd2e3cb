package session

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blec/internal/ringchan"
)

// LifecycleEventType tags a connection lifecycle transition.
type LifecycleEventType int

const (
	// EventConnected is emitted when a session reaches Connected.
	EventConnected LifecycleEventType = iota
	// EventDisconnected is emitted on every transition out of Connected and
	// on failed connect attempts.
	EventDisconnected
)

func (t LifecycleEventType) String() string {
	if t == EventConnected {
		return "connected"
	}
	return "disconnected"
}

// LifecycleEvent carries one connect/disconnect transition for a device.
type LifecycleEvent struct {
	Type    LifecycleEventType
	Address string
}

// Notifier broadcasts lifecycle events to a single process-wide sink.
// Delivery is best effort: with no sink registered events are dropped, and a
// slow consumer loses the oldest events rather than blocking a stack
// callback.
type Notifier struct {
	mu     sync.RWMutex
	sink   *ringchan.RingChannel[LifecycleEvent]
	logger *logrus.Logger
}

// NewNotifier creates a Notifier with no sink registered.
func NewNotifier(logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Notifier{logger: logger}
}

// Sink registers the process-wide event sink with the given buffer capacity
// and returns its receive side. A subsequent call replaces the previous sink;
// the old channel is closed once no delivery is in flight on it.
func (n *Notifier) Sink(capacity int) <-chan LifecycleEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sink != nil {
		n.sink.Close()
	}
	n.sink = ringchan.New[LifecycleEvent](capacity)
	return n.sink.C()
}

// Emit delivers an event to the registered sink, if any. The read lock is
// held across the send so Sink cannot close the channel mid delivery.
func (n *Notifier) Emit(t LifecycleEventType, address string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.sink == nil {
		return
	}
	if n.sink.ForceSend(LifecycleEvent{Type: t, Address: address}) {
		n.logger.WithFields(logrus.Fields{
			"event":   t.String(),
			"address": address,
		}).Debug("Lifecycle sink full, dropped oldest event")
	}
}
