package session

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blec/internal/bledb"
	"github.com/srg/blec/internal/ringchan"
)

// Notification is one inbound characteristic-change event, tagged with the
// characteristic it came from. One sink serves all subscribed
// characteristics of a session; consumers demultiplex by UUID.
type Notification struct {
	UUID string
	Data []byte
	TsUs int64
}

// Router demultiplexes inbound characteristic-change notifications to
// per-session subscriber sinks, keyed by device address. Events for an
// address without an attached sink are dropped.
//
// mu serializes Attach/Detach, which close the displaced channel, against
// deliveries in flight on it.
type Router struct {
	mu     sync.RWMutex
	sinks  *hashmap.Map[string, *ringchan.RingChannel[Notification]]
	logger *logrus.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		sinks:  hashmap.New[string, *ringchan.RingChannel[Notification]](),
		logger: logger,
	}
}

// Attach registers (or replaces) the notification sink for an address and
// returns its receive side.
func (r *Router) Attach(address string, capacity int) <-chan Notification {
	key := NormalizeAddress(address)
	sink := ringchan.New[Notification](capacity)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sinks.Get(key); ok {
		old.Close()
	}
	r.sinks.Set(key, sink)
	return sink.C()
}

// Detach removes and closes the sink for an address. Safe to call when no
// sink is attached.
func (r *Router) Detach(address string) {
	key := NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()
	if sink, ok := r.sinks.Get(key); ok {
		r.sinks.Del(key)
		sink.Close()
	}
}

// Route delivers a notification to the sink attached for the address. The
// payload is copied: the stack owns the original slice only for the duration
// of the callback.
func (r *Router) Route(address, charUUID string, data []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sinks.Get(NormalizeAddress(address))
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"address":   address,
			"char_uuid": charUUID,
		}).Debug("Notification for address without a sink, dropped")
		return
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	sink.ForceSend(Notification{
		UUID: bledb.NormalizeUUID(charUUID),
		Data: payload,
		TsUs: time.Now().UnixMicro(),
	})
}
