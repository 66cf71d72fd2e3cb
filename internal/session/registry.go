package session

import (
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blec/internal/gatt"
)

// Registry maps normalized device addresses to their sessions. Lookups are
// lock free; GetOrCreate races are resolved by the map's insert-if-absent.
type Registry struct {
	sessions *hashmap.Map[string, *Session]
	stack    gatt.Stack
	notifier *Notifier
	logger   *logrus.Logger
}

// NewRegistry creates an empty session registry backed by the given stack.
func NewRegistry(stack gatt.Stack, notifier *Notifier, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		sessions: hashmap.New[string, *Session](),
		stack:    stack,
		notifier: notifier,
		logger:   logger,
	}
}

// NormalizeAddress canonicalizes a device address for registry keys. MAC
// addresses compare case insensitively; platform identifiers (macOS UUIDs)
// pass through the same fold unchanged in meaning.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// Get returns the session for the address, or a NotFoundError.
func (r *Registry) Get(address string) (*Session, error) {
	s, ok := r.sessions.Get(NormalizeAddress(address))
	if !ok {
		return nil, &NotFoundError{Resource: "device", Key: address}
	}
	return s, nil
}

// GetOrCreate returns the existing session for the address or registers a
// fresh disconnected one. Concurrent creators converge on a single winner.
func (r *Registry) GetOrCreate(address string) *Session {
	key := NormalizeAddress(address)
	if s, ok := r.sessions.Get(key); ok {
		return s
	}
	fresh := New(key, r.stack, r.notifier, r.logger)
	if r.sessions.Insert(key, fresh) {
		r.logger.WithField("address", key).Debug("Session registered")
		return fresh
	}
	// Lost the race; the winner's session is already in the map.
	s, _ := r.sessions.Get(key)
	return s
}

// Remove disconnects and drops the session for the address. Removing an
// unknown address is a no-op.
func (r *Registry) Remove(address string) {
	key := NormalizeAddress(address)
	s, ok := r.sessions.Get(key)
	if !ok {
		return
	}
	s.Disconnect()
	r.sessions.Del(key)
	r.logger.WithField("address", key).Debug("Session removed")
}

// Each calls fn for every registered session until fn returns false.
func (r *Registry) Each(fn func(*Session) bool) {
	r.sessions.Range(func(_ string, s *Session) bool {
		return fn(s)
	})
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// DisconnectAll tears down every session. Used on shutdown.
func (r *Registry) DisconnectAll() {
	r.sessions.Range(func(_ string, s *Session) bool {
		s.Disconnect()
		return true
	})
}
