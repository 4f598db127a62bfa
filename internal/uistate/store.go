// Package uistate holds the reactive values the UI layer reads. It is a small
// registered-channel state store: each channel keeps its current value and
// fans dispatches out to listeners. The store is injected into the components
// that publish to it rather than being a package-level singleton.
package uistate

import (
	"sync"

	"community-dapp/go-client/internal/apperrors"
)

type listener struct {
	id int
	fn func(value any)
}

type channel struct {
	value     any
	listeners []listener
}

type Store struct {
	mu       sync.Mutex
	channels map[string]*channel
	nextID   int
}

func New() *Store {
	return &Store{channels: make(map[string]*channel)}
}

// Register declares a channel with its initial value. Re-registering resets
// the value but keeps listeners.
func (s *Store) Register(name string, initial any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[name]; ok {
		ch.value = initial
		return
	}
	s.channels[name] = &channel{value: initial}
}

// Dispatch updates the channel's current value and notifies listeners in
// subscription order.
func (s *Store) Dispatch(name string, value any) error {
	s.mu.Lock()
	ch, ok := s.channels[name]
	if !ok {
		s.mu.Unlock()
		return apperrors.New(apperrors.CodeConfiguration, "state channel not registered: "+name)
	}
	ch.value = value
	snapshot := make([]listener, len(ch.listeners))
	copy(snapshot, ch.listeners)
	s.mu.Unlock()

	for _, l := range snapshot {
		l.fn(value)
	}
	return nil
}

// Subscribe registers a listener for subsequent dispatches on the channel and
// returns an unsubscribe function. The current value is not replayed; use
// Value for a snapshot read.
func (s *Store) Subscribe(name string, fn func(value any)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, apperrors.New(apperrors.CodeConfiguration, "state channel not registered: "+name)
	}
	id := s.nextID
	s.nextID++
	ch.listeners = append(ch.listeners, listener{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range ch.listeners {
			if l.id == id {
				ch.listeners = append(ch.listeners[:i:i], ch.listeners[i+1:]...)
				return
			}
		}
	}, nil
}

// Value returns the channel's current value.
func (s *Store) Value(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, false
	}
	return ch.value, true
}
