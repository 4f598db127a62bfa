// Package events provides a typed publish/subscribe notifier with declared
// channels, synchronous in-order delivery and unsubscribe capabilities.
package events

import (
	"sync"

	"community-dapp/go-client/internal/apperrors"
)

type subscriber struct {
	id      int
	handler func(payload any)
}

// Notifier fans events out to subscribers of declared channels. Delivery is
// synchronous and in subscription order. There is no replay: a new subscriber
// never sees events emitted before it subscribed.
type Notifier struct {
	mu       sync.Mutex
	channels map[string][]subscriber
	nextID   int
}

func New(channels ...string) *Notifier {
	n := &Notifier{channels: make(map[string][]subscriber)}
	for _, c := range channels {
		n.channels[c] = nil
	}
	return n
}

// Register declares a channel. Registering an already-declared channel is a
// no-op.
func (n *Notifier) Register(channel string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.channels[channel]; !ok {
		n.channels[channel] = nil
	}
}

// Subscribe adds a handler to a declared channel and returns an unsubscribe
// function. Subscribing to an undeclared channel is a configuration error.
func (n *Notifier) Subscribe(channel string, handler func(payload any)) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	subs, ok := n.channels[channel]
	if !ok {
		return nil, apperrors.New(apperrors.CodeConfiguration, "event channel not registered: "+channel)
	}
	id := n.nextID
	n.nextID++
	n.channels[channel] = append(subs, subscriber{id: id, handler: handler})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		current := n.channels[channel]
		for i, s := range current {
			if s.id == id {
				n.channels[channel] = append(current[:i:i], current[i+1:]...)
				return
			}
		}
	}, nil
}

// Emit invokes all current subscribers of the channel synchronously, in
// subscription order. Handler panics are not recovered here; isolation is the
// subscriber's responsibility. Emitting on an undeclared channel is a
// configuration error.
func (n *Notifier) Emit(channel string, payload any) error {
	n.mu.Lock()
	subs, ok := n.channels[channel]
	if !ok {
		n.mu.Unlock()
		return apperrors.New(apperrors.CodeConfiguration, "event channel not registered: "+channel)
	}
	snapshot := make([]subscriber, len(subs))
	copy(snapshot, subs)
	n.mu.Unlock()

	for _, s := range snapshot {
		s.handler(payload)
	}
	return nil
}
