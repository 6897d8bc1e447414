// Package statebus provides non-blocking distribution of pipeline outputs
// (pose snapshots, feedback states, cue events) to interested consumers.
//
// Core philosophy, same as the frame path: "Drop values, never queue.
// Latency > Completeness." Two subscription policies exist:
//
//   - DropNew: backpressure-based; a full subscriber channel drops the
//     incoming value (used for discrete cue events where the consumer keeps
//     up or accepts loss)
//   - DropOld: latest-value semantics; a new value replaces the stored one
//     (used for the PoseSnapshot and FeedbackState observables, where stale
//     values are worse than missed ones)
package statebus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrBusClosed          = errors.New("statebus: bus is closed")
	ErrSubscriberExists   = errors.New("statebus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("statebus: subscriber not found")
	ErrNilChannel         = errors.New("statebus: nil channel provided")
)

// SubscriberStats tracks distribution metrics for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber[T any] struct {
	id      string
	ch      chan<- T           // DropNew policy
	holder  *latestHolder[T]   // DropOld policy
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes values to subscribers. All methods are safe for
// concurrent use.
type Bus[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber[T]
	published   atomic.Uint64
	closed      bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subscribers: make(map[string]*subscriber[T])}
}

// Subscribe registers a channel with DropNew policy: when the channel's
// buffer is full, incoming values are dropped for this subscriber.
func (b *Bus[T]) Subscribe(id string, ch chan<- T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if ch == nil {
		return ErrNilChannel
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber[T]{id: id, ch: ch}
	return nil
}

// SubscribeLatest registers a subscriber with DropOld policy and returns a
// receiver exposing the latest published value.
func (b *Bus[T]) SubscribeLatest(id string) (*Receiver[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	holder := newLatestHolder[T]()
	b.subscribers[id] = &subscriber[T]{id: id, holder: holder}
	return &Receiver[T]{holder: holder}, nil
}

// Publish distributes a value to all subscribers without ever blocking.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subscribers {
		switch {
		case sub.ch != nil:
			select {
			case sub.ch <- v:
				sub.sent.Add(1)
			default:
				sub.dropped.Add(1)
			}
		case sub.holder != nil:
			if sub.holder.set(v) {
				sub.dropped.Add(1) // replaced an unconsumed value
			}
			sub.sent.Add(1)
		}
	}
}

// Unsubscribe removes a subscriber. DropOld receivers are woken and closed.
func (b *Bus[T]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if sub.holder != nil {
		sub.holder.close()
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns a snapshot of a subscriber's distribution counters.
func (b *Bus[T]) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, exists := b.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    sub.sent.Load(),
		Dropped: sub.dropped.Load(),
	}, nil
}

// Close shuts the bus down. Publish becomes a no-op, DropOld receivers wake
// and report closure. Idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		if sub.holder != nil {
			sub.holder.close()
		}
	}
	b.subscribers = nil
}

// latestHolder is a single-slot mailbox with overwrite semantics.
type latestHolder[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  *T
	closed bool
}

func newLatestHolder[T any]() *latestHolder[T] {
	h := &latestHolder[T]{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// set stores the value, reporting whether it replaced an unconsumed one.
func (h *latestHolder[T]) set(v T) (replaced bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	replaced = h.value != nil
	h.value = &v
	h.cond.Broadcast()
	return replaced
}

func (h *latestHolder[T]) close() {
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Receiver consumes the latest value from a DropOld subscription.
type Receiver[T any] struct {
	holder *latestHolder[T]
}

// Receive blocks until a value is available or the subscription is closed.
// The second result is false on closure.
func (r *Receiver[T]) Receive() (T, bool) {
	h := r.holder
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.value == nil && !h.closed {
		h.cond.Wait()
	}
	if h.closed {
		var zero T
		return zero, false
	}

	v := *h.value
	h.value = nil // mark consumed
	return v, true
}

// TryReceive returns the latest unconsumed value without blocking.
func (r *Receiver[T]) TryReceive() (T, bool) {
	h := r.holder
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.value == nil || h.closed {
		var zero T
		return zero, false
	}
	v := *h.value
	h.value = nil
	return v, true
}

// Close wakes any blocked Receive and detaches the receiver.
func (r *Receiver[T]) Close() {
	r.holder.close()
}
