// Package eventbus fans adapter events out to the parties waiting on them.
//
// Two delivery paths exist. Topic is confined to the session event loop and
// carries correlation subscriptions for pending operations: a one-shot
// subscriber is detached before its handler runs, so a duplicate or late event
// never reaches it. Hub relays the same events to external observers through
// cskr/pubsub channels.
package eventbus

import "slices"

// Cancel detaches a subscription. Calling it more than once is harmless.
type Cancel func()

type subscriber[E any] struct {
	id     uint64
	match  func(E) bool
	fn     func(E)
	once   bool
	active bool
}

// Topic is an ordered subscriber list for one event type. It is not safe for
// concurrent use; every call must come from the owning event loop.
type Topic[E any] struct {
	name   string
	subs   []*subscriber[E]
	nextID uint64
}

func NewTopic[E any](name string) *Topic[E] {
	return &Topic[E]{name: name}
}

func (t *Topic[E]) Name() string {
	return t.name
}

// Subscribe registers fn for every published event until cancelled.
func (t *Topic[E]) Subscribe(fn func(E)) Cancel {
	return t.add(nil, fn, false)
}

// Once registers fn for the first published event satisfying match. A nil
// match accepts any event.
func (t *Topic[E]) Once(match func(E) bool, fn func(E)) Cancel {
	return t.add(match, fn, true)
}

// Publish delivers e to matching subscribers in registration order.
// Subscriptions added or cancelled by a handler take effect immediately.
func (t *Topic[E]) Publish(e E) int {
	delivered := 0
	snapshot := append([]*subscriber[E](nil), t.subs...)
	for _, s := range snapshot {
		if !s.active {
			continue
		}
		if s.match != nil && !s.match(e) {
			continue
		}
		if s.once {
			t.remove(s.id)
		}
		delivered++
		s.fn(e)
	}
	return delivered
}

// Len returns the number of live subscriptions.
func (t *Topic[E]) Len() int {
	return len(t.subs)
}

func (t *Topic[E]) add(match func(E) bool, fn func(E), once bool) Cancel {
	t.nextID++
	s := &subscriber[E]{id: t.nextID, match: match, fn: fn, once: once, active: true}
	t.subs = append(t.subs, s)
	id := s.id
	return func() { t.remove(id) }
}

func (t *Topic[E]) remove(id uint64) {
	for i, s := range t.subs {
		if s.id == id {
			s.active = false
			// Delete zeroes the vacated tail slot
			t.subs = slices.Delete(t.subs, i, i+1)
			return
		}
	}
}
