package store

import (
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 16

// Value is a status the store can hold. Equality (==) is the change test.
type Value interface {
	comparable

	// IsTransient reports a failed check; transient values are never stored.
	IsTransient() bool

	// IsUnknown reports the initial sentinel; a transition away from it is
	// committed but not reported.
	IsUnknown() bool
}

// ChangeEvent describes a committed transition between two values.
type ChangeEvent[S Value] struct {
	Identifier string    `json:"identifier"`
	From       S         `json:"from"`
	To         S         `json:"to"`
	At         time.Time `json:"at"`
}

// StatusStore is a single register holding the monitored identifier and its
// current status.
//
// All reads and writes go through one mutex, so a reader never observes a
// half-applied update and the compare in [StatusStore.Record] cannot
// interleave with another write.
type StatusStore[S Value] struct {
	mu         sync.RWMutex
	identifier string
	hasID      bool
	current    S
	unknown    S
	now        func() time.Time

	subMu       sync.RWMutex
	subscribers map[chan ChangeEvent[S]]struct{}
}

// New creates a store with no identifier whose status starts at unknown.
func New[S Value](unknown S) *StatusStore[S] {
	return &StatusStore[S]{
		current:     unknown,
		unknown:     unknown,
		now:         time.Now,
		subscribers: make(map[chan ChangeEvent[S]]struct{}),
	}
}

// SetIdentifier replaces the identifier and resets the status to unknown,
// so the next conclusive observation is not reported as a change. This is
// the only way the status moves back to unknown.
func (s *StatusStore[S]) SetIdentifier(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identifier = id
	s.hasID = true
	s.current = s.unknown
}

// Identifier returns the current identifier and whether one is set.
func (s *StatusStore[S]) Identifier() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identifier, s.hasID
}

// Current returns the stored status.
func (s *StatusStore[S]) Current() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Snapshot returns identifier and status read under one lock.
func (s *StatusStore[S]) Snapshot() (id string, ok bool, current S) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identifier, s.hasID, s.current
}

// Record compares obs with the stored status for identifier id and commits it
// if it differs.
//
// Rules:
//   - transient and unknown observations leave the store untouched and
//     yield no event
//   - observations made for an identifier that is no longer current are
//     discarded (the check raced a SetIdentifier)
//   - an observation equal to the stored status yields no event
//   - a differing observation is committed; an event is returned unless the
//     previous status was unknown
//
// The returned bool reports whether an event was produced. Events are also
// delivered to subscribers.
func (s *StatusStore[S]) Record(id string, obs S) (ChangeEvent[S], bool) {
	if obs.IsTransient() || obs.IsUnknown() {
		return ChangeEvent[S]{}, false
	}

	s.mu.Lock()
	if !s.hasID || s.identifier != id || s.current == obs {
		s.mu.Unlock()
		return ChangeEvent[S]{}, false
	}

	prev := s.current
	s.current = obs
	if prev.IsUnknown() {
		s.mu.Unlock()
		return ChangeEvent[S]{}, false
	}

	event := ChangeEvent[S]{
		Identifier: id,
		From:       prev,
		To:         obs,
		At:         s.now(),
	}
	s.mu.Unlock()

	s.notifySubscribers(event)
	return event, true
}

// Subscribe returns a channel that receives every change event.
//
// Caller must call [StatusStore.Unsubscribe] when done.
func (s *StatusStore[S]) Subscribe() <-chan ChangeEvent[S] {
	ch := make(chan ChangeEvent[S], subscriberBuffer)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once or with an unknown channel.
func (s *StatusStore[S]) Unsubscribe(ch <-chan ChangeEvent[S]) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for subCh := range s.subscribers {
		if subCh == ch {
			delete(s.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (s *StatusStore[S]) notifySubscribers(event ChangeEvent[S]) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// slow subscriber, drop
		}
	}
}
