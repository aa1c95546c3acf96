// Package signal provides a small publish/subscribe change signal.
// Subscribers are told that something changed and re-query the state they
// care about; no payload is carried and bursts coalesce.
package signal

import "sync"

// Signal fans a change notification out to subscribers.
// The zero value is ready to use.
type Signal struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
	count  uint64
}

// New returns an empty signal.
func New() *Signal {
	return &Signal{}
}

// Subscribe registers a subscriber. The returned channel receives at most
// one pending notification at a time. Call cancel to unsubscribe; it closes
// the channel.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]chan struct{})
	}
	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Notify wakes every subscriber without blocking.
func (s *Signal) Notify() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Count returns how many times Notify has been called.
func (s *Signal) Count() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Subscribers returns the number of active subscribers.
func (s *Signal) Subscribers() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
