package scheduler

import "sync"

// Sequencer hands out strictly increasing sequence numbers per key and
// answers whether a given number is still the newest one issued for that key.
//
// Numbers come from a single counter shared by all keys, so a key that was
// forgotten and reused can never match a number issued before the reset.
type Sequencer struct {
	mu     sync.Mutex
	next   uint64
	latest map[string]uint64
}

// NewSequencer creates an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]uint64)}
}

// Next issues a new sequence number for key and marks it as the latest.
func (s *Sequencer) Next(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.latest[key] = s.next
	return s.next
}

// IsLatest reports whether seq is the most recent number issued for key.
func (s *Sequencer) IsLatest(key string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, ok := s.latest[key]
	return ok && latest == seq
}

// Forget drops key, invalidating every number issued for it so far.
func (s *Sequencer) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.latest, key)
}

// Reset forgets all keys.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make(map[string]uint64)
}
