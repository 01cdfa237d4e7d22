package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IdempotencyStore remembers which event ids have been handled.
// Implementations must be safe for concurrent use.
type IdempotencyStore interface {
	// MarkSeen records id and reports whether it was already recorded.
	MarkSeen(ctx context.Context, id string) (seen bool, err error)
}

type seenEntry struct {
	id string
	at time.Time
}

// MemoryIdempotencyStore keeps ids for ttl in arrival order, so expiry only
// ever pops from the front.
type MemoryIdempotencyStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	ids   map[string]time.Time
	queue []seenEntry
	now   func() time.Time
}

// NewMemoryIdempotencyStore returns a store that forgets ids after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		ttl: ttl,
		ids: make(map[string]time.Time),
		now: time.Now,
	}
}

func (s *MemoryIdempotencyStore) MarkSeen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expire(now)
	if _, ok := s.ids[id]; ok {
		return true, nil
	}
	s.ids[id] = now
	s.queue = append(s.queue, seenEntry{id: id, at: now})
	return false, nil
}

// Len is the number of ids currently remembered.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(s.now())
	return len(s.ids)
}

func (s *MemoryIdempotencyStore) expire(now time.Time) {
	n := 0
	for n < len(s.queue) && now.Sub(s.queue[n].at) > s.ttl {
		delete(s.ids, s.queue[n].id)
		n++
	}
	if n > 0 {
		s.queue = append(s.queue[:0], s.queue[n:]...)
	}
}

// IdempotentHandler drops events whose id the store has already seen. Ids are
// marked before inner runs, so a failed event is not retried on redelivery.
// When the store itself fails the event is handled anyway.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		seen, err := store.MarkSeen(ctx, event.EventID)
		switch {
		case err != nil:
			logger.Warn("idempotency store unavailable, handling event anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		case seen:
			logger.Debug("duplicate event dropped",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}
		return inner(ctx, event)
	}
}
