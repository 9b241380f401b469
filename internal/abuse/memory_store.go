package abuse

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps fixed-window counters in process memory. Limits enforced with it
// apply per replica.
type MemoryStore struct {
	mu         sync.Mutex
	windows    map[string]*memoryWindow
	clock      func() time.Time
	increments int
}

// NewMemoryStore builds an in-process counter store. A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
		clock:   clock,
	}
}

// Increment implements CounterStore.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	s.increments++
	if s.increments%sweepEvery == 0 {
		s.sweepLocked(now)
	}

	current, ok := s.windows[key]
	if !ok || !now.Before(current.resetAt) {
		current = &memoryWindow{resetAt: now.Add(window)}
		s.windows[key] = current
	}
	current.count++
	return Window{Count: current.count, ResetAt: current.resetAt}, nil
}

// Len reports how many windows are currently tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Sweep drops every elapsed window.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.clock())
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, window := range s.windows {
		if !now.Before(window.resetAt) {
			delete(s.windows, key)
		}
	}
}
