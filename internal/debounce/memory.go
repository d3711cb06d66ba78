package debounce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
)

// MemoryState keeps debounce state in process memory. It is lost on restart,
// which at worst lets one duplicate punch through.
type MemoryState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewMemoryState creates an empty in-memory state.
func NewMemoryState() *MemoryState {
	return &MemoryState{last: make(map[string]time.Time)}
}

// TryAcquire implements State.
func (s *MemoryState) TryAcquire(_ context.Context, employeeID string, now time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.last[employeeID]; ok && now.Sub(last) < window {
		return false, nil
	}
	s.last[employeeID] = now
	return true, nil
}

// Last implements State.
func (s *MemoryState) Last(_ context.Context, employeeID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[employeeID]
	return t, ok, nil
}

// Release implements State.
func (s *MemoryState) Release(_ context.Context, employeeID string, emittedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.last[employeeID]; ok && last.Equal(emittedAt) {
		delete(s.last, employeeID)
	}
	return nil
}

// Restore seeds the state, e.g. from the latest stored punches.
func (s *MemoryState) Restore(last map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range last {
		if cur, ok := s.last[id]; !ok || t.After(cur) {
			s.last[id] = t
		}
	}
}

// RestoreFromPunches seeds the state with the newest stored punch of each
// employee among the last limit punches.
func (s *MemoryState) RestoreFromPunches(ctx context.Context, punches database.PunchReader, limit int) (int, error) {
	recent, err := punches.ListRecentPunches(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("restoring debounce state: %w", err)
	}
	last := make(map[string]time.Time)
	for _, p := range recent {
		if cur, ok := last[p.EmployeeID]; !ok || p.Timestamp.After(cur) {
			last[p.EmployeeID] = p.Timestamp
		}
	}
	s.Restore(last)
	return len(last), nil
}
