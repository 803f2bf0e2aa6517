package outbox

import (
	"sync"
	"time"

	"github.com/liverelay/liverelay/internal/models"
)

// MemoryStore implements Store without persistence. It backs dispatcher tests
// and can stand in for the file store when durability is not wanted.
type MemoryStore struct {
	mu    sync.Mutex
	items []models.QueueItem
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append inserts the item in priority order, stable among equal priorities.
func (s *MemoryStore) Append(item models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.items {
		if existing.Priority < item.Priority {
			s.items = append(s.items[:i], append([]models.QueueItem{item}, s.items[i:]...)...)
			return nil
		}
	}
	s.items = append(s.items, item)
	return nil
}

// LoadPending returns pending items in stored order.
func (s *MemoryStore) LoadPending() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.QueueItem
	for _, item := range s.items {
		if item.Status == models.StatusPending {
			pending = append(pending, item)
		}
	}
	return pending
}

// MarkSent records a successful delivery for each id.
func (s *MemoryStore) MarkSent(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := make(map[string]bool, len(ids))
	for _, id := range ids {
		sent[id] = true
	}
	now := time.Now().UTC()
	for i := range s.items {
		if sent[s.items[i].ID] {
			s.items[i].Status = models.StatusSent
			s.items[i].SentAt = &now
		}
	}
	return nil
}

// MarkFailed transitions an item to the terminal failed state.
func (s *MemoryStore) MarkFailed(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = models.StatusFailed
			s.items[i].LastError = reason
		}
	}
	return nil
}

// IncrementAttempt counts one delivery failure.
func (s *MemoryStore) IncrementAttempt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Attempts++
			s.items[i].LastAttemptAt = &now
		}
	}
	return nil
}

// Compact removes sent items.
func (s *MemoryStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	for _, item := range s.items {
		if item.Status != models.StatusSent {
			kept = append(kept, item)
		}
	}
	s.items = kept
	return nil
}

// ResetFailed returns failed items to pending with a fresh attempt budget.
func (s *MemoryStore) ResetFailed() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := 0
	for i := range s.items {
		if s.items[i].Status == models.StatusFailed {
			s.items[i].Status = models.StatusPending
			s.items[i].Attempts = 0
			s.items[i].LastError = ""
			reset++
		}
	}
	return reset, nil
}

// Stats summarizes the queue by status.
func (s *MemoryStore) Stats() models.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return tally(s.items)
}
