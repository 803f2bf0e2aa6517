package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/models"
)

// FileStore keeps the full queue as one ordered JSON document on disk.
// Every mutation is load-modify-store; the write lands in a temp file that is
// renamed over the target so readers never observe a partial document. The
// file has a single intended writer; the mutex only serializes goroutines
// within this process.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
}

// NewFileStore creates a FileStore backed by the given path. The file is
// created with an empty queue if it does not exist yet.
func NewFileStore(path string, logger *logging.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logging.Get()
	}
	s := &FileStore{path: path, logger: logger}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save([]models.QueueItem{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// read loads the whole queue for mutating callers. A missing file is an
// empty queue and a corrupt one degrades to empty (its items are already
// lost), but a transient read error surfaces so the caller aborts instead
// of persisting an empty document over intact items.
func (s *FileStore) read() ([]models.QueueItem, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	var items []models.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("outbox file corrupt, treating queue as empty", map[string]any{
			"path": s.path, "error": err.Error(),
		})
		return nil, nil
	}
	return items, nil
}

// load is the read-only variant: any failure degrades to an empty queue so
// readers never take down the caller.
func (s *FileStore) load() []models.QueueItem {
	items, err := s.read()
	if err != nil {
		s.logger.Warn("outbox file unreadable, treating queue as empty", map[string]any{
			"path": s.path, "error": err.Error(),
		})
		return nil
	}
	return items
}

// save atomically replaces the queue document.
func (s *FileStore) save(items []models.QueueItem) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}

// Append inserts the item before the first existing item with strictly lower
// priority, so equal priorities keep their insertion order.
func (s *FileStore) Append(item models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read()
	if err != nil {
		s.logger.Error("failed to read outbox before append", err, map[string]any{"id": item.ID})
		return err
	}
	inserted := false
	for i, existing := range items {
		if existing.Priority < item.Priority {
			items = append(items[:i], append([]models.QueueItem{item}, items[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		items = append(items, item)
	}

	if err := s.save(items); err != nil {
		s.logger.Error("failed to persist outbox append", err, map[string]any{"id": item.ID})
		return err
	}
	s.logger.Info("queued outbound call", map[string]any{
		"id": item.ID, "kind": string(item.Kind), "priority": item.Priority, "queued": len(items),
	})
	return nil
}

// LoadPending returns pending items in persisted order.
func (s *FileStore) LoadPending() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []models.QueueItem
	for _, item := range s.load() {
		if item.Status == models.StatusPending {
			pending = append(pending, item)
		}
	}
	return pending
}

// MarkSent records a successful delivery for each id.
func (s *FileStore) MarkSent(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sent := make(map[string]bool, len(ids))
	for _, id := range ids {
		sent[id] = true
	}
	now := time.Now().UTC()

	return s.update(func(item *models.QueueItem) {
		if sent[item.ID] {
			item.Status = models.StatusSent
			item.SentAt = &now
		}
	})
}

// MarkFailed transitions an item to the terminal failed state.
func (s *FileStore) MarkFailed(id, reason string) error {
	return s.update(func(item *models.QueueItem) {
		if item.ID == id {
			item.Status = models.StatusFailed
			item.LastError = reason
		}
	})
}

// IncrementAttempt counts one delivery failure.
func (s *FileStore) IncrementAttempt(id string) error {
	now := time.Now().UTC()
	return s.update(func(item *models.QueueItem) {
		if item.ID == id {
			item.Attempts++
			item.LastAttemptAt = &now
		}
	})
}

// update applies fn to every item and persists the result. A read failure
// aborts the update rather than rewriting the file from an empty list.
func (s *FileStore) update(fn func(*models.QueueItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read()
	if err != nil {
		return err
	}
	for i := range items {
		fn(&items[i])
	}
	return s.save(items)
}

// Compact removes sent items, keeping pending and failed for inspection.
func (s *FileStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read()
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, item := range items {
		if item.Status != models.StatusSent {
			kept = append(kept, item)
		}
	}
	return s.save(kept)
}

// ResetFailed returns failed items to pending with a fresh attempt budget.
func (s *FileStore) ResetFailed() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read()
	if err != nil {
		return 0, err
	}
	reset := 0
	for i := range items {
		if items[i].Status == models.StatusFailed {
			items[i].Status = models.StatusPending
			items[i].Attempts = 0
			items[i].LastError = ""
			reset++
		}
	}
	if reset == 0 {
		return 0, nil
	}
	return reset, s.save(items)
}

// Stats summarizes the queue by status.
func (s *FileStore) Stats() models.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return tally(s.load())
}

func tally(items []models.QueueItem) models.QueueStats {
	stats := models.QueueStats{Total: len(items)}
	for _, item := range items {
		switch item.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusSent:
			stats.Sent++
		case models.StatusFailed:
			stats.Failed++
		}
	}
	return stats
}
