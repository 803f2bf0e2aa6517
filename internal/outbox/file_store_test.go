package outbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/liverelay/liverelay/internal/models"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "outbox-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := NewFileStore(filepath.Join(dir, "outbox.json"), nil)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return store
}

func enqueue(t *testing.T, store Store, kind models.QueueKind, priority int) models.QueueItem {
	t.Helper()
	item := models.NewQueueItem(kind, json.RawMessage(`{}`), priority)
	if err := store.Append(item); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return item
}

// TestFileStorePriorityOrder verifies that items appended with priorities
// 0, 2, 1 come back ordered 2, 1, 0.
func TestFileStorePriorityOrder(t *testing.T) {
	store := newTestFileStore(t)

	enqueue(t, store, models.KindSubmitEvent, 0)
	enqueue(t, store, models.KindUpdateViewerCount, 2)
	enqueue(t, store, models.KindRecordViewerHistory, 1)

	pending := store.LoadPending()
	if len(pending) != 3 {
		t.Fatalf("Expected 3 pending items, got %d", len(pending))
	}

	want := []int{2, 1, 0}
	for i, item := range pending {
		if item.Priority != want[i] {
			t.Errorf("Position %d: expected priority %d, got %d", i, want[i], item.Priority)
		}
	}
}

// TestFileStoreStableWithinPriority verifies FIFO order among items that
// share a priority.
func TestFileStoreStableWithinPriority(t *testing.T) {
	store := newTestFileStore(t)

	first := enqueue(t, store, models.KindSubmitEvent, 1)
	second := enqueue(t, store, models.KindSubmitEvent, 1)
	third := enqueue(t, store, models.KindSubmitEvent, 1)

	pending := store.LoadPending()
	if len(pending) != 3 {
		t.Fatalf("Expected 3 pending items, got %d", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID || pending[2].ID != third.ID {
		t.Errorf("Equal-priority items reordered: got %s, %s, %s",
			pending[0].ID, pending[1].ID, pending[2].ID)
	}
}

// TestFileStoreSurvivesRestart verifies that a second store over the same
// file sees everything the first one wrote.
func TestFileStoreSurvivesRestart(t *testing.T) {
	dir, err := os.MkdirTemp("", "outbox-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "outbox.json")

	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	item := enqueue(t, store, models.KindSubmitEvent, 1)
	if err := store.IncrementAttempt(item.ID); err != nil {
		t.Fatalf("IncrementAttempt failed: %v", err)
	}

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	pending := reopened.LoadPending()
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending item after restart, got %d", len(pending))
	}
	if pending[0].ID != item.ID {
		t.Errorf("Expected item %s, got %s", item.ID, pending[0].ID)
	}
	if pending[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt after restart, got %d", pending[0].Attempts)
	}
}

// TestFileStoreCompact verifies that compaction removes sent items but keeps
// pending and failed ones.
func TestFileStoreCompact(t *testing.T) {
	store := newTestFileStore(t)

	sent := enqueue(t, store, models.KindSubmitEvent, 1)
	failed := enqueue(t, store, models.KindSubmitEvent, 1)
	pending := enqueue(t, store, models.KindSubmitEvent, 1)

	if err := store.MarkSent([]string{sent.ID}); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if err := store.MarkFailed(failed.ID, "max retries exceeded"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if err := store.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	stats := store.Stats()
	if stats.Total != 2 {
		t.Errorf("Expected 2 items after compact, got %d", stats.Total)
	}
	if stats.Sent != 0 {
		t.Errorf("Expected no sent items after compact, got %d", stats.Sent)
	}
	if stats.Pending != 1 || stats.Failed != 1 {
		t.Errorf("Expected 1 pending and 1 failed, got %d and %d", stats.Pending, stats.Failed)
	}

	remaining := store.LoadPending()
	if len(remaining) != 1 || remaining[0].ID != pending.ID {
		t.Errorf("Expected pending item %s to survive compaction", pending.ID)
	}
}

// TestFileStoreCorruptFile verifies that an unparseable queue file degrades
// to an empty queue instead of an error.
func TestFileStoreCorruptFile(t *testing.T) {
	store := newTestFileStore(t)

	if err := os.WriteFile(store.path, []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to corrupt file: %v", err)
	}

	if pending := store.LoadPending(); len(pending) != 0 {
		t.Errorf("Expected empty queue from corrupt file, got %d items", len(pending))
	}

	// the store must accept new items again after the corruption
	enqueue(t, store, models.KindSubmitEvent, 1)
	if pending := store.LoadPending(); len(pending) != 1 {
		t.Errorf("Expected 1 item after re-append, got %d", len(pending))
	}
}

// TestFileStoreReadErrorAbortsMutation verifies a transient read failure
// aborts mutations instead of rewriting the file from an empty queue.
func TestFileStoreReadErrorAbortsMutation(t *testing.T) {
	store := newTestFileStore(t)
	item := enqueue(t, store, models.KindSubmitEvent, 1)

	saved, err := os.ReadFile(store.path)
	if err != nil {
		t.Fatalf("Failed to snapshot queue file: %v", err)
	}

	// a directory in the file's place makes every read fail without the
	// file being missing
	if err := os.Remove(store.path); err != nil {
		t.Fatalf("Failed to remove queue file: %v", err)
	}
	if err := os.Mkdir(store.path, 0755); err != nil {
		t.Fatalf("Failed to block queue path: %v", err)
	}

	if err := store.IncrementAttempt(item.ID); err == nil {
		t.Error("Expected IncrementAttempt to fail on read error")
	}
	if err := store.MarkSent([]string{item.ID}); err == nil {
		t.Error("Expected MarkSent to fail on read error")
	}
	if err := store.Compact(); err == nil {
		t.Error("Expected Compact to fail on read error")
	}
	if _, err := store.ResetFailed(); err == nil {
		t.Error("Expected ResetFailed to fail on read error")
	}

	// once the file is readable again nothing must have been lost
	if err := os.Remove(store.path); err != nil {
		t.Fatalf("Failed to unblock queue path: %v", err)
	}
	if err := os.WriteFile(store.path, saved, 0644); err != nil {
		t.Fatalf("Failed to restore queue file: %v", err)
	}

	pending := store.LoadPending()
	if len(pending) != 1 || pending[0].ID != item.ID {
		t.Fatalf("Expected item to survive the read-error window, got %d items", len(pending))
	}
	if pending[0].Attempts != 0 {
		t.Errorf("Expected no attempt recorded during the outage, got %d", pending[0].Attempts)
	}
}

// TestFileStoreResetFailed verifies the retry command's reset semantics.
func TestFileStoreResetFailed(t *testing.T) {
	store := newTestFileStore(t)

	item := enqueue(t, store, models.KindSubmitEvent, 1)
	for i := 0; i < 3; i++ {
		if err := store.IncrementAttempt(item.ID); err != nil {
			t.Fatalf("IncrementAttempt failed: %v", err)
		}
	}
	if err := store.MarkFailed(item.ID, "max retries exceeded"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	reset, err := store.ResetFailed()
	if err != nil {
		t.Fatalf("ResetFailed failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("Expected 1 reset item, got %d", reset)
	}

	pending := store.LoadPending()
	if len(pending) != 1 {
		t.Fatalf("Expected item back in pending, got %d items", len(pending))
	}
	if pending[0].Attempts != 0 {
		t.Errorf("Expected attempts reset to 0, got %d", pending[0].Attempts)
	}
	if pending[0].LastError != "" {
		t.Errorf("Expected last error cleared, got %q", pending[0].LastError)
	}
}
