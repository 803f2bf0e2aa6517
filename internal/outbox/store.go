// Package outbox provides the durable staging area for outbound API calls
// and the dispatcher that retries them until success or exhaustion.
package outbox

import (
	"github.com/liverelay/liverelay/internal/models"
)

// Store is the persistence port for queue items. The dispatcher's retry and
// ordering logic is written against this interface so it runs unchanged over
// a file, an embedded database, or an in-memory store under test.
type Store interface {
	// Append inserts a new item in priority order: descending priority,
	// insertion order preserved among equal priorities.
	Append(item models.QueueItem) error

	// LoadPending returns pending items in persisted order. A storage read
	// failure yields an empty slice, not an error; the queue is simply
	// unavailable this cycle.
	LoadPending() []models.QueueItem

	// MarkSent records a successful delivery for each id.
	MarkSent(ids []string) error

	// MarkFailed transitions an item to the terminal failed state.
	MarkFailed(id, reason string) error

	// IncrementAttempt counts one delivery failure and stamps the attempt time.
	IncrementAttempt(id string) error

	// Compact removes sent items, keeping pending and failed for inspection.
	Compact() error

	// ResetFailed returns failed items to pending with a fresh attempt
	// budget, reporting how many were reset.
	ResetFailed() (int, error)

	// Stats summarizes the queue by status.
	Stats() models.QueueStats
}
