package outbox

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/liverelay/liverelay/internal/logging"
	"github.com/liverelay/liverelay/internal/models"
)

// DeliveryFunc performs the outbound call for one queue item kind. A nil
// return means the backend accepted the call; any error counts as one failed
// attempt, with no distinction between timeouts, refused connections, and
// non-2xx responses.
type DeliveryFunc func(ctx context.Context, payload json.RawMessage) error

const failReasonMaxRetries = "max retries exceeded"

// Dispatcher drains the store on a fixed interval, delivering each pending
// item through the DeliveryFunc registered for its kind.
type Dispatcher struct {
	store       Store
	deliver     map[models.QueueKind]DeliveryFunc
	maxAttempts int
	interval    time.Duration
	logger      *logging.Logger

	draining atomic.Bool
	kick     chan struct{}
}

// NewDispatcher wires a dispatcher to its store and delivery table.
func NewDispatcher(store Store, deliver map[models.QueueKind]DeliveryFunc, maxAttempts int, interval time.Duration, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Get()
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Dispatcher{
		store:       store,
		deliver:     deliver,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger,
		kick:        make(chan struct{}, 1),
	}
}

// Enqueue stores an item and nudges the drain loop. It is fire-and-forget:
// the producer already failed to deliver directly, so the only job left is
// to get the item on disk.
func (d *Dispatcher) Enqueue(kind models.QueueKind, payload json.RawMessage, priority int) {
	item := models.NewQueueItem(kind, payload, priority)
	if err := d.store.Append(item); err != nil {
		d.logger.Error("failed to enqueue outbound call", err, map[string]any{"kind": string(kind)})
		return
	}
	d.Kick()
}

// Kick requests an eager drain outside the fixed interval.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run drains on the configured interval until ctx is cancelled. Production of
// new items is independent of this loop; Kick only shortens the wait.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// drain whatever survived the last shutdown
	d.Drain(ctx)

	for {
		select {
		case <-ticker.C:
			d.Drain(ctx)
		case <-d.kick:
			d.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain runs one delivery pass. A second call while a pass is in progress is
// a no-op rather than an error.
func (d *Dispatcher) Drain(ctx context.Context) {
	if !d.draining.CompareAndSwap(false, true) {
		return
	}
	defer d.draining.Store(false)

	pending := d.store.LoadPending()
	if len(pending) == 0 {
		return
	}
	d.logger.Info("draining outbox", map[string]any{"pending": len(pending)})

	var sent []string
	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}

		if item.Attempts >= d.maxAttempts {
			if err := d.store.MarkFailed(item.ID, failReasonMaxRetries); err != nil {
				d.logger.Error("failed to mark item failed", err, map[string]any{"id": item.ID})
			}
			d.logger.Warn("outbox item exhausted retries", map[string]any{
				"id": item.ID, "kind": string(item.Kind), "attempts": item.Attempts,
			})
			continue
		}

		if err := d.attempt(ctx, item); err != nil {
			if incErr := d.store.IncrementAttempt(item.ID); incErr != nil {
				d.logger.Error("failed to record attempt", incErr, map[string]any{"id": item.ID})
			}
			d.logger.Warn("outbox delivery failed", map[string]any{
				"id": item.ID, "kind": string(item.Kind),
				"attempt": item.Attempts + 1, "max": d.maxAttempts, "error": err.Error(),
			})
			continue
		}
		sent = append(sent, item.ID)
	}

	if len(sent) > 0 {
		if err := d.store.MarkSent(sent); err != nil {
			d.logger.Error("failed to mark items sent", err)
		} else if err := d.store.Compact(); err != nil {
			d.logger.Error("failed to compact outbox", err)
		}
		d.logger.Info("outbox items delivered", map[string]any{"sent": len(sent)})
	}
}

// attempt invokes the delivery function registered for the item's kind.
func (d *Dispatcher) attempt(ctx context.Context, item models.QueueItem) error {
	fn, ok := d.deliver[item.Kind]
	if !ok {
		// unknown kinds burn through their attempts and land in failed,
		// where they stay visible for inspection
		return errUnknownKind(item.Kind)
	}
	return fn(ctx, item.Payload)
}

type unknownKindError struct{ kind models.QueueKind }

func (e unknownKindError) Error() string { return "no delivery function for kind " + string(e.kind) }

func errUnknownKind(kind models.QueueKind) error { return unknownKindError{kind: kind} }

// Stats exposes the underlying store summary.
func (d *Dispatcher) Stats() models.QueueStats {
	return d.store.Stats()
}
