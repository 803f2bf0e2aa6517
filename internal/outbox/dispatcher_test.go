package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liverelay/liverelay/internal/models"
)

// failingDelivery fails a set number of times before succeeding.
type failingDelivery struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *failingDelivery) deliver(ctx context.Context, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (f *failingDelivery) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// TestDispatcherDeliversPending verifies one drain pass delivers a pending
// item and compacts it away.
func TestDispatcherDeliversPending(t *testing.T) {
	store := NewMemoryStore()
	delivery := &failingDelivery{}
	d := NewDispatcher(store, map[models.QueueKind]DeliveryFunc{
		models.KindSubmitEvent: delivery.deliver,
	}, 3, time.Minute, nil)

	d.Enqueue(models.KindSubmitEvent, json.RawMessage(`{}`), 1)
	d.Drain(context.Background())

	if delivery.callCount() != 1 {
		t.Errorf("Expected 1 delivery call, got %d", delivery.callCount())
	}
	stats := store.Stats()
	if stats.Total != 0 {
		t.Errorf("Expected empty queue after successful drain, got %d items", stats.Total)
	}
}

// TestDispatcherFailureKeepsItemPending verifies a failed delivery leaves the
// item pending with one attempt recorded.
func TestDispatcherFailureKeepsItemPending(t *testing.T) {
	store := NewMemoryStore()
	delivery := &failingDelivery{failures: 100}
	d := NewDispatcher(store, map[models.QueueKind]DeliveryFunc{
		models.KindSubmitEvent: delivery.deliver,
	}, 3, time.Minute, nil)

	d.Enqueue(models.KindSubmitEvent, json.RawMessage(`{}`), 1)
	d.Drain(context.Background())

	pending := store.LoadPending()
	if len(pending) != 1 {
		t.Fatalf("Expected item to stay pending, got %d pending", len(pending))
	}
	if pending[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", pending[0].Attempts)
	}
	if pending[0].Status != models.StatusPending {
		t.Errorf("Expected pending status, got %s", pending[0].Status)
	}
}

// TestDispatcherExhaustsRetries verifies an item that keeps failing is marked
// failed with the max-retries reason and never attempted again.
func TestDispatcherExhaustsRetries(t *testing.T) {
	store := NewMemoryStore()
	delivery := &failingDelivery{failures: 100}
	d := NewDispatcher(store, map[models.QueueKind]DeliveryFunc{
		models.KindSubmitEvent: delivery.deliver,
	}, 3, time.Minute, nil)

	item := models.NewQueueItem(models.KindSubmitEvent, json.RawMessage(`{}`), 1)
	if err := store.Append(item); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// three failing passes exhaust the budget, the fourth marks it failed
	for i := 0; i < 4; i++ {
		d.Drain(context.Background())
	}

	if delivery.callCount() != 3 {
		t.Errorf("Expected exactly 3 delivery attempts, got %d", delivery.callCount())
	}

	stats := store.Stats()
	if stats.Failed != 1 {
		t.Fatalf("Expected 1 failed item, got %d", stats.Failed)
	}
	if stats.Pending != 0 {
		t.Errorf("Expected no pending items, got %d", stats.Pending)
	}

	// a further pass must not attempt the failed item
	d.Drain(context.Background())
	if delivery.callCount() != 3 {
		t.Errorf("Failed item was attempted again: %d calls", delivery.callCount())
	}
}

// TestDispatcherRecoversAfterTransientFailures verifies an item that fails
// twice and then succeeds is delivered within its attempt budget.
func TestDispatcherRecoversAfterTransientFailures(t *testing.T) {
	store := NewMemoryStore()
	delivery := &failingDelivery{failures: 2}
	d := NewDispatcher(store, map[models.QueueKind]DeliveryFunc{
		models.KindSubmitEvent: delivery.deliver,
	}, 3, time.Minute, nil)

	d.Enqueue(models.KindSubmitEvent, json.RawMessage(`{}`), 1)
	for i := 0; i < 3; i++ {
		d.Drain(context.Background())
	}

	if delivery.callCount() != 3 {
		t.Errorf("Expected 3 delivery calls, got %d", delivery.callCount())
	}
	stats := store.Stats()
	if stats.Total != 0 {
		t.Errorf("Expected empty queue after recovery, got %+v", stats)
	}
}

// TestDispatcherUnknownKind verifies items with no registered delivery
// function burn their attempts and end up failed, not stuck.
func TestDispatcherUnknownKind(t *testing.T) {
	store := NewMemoryStore()
	d := NewDispatcher(store, map[models.QueueKind]DeliveryFunc{}, 3, time.Minute, nil)

	d.Enqueue(models.QueueKind("bogus"), json.RawMessage(`{}`), 1)
	for i := 0; i < 4; i++ {
		d.Drain(context.Background())
	}

	stats := store.Stats()
	if stats.Failed != 1 {
		t.Errorf("Expected unknown-kind item to fail, got %+v", stats)
	}
}

// TestDispatcherSingleFlight verifies concurrent Drain calls collapse into
// one pass.
func TestDispatcherSingleFlight(t *testing.T) {
	store := NewMemoryStore()

	var active, maxActive int32
	block := make(chan struct{})
	d := NewDispatcher(store, map[models.QueueKind]DeliveryFunc{
		models.KindSubmitEvent: func(ctx context.Context, payload json.RawMessage) error {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}
			<-block
			atomic.AddInt32(&active, -1)
			return nil
		},
	}, 3, time.Minute, nil)

	d.Enqueue(models.KindSubmitEvent, json.RawMessage(`{}`), 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Drain(context.Background())
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Errorf("Expected at most 1 concurrent drain, observed %d", got)
	}
}
