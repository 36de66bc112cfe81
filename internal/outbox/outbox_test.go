package outbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/paywall-labs/paywall-go/config"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/storage"
)

type fakeBackend struct {
	fail    bool
	batches [][]models.Event
}

func (f *fakeBackend) CreateUser(ctx context.Context, userID string, attrs models.CustomerAttributes) (*models.User, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeBackend) CreateEvents(ctx context.Context, events []models.Event) error {
	if f.fail {
		return fmt.Errorf("backend down")
	}
	batch := make([]models.Event, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeBackend) SetAttribution(ctx context.Context, attribution models.Attribution) error {
	return nil
}

func (f *fakeBackend) CreateCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.CustomerSession, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeBackend) CreateSubscription(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeBackend) ReportError(ctx context.Context, message string) {}

func newTestOutbox(backend *fakeBackend) (*Outbox, storage.Store) {
	store := storage.NewMemoryStore()
	cfg := config.OutboxConfig{
		FlushInterval: time.Second,
		FlushRate:     1000,
		MaxInFlight:   2,
		BatchSize:     2,
	}
	return New(store, backend, cfg, 24*time.Hour), store
}

func event(id string) models.Event {
	return models.Event{Name: "paywall_shown", InsertID: id, Timestamp: time.Now()}
}

func TestEnqueuePersists(t *testing.T) {
	ctx := context.Background()
	o, store := newTestOutbox(&fakeBackend{})

	if err := o.Enqueue(ctx, event("i1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Simulate a reload by constructing a fresh outbox on the same store
	reloaded := New(store, &fakeBackend{}, config.OutboxConfig{FlushRate: 1000, MaxInFlight: 1, BatchSize: 10}, 24*time.Hour)
	pending, err := reloaded.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].InsertID != "i1" {
		t.Errorf("Expected queued event to survive reload, got %+v", pending)
	}
}

func TestFlushDeliversAndClears(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	o, _ := newTestOutbox(backend)

	for i := 0; i < 5; i++ {
		_ = o.Enqueue(ctx, event(fmt.Sprintf("i%d", i)))
	}

	if err := o.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// BatchSize 2 means 3 batches for 5 events
	if len(backend.batches) != 3 {
		t.Errorf("Expected 3 batches, got %d", len(backend.batches))
	}

	pending, _ := o.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("Expected empty queue after flush, got %d", len(pending))
	}
}

func TestFailedFlushRetainsEvents(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{fail: true}
	o, _ := newTestOutbox(backend)

	_ = o.Enqueue(ctx, event("i1"))
	_ = o.Enqueue(ctx, event("i2"))

	if err := o.Flush(ctx); err == nil {
		t.Fatalf("Expected flush error")
	}

	pending, _ := o.Pending(ctx)
	if len(pending) != 2 {
		t.Errorf("Expected events retained for retry, got %d", len(pending))
	}

	// Recovery: backend comes back and the same events deliver
	backend.fail = false
	if err := o.Flush(ctx); err != nil {
		t.Fatalf("Flush after recovery failed: %v", err)
	}
	pending, _ = o.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("Expected queue drained after recovery, got %d", len(pending))
	}
}

func TestConcurrentEnqueueDuringFlushIsKept(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	o, _ := newTestOutbox(backend)

	_ = o.Enqueue(ctx, event("before"))
	if err := o.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	_ = o.Enqueue(ctx, event("after"))
	pending, _ := o.Pending(ctx)
	if len(pending) != 1 || pending[0].InsertID != "after" {
		t.Errorf("Expected only the new event queued, got %+v", pending)
	}
}

func TestCorruptQueueIsDropped(t *testing.T) {
	ctx := context.Background()
	o, store := newTestOutbox(&fakeBackend{})

	_ = store.Set(ctx, storage.KeyOutbox, "{not json", 24*time.Hour)

	pending, err := o.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected corrupt queue dropped, got %d entries", len(pending))
	}
}
