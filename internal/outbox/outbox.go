package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/paywall-labs/paywall-go/config"
	"github.com/paywall-labs/paywall-go/internal/backend"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/metrics"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/storage"
)

// Outbox is the persisted analytics event queue. Entries survive reloads and
// are removed only after the backend acknowledges them, giving at-least-once
// delivery. The persisted list is last-writer-wins across instances.
type Outbox struct {
	store   storage.Store
	client  backend.Client
	cfg     config.OutboxConfig
	ttl     time.Duration
	limiter *rate.Limiter
	sem     *semaphore.Weighted

	// mu serializes mutations of the persisted list within this instance
	mu sync.Mutex
}

// New creates an outbox backed by the given store and backend client
func New(store storage.Store, client backend.Client, cfg config.OutboxConfig, ttl time.Duration) *Outbox {
	return &Outbox{
		store:   store,
		client:  client,
		cfg:     cfg,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Limit(cfg.FlushRate), 1),
		sem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

// Enqueue appends an event to the persisted queue
func (o *Outbox) Enqueue(ctx context.Context, event models.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.load(ctx)
	if err != nil {
		return err
	}
	pending = append(pending, event)
	return o.save(ctx, pending)
}

// Pending returns a copy of the queued events
func (o *Outbox) Pending(ctx context.Context) ([]models.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx)
}

// Flush delivers queued events in batches. Delivered entries are removed by
// insert id; entries enqueued concurrently with a flush are retained. A
// failed batch leaves the whole remainder queued for the next attempt.
func (o *Outbox) Flush(ctx context.Context) error {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire flush slot: %w", err)
	}
	defer o.sem.Release(1)

	o.mu.Lock()
	pending, err := o.load(ctx)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	sent := 0
	for start := 0; start < len(pending); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if err := o.limiter.Wait(ctx); err != nil {
			o.remove(ctx, pending[:sent])
			return fmt.Errorf("rate limit: %w", err)
		}

		if err := o.client.CreateEvents(ctx, batch); err != nil {
			o.remove(ctx, pending[:sent])
			metrics.RecordEventFlush(sent, "partial")
			logger.Warn("Event flush failed; keeping queue", "sent", sent, "error", err)
			return err
		}
		sent = end
	}

	o.remove(ctx, pending[:sent])
	metrics.RecordEventFlush(sent, "success")
	logger.Debug("Flushed events", "count", sent)
	return nil
}

// Run flushes on a fixed interval until the context is cancelled
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Flush(ctx); err != nil && ctx.Err() == nil {
				logger.Debug("Scheduled flush failed", "error", err)
			}
		}
	}
}

// remove deletes delivered entries from the persisted list by insert id
func (o *Outbox) remove(ctx context.Context, delivered []models.Event) {
	if len(delivered) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.load(ctx)
	if err != nil {
		return
	}

	deliveredIDs := make(map[string]bool, len(delivered))
	for _, ev := range delivered {
		deliveredIDs[ev.InsertID] = true
	}

	remaining := current[:0]
	for _, ev := range current {
		if !deliveredIDs[ev.InsertID] {
			remaining = append(remaining, ev)
		}
	}

	if err := o.save(ctx, remaining); err != nil {
		logger.Warn("Failed to trim delivered events", "error", err)
	}
}

func (o *Outbox) load(ctx context.Context) ([]models.Event, error) {
	raw, ok, err := o.store.Get(ctx, storage.KeyOutbox)
	if err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var events []models.Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		// A corrupt queue is unrecoverable; drop it rather than wedge flushing.
		logger.Warn("Dropping corrupt event queue", "error", err)
		_ = o.store.Delete(ctx, storage.KeyOutbox)
		return nil, nil
	}
	return events, nil
}

func (o *Outbox) save(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return o.store.Delete(ctx, storage.KeyOutbox)
	}

	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}
	return o.store.Set(ctx, storage.KeyOutbox, string(raw), o.ttl)
}
