//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/paywall-labs/paywall-go/config"
	"github.com/paywall-labs/paywall-go/internal/backend"
	"github.com/paywall-labs/paywall-go/internal/database"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/outbox"
	"github.com/paywall-labs/paywall-go/internal/storage"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	if !containersAvailable() {
		t.Skip("no container runtime available")
	}

	req := testcontainers.ContainerRequest{
		Image: "postgres:15-alpine",
		Env: map[string]string{
			"POSTGRES_DB":       "paywall",
			"POSTGRES_USER":     "paywall",
			"POSTGRES_PASSWORD": "password",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return "postgres://paywall:password@" + host + ":" + port.Port() + "/paywall?sslmode=disable"
}

func TestPostgresKVStore_WithContainer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)

	db, err := database.New(ctx, dsn)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	defer db.Close()

	store, err := storage.NewPostgresStore(ctx, db)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	if err := store.Set(ctx, storage.KeySelection, "main,1", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, err := store.Get(ctx, storage.KeySelection)
	if err != nil || !ok || value != "main,1" {
		t.Fatalf("Get: value=%q ok=%v err=%v", value, ok, err)
	}

	// Upsert replaces in place.
	if err := store.Set(ctx, storage.KeySelection, "main,0", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, _, _ = store.Get(ctx, storage.KeySelection)
	if value != "main,0" {
		t.Fatalf("expected upsert, got %q", value)
	}

	// An expired entry reads as absent.
	if err := store.Set(ctx, storage.KeyDeepLink, "tok", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, storage.KeyDeepLink); ok {
		t.Fatalf("expected expired entry to be absent")
	}

	// Zero TTL never expires.
	if err := store.Set(ctx, storage.KeyUserID, "uid-1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, ok, _ = store.Get(ctx, storage.KeyUserID)
	if !ok || value != "uid-1" {
		t.Fatalf("expected persistent entry, got %q ok=%v", value, ok)
	}

	if err := store.Delete(ctx, storage.KeyUserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, storage.KeyUserID); ok {
		t.Fatalf("expected deleted entry to be absent")
	}
}

type dropBackend struct{ fail bool }

func (b *dropBackend) CreateUser(ctx context.Context, userID string, attrs models.CustomerAttributes) (*models.User, error) {
	return &models.User{ID: userID}, nil
}

func (b *dropBackend) CreateEvents(ctx context.Context, evs []models.Event) error {
	if b.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (b *dropBackend) SetAttribution(ctx context.Context, attribution models.Attribution) error {
	return nil
}

func (b *dropBackend) CreateCustomer(ctx context.Context, req models.CreateCustomerRequest) (*models.CustomerSession, error) {
	return &models.CustomerSession{}, nil
}

func (b *dropBackend) CreateSubscription(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (b *dropBackend) ReportError(ctx context.Context, message string) {}

var _ backend.Client = (*dropBackend)(nil)

func TestOutboxSurvivesProcessRestart_WithContainer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)

	cfg := config.OutboxConfig{FlushInterval: time.Hour, FlushRate: 100, MaxInFlight: 2, BatchSize: 10}
	client := &dropBackend{fail: true}

	db, err := database.New(ctx, dsn)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	store, err := storage.NewPostgresStore(ctx, db)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	first := outbox.New(store, client, cfg, time.Hour)
	event := models.Event{Name: "paywall_shown", InsertID: "ins-1", Timestamp: time.Now().UTC()}
	if err := first.Enqueue(ctx, event); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := first.Flush(ctx); err == nil {
		t.Fatalf("expected failed flush to keep queue")
	}
	db.Close()

	// A fresh process over the same database sees the undelivered event.
	db2, err := database.New(ctx, dsn)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	defer db2.Close()
	store2, err := storage.NewPostgresStore(ctx, db2)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	client.fail = false
	second := outbox.New(store2, client, cfg, time.Hour)

	pending, err := second.Pending(ctx)
	if err != nil || len(pending) != 1 || pending[0].InsertID != "ins-1" {
		t.Fatalf("expected queued event to survive restart, got %v err=%v", pending, err)
	}

	if err := second.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	pending, _ = second.Pending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected queue drained after ack, got %d", len(pending))
	}
}
