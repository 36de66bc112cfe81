package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, KeySelection, "main,2", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok, err := s.Get(ctx, KeySelection)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || value != "main,2" {
		t.Errorf("Expected 'main,2', got %q (ok=%v)", value, ok)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Errorf("Expected absent key")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, KeyOutbox, "[]", 24*time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Still present just before expiry
	s.now = func() time.Time { return now.Add(23 * time.Hour) }
	if _, ok, _ := s.Get(ctx, KeyOutbox); !ok {
		t.Errorf("Expected key present before TTL")
	}

	// Gone after expiry
	s.now = func() time.Time { return now.Add(25 * time.Hour) }
	if _, ok, _ := s.Get(ctx, KeyOutbox); ok {
		t.Errorf("Expected key expired after TTL")
	}
}

func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, KeyAppVersion, "1.0.0", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.now = func() time.Time { return now.Add(10000 * time.Hour) }
	if _, ok, _ := s.Get(ctx, KeyAppVersion); !ok {
		t.Errorf("Expected zero-TTL key to persist")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.Set(ctx, KeyDeepLink, "dl_x", time.Hour)
	if err := s.Delete(ctx, KeyDeepLink); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, KeyDeepLink); ok {
		t.Errorf("Expected key deleted")
	}
}

func TestUserIDKeySplit(t *testing.T) {
	if UserIDKey(true) == UserIDKey(false) {
		t.Errorf("Expected sandbox and production user id keys to differ")
	}
}
