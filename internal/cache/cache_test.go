package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/loanscore/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return clock }

		_ = c.Set(ctx, tenantID, "expiring", []byte("temp"), time.Minute)
		if val, _ := c.Get(ctx, tenantID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock = clock.Add(2 * time.Minute)
		if val, _ := c.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expired entry not dropped, size %d", size)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)
		_, _ = small.Get(ctx, tenantID, "a")
		_ = small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-001", "shared-key", []byte("tenant1-value"), time.Minute)
		_ = cache.Set(ctx, "tenant-002", "shared-key", []byte("tenant2-value"), time.Minute)

		val1, _ := cache.Get(ctx, "tenant-001", "shared-key")
		val2, _ := cache.Get(ctx, "tenant-002", "shared-key")
		if string(val1) != "tenant1-value" || string(val2) != "tenant2-value" {
			t.Errorf("tenant values leaked: %q, %q", val1, val2)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID on Set")
		}
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID on Get")
		}
		if err := cache.Delete(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID on Delete")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	local := NewLRUCache(10)
	remote := NewLRUCache(10)
	c := newTwoPhase(local, remote, time.Minute)

	t.Run("WritesBothLayers", func(t *testing.T) {
		_ = c.Set(ctx, "t1", "k", []byte("v"), time.Hour)
		if v, _ := local.Get(ctx, "t1", "k"); string(v) != "v" {
			t.Error("L1 not written")
		}
		if v, _ := remote.Get(ctx, "t1", "k"); string(v) != "v" {
			t.Error("L2 not written")
		}
	})

	t.Run("PopulatesL1FromL2", func(t *testing.T) {
		_ = remote.Set(ctx, "t1", "only-remote", []byte("r"), time.Hour)
		v, err := c.Get(ctx, "t1", "only-remote")
		if err != nil || string(v) != "r" {
			t.Fatalf("expected L2 hit, got %q, %v", v, err)
		}
		if v, _ := local.Get(ctx, "t1", "only-remote"); string(v) != "r" {
			t.Error("L1 not populated")
		}
	})

	t.Run("DeleteBothLayers", func(t *testing.T) {
		_ = c.Delete(ctx, "t1", "k")
		if v, _ := c.Get(ctx, "t1", "k"); v != nil {
			t.Error("expected miss after delete")
		}
	})
}

func TestNewMemoryCache(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}
	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewLRUCache(100), domain.CacheConfig{})

	t.Run("Catalog", func(t *testing.T) {
		if _, ok, err := store.Catalog(ctx, "t1"); ok || err != nil {
			t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
		}

		products := []domain.LoanProduct{{ID: "p1", BankID: "b", Name: "Personal", Kind: domain.KindIndividual, MinGrade: domain.TierB, MaxAmount: 1000, MaxTenureMonths: 12, Enabled: true}}
		if err := store.PutCatalog(ctx, "t1", products); err != nil {
			t.Fatalf("PutCatalog failed: %v", err)
		}

		got, ok, err := store.Catalog(ctx, "t1")
		if err != nil || !ok {
			t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
		}
		if len(got) != 1 || got[0].ID != "p1" || got[0].MinGrade != domain.TierB {
			t.Errorf("unexpected catalog %+v", got)
		}

		_ = store.InvalidateCatalog(ctx, "t1")
		if _, ok, _ := store.Catalog(ctx, "t1"); ok {
			t.Error("expected miss after invalidate")
		}
	})

	t.Run("Evaluation", func(t *testing.T) {
		eval := &domain.Evaluation{ID: "e1", ApplicantID: "a1", Mode: domain.ModeStored, Kind: domain.KindIndividual}
		if err := store.PutEvaluation(ctx, "t1", eval); err != nil {
			t.Fatalf("PutEvaluation failed: %v", err)
		}

		got, err := store.Evaluation(ctx, "t1", "e1")
		if err != nil || got == nil || got.ApplicantID != "a1" {
			t.Fatalf("unexpected evaluation %+v, %v", got, err)
		}
		latest, _ := store.Latest(ctx, "t1", "a1")
		if latest == nil || latest.ID != "e1" {
			t.Errorf("unexpected latest %+v", latest)
		}

		_ = store.InvalidateLatest(ctx, "t1", "a1")
		if latest, _ := store.Latest(ctx, "t1", "a1"); latest != nil {
			t.Error("expected latest miss after invalidate")
		}
	})

	t.Run("RefusesSimulation", func(t *testing.T) {
		sim := &domain.Evaluation{ApplicantID: "a1", Mode: domain.ModeSimulation}
		if err := store.PutEvaluation(ctx, "t1", sim); err == nil {
			t.Error("expected simulation to be refused")
		}
	})
}
