package auth

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*AuthCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewAuthCache(ttl)
	c.now = clock.now
	return c, clock
}

func TestCache_FreshHit(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	cache.Set("bsk_abc123", &Admin{KeyID: 1, Name: "ops"})

	result := cache.Get("bsk_abc123")
	if !result.Hit {
		t.Fatal("expected cache hit")
	}
	if result.NeedsRefresh {
		t.Error("fresh entry should not need refresh")
	}
	if result.Admin.Name != "ops" {
		t.Errorf("expected ops, got %s", result.Admin.Name)
	}
}

func TestCache_Miss(t *testing.T) {
	cache, _ := newTestCache(time.Minute)

	result := cache.Get("bsk_nonexistent")
	if result.Hit || result.Admin != nil || result.NeedsRefresh {
		t.Errorf("expected empty miss, got %+v", result)
	}
}

func TestCache_StaleHit_OnlyOneRefreshSignal(t *testing.T) {
	cache, clock := newTestCache(time.Minute)
	cache.Set("bsk_abc123", &Admin{Name: "ops"})
	clock.advance(2 * time.Minute)

	r1 := cache.Get("bsk_abc123")
	if !r1.Hit || !r1.NeedsRefresh {
		t.Fatalf("first stale read should hit and signal refresh, got %+v", r1)
	}
	r2 := cache.Get("bsk_abc123")
	if !r2.Hit {
		t.Fatal("expected stale hit on second read")
	}
	if r2.NeedsRefresh {
		t.Error("second stale read should not signal refresh")
	}
}

func TestCache_ReleaseAllowsRetry(t *testing.T) {
	cache, clock := newTestCache(time.Minute)
	cache.Set("bsk_abc123", &Admin{Name: "ops"})
	clock.advance(2 * time.Minute)

	if !cache.Get("bsk_abc123").NeedsRefresh {
		t.Fatal("expected refresh signal")
	}
	cache.Release("bsk_abc123")
	if !cache.Get("bsk_abc123").NeedsRefresh {
		t.Error("expected refresh signal again after release")
	}
}

func TestCache_SetAfterStale_ResetsFreshness(t *testing.T) {
	cache, clock := newTestCache(time.Minute)
	cache.Set("bsk_abc123", &Admin{Name: "ops"})
	clock.advance(2 * time.Minute)
	cache.Get("bsk_abc123")

	cache.Set("bsk_abc123", &Admin{Name: "ops-renamed"})

	r := cache.Get("bsk_abc123")
	if r.NeedsRefresh {
		t.Error("newly set entry should be fresh")
	}
	if r.Admin.Name != "ops-renamed" {
		t.Errorf("expected updated admin, got %s", r.Admin.Name)
	}
}

func TestCache_Delete(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	cache.Set("bsk_abc123", &Admin{Name: "ops"})
	cache.Delete("bsk_abc123")

	if cache.Get("bsk_abc123").Hit {
		t.Error("expected miss after delete")
	}
}

func TestCache_KeysAreHashed(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	cache.Set("bsk_secret", &Admin{Name: "ops"})

	cache.store.Range(func(k, _ any) bool {
		if k.(string) == "bsk_secret" {
			t.Error("plaintext key stored in cache")
		}
		return true
	})
}

func TestCache_ConcurrentStaleRefresh(t *testing.T) {
	cache, clock := newTestCache(time.Minute)
	cache.Set("bsk_key", &Admin{Name: "ops"})
	clock.advance(2 * time.Minute)

	var wg sync.WaitGroup
	var refreshCount atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := cache.Get("bsk_key")
			if result.NeedsRefresh {
				refreshCount.Add(1)
			}
			if !result.Hit {
				t.Error("expected stale hit")
			}
		}()
	}
	wg.Wait()

	if refreshCount.Load() != 1 {
		t.Errorf("expected exactly 1 refresh signal, got %d", refreshCount.Load())
	}
}

func BenchmarkCache_Get_FreshHit(b *testing.B) {
	cache := NewAuthCache(5 * time.Minute)
	cache.Set("bsk_bench_key", &Admin{Name: "bench"})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if !cache.Get("bsk_bench_key").Hit {
				b.Fatal("expected hit")
			}
		}
	})
}
