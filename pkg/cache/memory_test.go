package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, GenerateKey("permission", 7), "0", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got string
	if err := c.Get(ctx, "permission:7", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "0" {
		t.Fatalf("expected 0, got %q", got)
	}

	type row struct{ A int }
	if err := c.Set(ctx, "row", row{A: 3}, 0); err != nil {
		t.Fatalf("set struct: %v", err)
	}
	var r row
	if err := c.Get(ctx, "row", &r); err != nil || r.A != 3 {
		t.Fatalf("unexpected struct round trip %+v err=%v", r, err)
	}
}

func TestMemoryCacheMissAndDelete(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	var s string
	if err := c.Get(ctx, "nope", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	_ = c.Set(ctx, "k", "v", 0)
	if ok, _ := c.Exists(ctx, "k"); !ok {
		t.Fatalf("key should exist")
	}
	_ = c.Delete(ctx, "k")
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Fatalf("key should be gone")
	}
}

func TestMemoryCacheExpiration(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "short", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var s string
	if err := c.Get(ctx, "short", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired key should miss, got %v", err)
	}
}

func TestMemoryCacheCleanupRemovesExpired(t *testing.T) {
	c := NewMemoryCache(WithMemoryCleanup(5 * time.Millisecond))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "short", "v", time.Millisecond)
	_ = c.Set(ctx, "keep", "v", 0)

	deadline := time.Now().Add(time.Second)
	for {
		c.mutex.Lock()
		n := len(c.data)
		c.mutex.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cleanup did not run, %d items left", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ok, _ := c.Exists(ctx, "keep"); !ok {
		t.Fatalf("non-expiring key was removed")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", "1", 0)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "b", "2", 0)
	time.Sleep(time.Millisecond)
	var s string
	_ = c.Get(ctx, "a", &s)
	time.Sleep(time.Millisecond)
	_ = c.Set(ctx, "c", "3", 0)

	if ok, _ := c.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if ok, _ := c.Exists(ctx, k); !ok {
			t.Fatalf("%s should remain", k)
		}
	}
}
