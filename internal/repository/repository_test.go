package repository

import (
	"context"
	"testing"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/pkg/cache"
)

func TestPermissionStore(t *testing.T) {
	c := cache.NewMemoryCache()
	s := NewPermissionStore(c)
	defer s.Close()
	ctx := context.Background()

	if _, found, err := s.Get(ctx, 3); err != nil || found {
		t.Fatalf("expected not found, got found=%v err=%v", found, err)
	}

	if err := s.Set(ctx, 3, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	allowed, found, err := s.Get(ctx, 3)
	if err != nil || !found || allowed {
		t.Fatalf("expected stored false, got allowed=%v found=%v err=%v", allowed, found, err)
	}

	var raw string
	if err := c.Get(ctx, "permission:3", &raw); err != nil || raw != "0" {
		t.Fatalf("unexpected raw value %q err=%v", raw, err)
	}

	if err := s.Clear(ctx, 3); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := s.Get(ctx, 3); found {
		t.Fatalf("permission should be gone")
	}
}

func TestMemoryBalanceHistory(t *testing.T) {
	h := NewMemoryBalanceHistory()
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	if s, _ := h.Latest(ctx); s != nil {
		t.Fatalf("empty history should have no latest")
	}

	for _, i := range []int{2, 0, 3, 1} {
		_ = h.Append(ctx, models.BalanceSnapshot{Timestamp: base.Add(time.Duration(i) * time.Hour), Balance: float64(i)})
	}

	latest, _ := h.Latest(ctx)
	if latest.Balance != 3 {
		t.Fatalf("latest should be the newest timestamp, got %+v", latest)
	}

	got, _ := h.Range(ctx, base, base.Add(2*time.Hour), 0)
	if len(got) != 3 || got[0].Balance != 0 || got[2].Balance != 2 {
		t.Fatalf("unexpected range %+v", got)
	}
	got, _ = h.Range(ctx, base, base.Add(10*time.Hour), 2)
	if len(got) != 2 {
		t.Fatalf("limit not applied, got %d", len(got))
	}

	_ = h.Clear(ctx)
	if s, _ := h.Latest(ctx); s != nil {
		t.Fatalf("history should be empty after clear")
	}
}
