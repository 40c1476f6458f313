package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"MT5Hub/internal/domain/models"
)

// MemoryBalanceHistory keeps snapshots ordered by timestamp in process.
type MemoryBalanceHistory struct {
	mu        sync.RWMutex
	snapshots []models.BalanceSnapshot
}

func NewMemoryBalanceHistory() *MemoryBalanceHistory {
	return &MemoryBalanceHistory{}
}

func (h *MemoryBalanceHistory) Append(_ context.Context, s models.BalanceSnapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := sort.Search(len(h.snapshots), func(i int) bool {
		return h.snapshots[i].Timestamp.After(s.Timestamp)
	})
	h.snapshots = append(h.snapshots, models.BalanceSnapshot{})
	copy(h.snapshots[i+1:], h.snapshots[i:])
	h.snapshots[i] = s
	return nil
}

func (h *MemoryBalanceHistory) Latest(_ context.Context) (*models.BalanceSnapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.snapshots) == 0 {
		return nil, nil
	}
	s := h.snapshots[len(h.snapshots)-1]
	return &s, nil
}

// Range returns snapshots with from <= timestamp <= to, oldest first, at most limit rows.
func (h *MemoryBalanceHistory) Range(_ context.Context, from, to time.Time, limit int) ([]models.BalanceSnapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]models.BalanceSnapshot, 0)
	for _, s := range h.snapshots {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

func (h *MemoryBalanceHistory) Clear(_ context.Context) error {
	h.mu.Lock()
	h.snapshots = nil
	h.mu.Unlock()
	return nil
}

func (h *MemoryBalanceHistory) Close() error { return nil }
