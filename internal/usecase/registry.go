package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/domain/repository"
	"MT5Hub/pkg/clock"
	applogger "MT5Hub/pkg/logger"
)

// Registry is the in-memory fleet state. Every mutation of a BotStatus goes through it.
type Registry struct {
	mu    sync.RWMutex
	bots  map[int]*models.BotStatus
	perms repository.PermissionStore
	clock clock.Clock
	l     *applogger.Logger

	// times of the last change to any per-bot fingerprint part
	heartbeatChangedAt time.Time
	balanceChangedAt   time.Time
}

// FleetState is a consistent view of all bots together with one aggregate fingerprint.
type FleetState struct {
	Bots        []models.BotStatus
	Fingerprint string
	ChangedAt   time.Time
}

// NewRegistry creates an empty registry. Call Seed to populate the roster.
func NewRegistry(perms repository.PermissionStore, clk clock.Clock, l *applogger.Logger) *Registry {
	return &Registry{
		bots:  make(map[int]*models.BotStatus),
		perms: perms,
		clock: clk,
		l:     l.With(applogger.String("component", "registry")),
	}
}

// Seed creates a disconnected entry for every roster bot with its persisted trading permission.
func (r *Registry) Seed(ctx context.Context, roster []int) {
	for _, id := range roster {
		allowed := r.loadPermission(ctx, id)

		r.mu.Lock()
		b := r.entry(id)
		if b.TradeAllowed == nil {
			b.TradeAllowed = models.Ptr(allowed)
		}
		r.mu.Unlock()
	}
	r.l.Info("registry seeded", applogger.Ints("bot_ids", roster))
}

// entry returns the status for botID, creating it if needed. Caller holds mu.
func (r *Registry) entry(botID int) *models.BotStatus {
	b, ok := r.bots[botID]
	if !ok {
		b = &models.BotStatus{BotID: botID}
		r.bots[botID] = b
	}
	return b
}

// ApplyHeartbeat marks the bot connected and records its account details.
// It reports whether the bot's heartbeat fingerprint changed.
func (r *Registry) ApplyHeartbeat(botID int, login int64, broker *string, leverage *int) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.entry(botID)
	before := heartbeatPart(b)
	b.Connected = true
	b.Login = models.Ptr(login)
	b.Broker = clonePtr(broker)
	b.Leverage = clonePtr(leverage)
	b.LastHeartbeatAt = now
	if heartbeatPart(b) == before {
		return false
	}
	r.heartbeatChangedAt = now
	return true
}

// ApplyBalance records balance and profit. It reports whether the bot's balance fingerprint changed.
func (r *Registry) ApplyBalance(botID int, balance, profit float64) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.entry(botID)
	before := balancePart(b)
	b.Balance = models.Ptr(balance)
	b.Profit = models.Ptr(profit)
	b.LastBalanceAt = now
	if balancePart(b) == before {
		return false
	}
	r.balanceChangedAt = now
	return true
}

func (r *Registry) SetMaxSpread(botID int, spread float64) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.entry(botID)
	before := heartbeatPart(b)
	b.MaxSpread = models.Ptr(spread)
	if heartbeatPart(b) != before {
		r.heartbeatChangedAt = now
	}
}

// TradeAllowed returns the cached permission, loading it from the store on first use.
func (r *Registry) TradeAllowed(ctx context.Context, botID int) bool {
	r.mu.RLock()
	if b, ok := r.bots[botID]; ok && b.TradeAllowed != nil {
		v := *b.TradeAllowed
		r.mu.RUnlock()
		return v
	}
	r.mu.RUnlock()

	allowed := r.loadPermission(ctx, botID)

	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.entry(botID)
	if b.TradeAllowed == nil {
		b.TradeAllowed = models.Ptr(allowed)
	}
	return *b.TradeAllowed
}

// SetTradeAllowed persists the permission when it differs from the cached value.
// It reports whether anything was written. The store is called without holding the registry lock.
func (r *Registry) SetTradeAllowed(ctx context.Context, botID int, allowed bool) (bool, error) {
	r.mu.RLock()
	b, ok := r.bots[botID]
	unchanged := ok && b.TradeAllowed != nil && *b.TradeAllowed == allowed
	r.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	if err := r.perms.Set(ctx, botID, allowed); err != nil {
		return false, fmt.Errorf("persist trading permission for bot %d: %w", botID, err)
	}

	r.mu.Lock()
	r.entry(botID).TradeAllowed = models.Ptr(allowed)
	r.mu.Unlock()
	r.l.Info("trading permission changed", applogger.Int("bot_id", botID), applogger.Bool("allowed", allowed))
	return true, nil
}

// ResetTradeAllowed removes the persisted permission; the next read falls back to the default.
func (r *Registry) ResetTradeAllowed(ctx context.Context, botID int) error {
	if err := r.perms.Clear(ctx, botID); err != nil {
		return fmt.Errorf("clear trading permission for bot %d: %w", botID, err)
	}
	r.mu.Lock()
	if b, ok := r.bots[botID]; ok {
		b.TradeAllowed = nil
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadPermission(ctx context.Context, botID int) bool {
	allowed, found, err := r.perms.Get(ctx, botID)
	if err != nil {
		r.l.Warn("load trading permission failed, using default",
			applogger.Int("bot_id", botID), applogger.Error(err))
		return true
	}
	if !found {
		return true
	}
	return allowed
}

// DisconnectStale flips every connected bot whose last heartbeat is older than timeout.
func (r *Registry) DisconnectStale(now time.Time, timeout time.Duration) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []int
	for id, b := range r.bots {
		if b.Connected && now.Sub(b.LastHeartbeatAt) > timeout {
			b.Connected = false
			flipped = append(flipped, id)
		}
	}
	if len(flipped) > 0 {
		r.heartbeatChangedAt = now
	}
	sort.Ints(flipped)
	return flipped
}

// Snapshot returns deep copies of all bots ordered by id.
func (r *Registry) Snapshot() []models.BotStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []models.BotStatus {
	out := make([]models.BotStatus, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

// Get returns a copy of one bot.
func (r *Registry) Get(botID int) (models.BotStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[botID]
	if !ok {
		return models.BotStatus{}, false
	}
	return b.Clone(), true
}

// IDs returns every known bot id in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.bots))
	for id := range r.bots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *Registry) HeartbeatFingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return aggregate(r.bots, heartbeatPart)
}

func (r *Registry) BalanceFingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return aggregate(r.bots, balancePart)
}

// HeartbeatState returns the snapshot and heartbeat fingerprint under one lock.
func (r *Registry) HeartbeatState() FleetState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return FleetState{
		Bots:        r.snapshotLocked(),
		Fingerprint: aggregate(r.bots, heartbeatPart),
		ChangedAt:   r.heartbeatChangedAt,
	}
}

// BalanceState returns the snapshot and balance fingerprint under one lock.
func (r *Registry) BalanceState() FleetState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return FleetState{
		Bots:        r.snapshotLocked(),
		Fingerprint: aggregate(r.bots, balancePart),
		ChangedAt:   r.balanceChangedAt,
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
