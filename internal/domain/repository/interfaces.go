package repository

import (
	"context"
	"time"

	"MT5Hub/internal/domain/models"
)

// PermissionStore persists the per-bot trading permission.
type PermissionStore interface {
	// Get returns the stored value and whether one exists.
	Get(ctx context.Context, botID int) (allowed bool, found bool, err error)
	Set(ctx context.Context, botID int, allowed bool) error
	Clear(ctx context.Context, botID int) error
	Close() error
}

// BalanceHistory is the append-only log of fleet balance snapshots.
type BalanceHistory interface {
	Append(ctx context.Context, s models.BalanceSnapshot) error
	Latest(ctx context.Context) (*models.BalanceSnapshot, error)
	Range(ctx context.Context, from, to time.Time, limit int) ([]models.BalanceSnapshot, error)
	Clear(ctx context.Context) error
	Close() error
}

// Notifier delivers structured reports to the presentation layer.
type Notifier interface {
	Notify(ctx context.Context, kind models.ReportKind, payload interface{}, channels []int64) error
	Close() error
}

type Metrics interface {
	RecordEvent(kind, result string)
	RecordAuthRejection(reason string)
	RecordReport(kind string, err error)
	RecordConnectedBots(n int)
	RecordLatency(op string, seconds float64)
}
