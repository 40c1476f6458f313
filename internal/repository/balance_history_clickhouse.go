package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"MT5Hub/internal/domain/models"
	pkgch "MT5Hub/pkg/clickhouse"
	applogger "MT5Hub/pkg/logger"
)

const balanceHistoryTable = "balance_history"

// BalanceHistorySchema creates the snapshot table when missing.
var BalanceHistorySchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + balanceHistoryTable + ` (
        timestamp DateTime('UTC'),
        balance   Float64,
        profit    Float64
    ) ENGINE = MergeTree
    ORDER BY timestamp`,
}

// CHBalanceHistory implements BalanceHistory backed by ClickHouse.
type CHBalanceHistory struct {
	client *pkgch.Client
	db     *sql.DB
	l      *applogger.Logger
}

func NewCHBalanceHistory(ch *pkgch.Client, l *applogger.Logger) *CHBalanceHistory {
	return &CHBalanceHistory{
		client: ch,
		db:     ch.DB(),
		l:      l.With(applogger.String("component", "clickhouse_history")),
	}
}

// Init ensures the table exists.
func (s *CHBalanceHistory) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, BalanceHistorySchema)
}

func (s *CHBalanceHistory) Append(ctx context.Context, snap models.BalanceSnapshot) error {
	start := time.Now()
	const q = `INSERT INTO ` + balanceHistoryTable + ` (timestamp, balance, profit) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, snap.Timestamp.UTC(), snap.Balance, snap.Profit); err != nil {
		s.l.Error("clickhouse append error", applogger.Error(err))
		return fmt.Errorf("append snapshot: %w", err)
	}
	s.l.Debug("clickhouse append ok",
		applogger.Float64("balance", snap.Balance),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHBalanceHistory) Latest(ctx context.Context) (*models.BalanceSnapshot, error) {
	const q = `SELECT timestamp, balance, profit FROM ` + balanceHistoryTable + ` ORDER BY timestamp DESC LIMIT 1`
	var snap models.BalanceSnapshot
	err := s.db.QueryRowContext(ctx, q).Scan(&snap.Timestamp, &snap.Balance, &snap.Profit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.l.Error("clickhouse latest error", applogger.Error(err))
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.Timestamp = snap.Timestamp.UTC()
	return &snap, nil
}

func (s *CHBalanceHistory) Range(ctx context.Context, from, to time.Time, limit int) ([]models.BalanceSnapshot, error) {
	start := time.Now()
	const q = `
        SELECT timestamp, balance, profit
        FROM ` + balanceHistoryTable + `
        WHERE timestamp >= ? AND timestamp <= ?
        ORDER BY timestamp ASC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse range query error", applogger.Error(err))
		return nil, fmt.Errorf("range snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]models.BalanceSnapshot, 0, 64)
	for rows.Next() {
		var snap models.BalanceSnapshot
		if err := rows.Scan(&snap.Timestamp, &snap.Balance, &snap.Profit); err != nil {
			s.l.Error("clickhouse range scan error", applogger.Error(err))
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Timestamp = snap.Timestamp.UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse range ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHBalanceHistory) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE TABLE IF EXISTS `+balanceHistoryTable); err != nil {
		return fmt.Errorf("truncate history: %w", err)
	}
	s.l.Warn("balance history truncated")
	return nil
}

func (s *CHBalanceHistory) Close() error {
	return s.client.Close()
}
