package usecase

import (
	"context"
	"fmt"
	"time"

	"MT5Hub/internal/domain/models"
	"MT5Hub/internal/domain/repository"
	applogger "MT5Hub/pkg/logger"
)

// OperatorService backs the admin endpoints.
type OperatorService struct {
	reg      *Registry
	reporter *ChangeReporter
	history  repository.BalanceHistory
	l        *applogger.Logger
}

func NewOperatorService(reg *Registry, reporter *ChangeReporter, history repository.BalanceHistory, l *applogger.Logger) *OperatorService {
	return &OperatorService{
		reg:      reg,
		reporter: reporter,
		history:  history,
		l:        l.With(applogger.String("component", "operator")),
	}
}

// SetTradeAllowed updates one bot, or every known bot when botID is nil.
// It returns the ids whose permission actually changed.
func (o *OperatorService) SetTradeAllowed(ctx context.Context, botID *int, allowed bool) ([]int, error) {
	targets := o.reg.IDs()
	if botID != nil {
		if _, ok := o.reg.Get(*botID); !ok {
			return nil, fmt.Errorf("bot %d: %w", *botID, models.ErrUnknownBot)
		}
		targets = []int{*botID}
	}

	changed := make([]int, 0, len(targets))
	for _, id := range targets {
		ok, err := o.reg.SetTradeAllowed(ctx, id, allowed)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, id)
		}
	}
	o.l.Info("trading permission updated", applogger.Bool("allowed", allowed), applogger.Ints("changed", changed))
	return changed, nil
}

// ClearHistory wipes the balance history and every persisted trading permission.
func (o *OperatorService) ClearHistory(ctx context.Context) error {
	if err := o.history.Clear(ctx); err != nil {
		return fmt.Errorf("clear balance history: %w", err)
	}
	for _, id := range o.reg.IDs() {
		if err := o.reg.ResetTradeAllowed(ctx, id); err != nil {
			return err
		}
	}
	o.l.Warn("balance history and trading permissions cleared")
	return nil
}

func (o *OperatorService) Bots() []models.BotStatus {
	return o.reg.Snapshot()
}

func (o *OperatorService) Balances() models.BalanceReport {
	return o.reporter.CurrentBalances()
}

func (o *OperatorService) LatestSnapshot(ctx context.Context) (*models.BalanceSnapshot, error) {
	return o.history.Latest(ctx)
}

func (o *OperatorService) History(ctx context.Context, from, to time.Time, limit int) ([]models.BalanceSnapshot, error) {
	return o.history.Range(ctx, from, to, limit)
}
