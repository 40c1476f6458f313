package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"MT5Hub/internal/domain/models"
)

// Offsets are added to the fleet totals before rounding.
type Offsets struct {
	Balance float64
	Profit  float64
}

// BuildBalanceReport sums per-bot balances (missing values count as zero), adds the
// offsets and rounds the totals to cents.
func BuildBalanceReport(bots []models.BotStatus, offsets Offsets, now time.Time) models.BalanceReport {
	totalBalance := decimal.NewFromFloat(offsets.Balance)
	totalProfit := decimal.NewFromFloat(offsets.Profit)

	report := models.BalanceReport{
		GeneratedAt:  now,
		Bots:         make([]models.BotBalance, 0, len(bots)),
		AllConnected: len(bots) > 0,
	}
	for _, b := range bots {
		row := models.BotBalance{
			BotID:     b.BotID,
			Connected: b.Connected,
			Login:     b.Login,
			Broker:    b.Broker,
		}
		if b.Balance != nil {
			v := round2(decimal.NewFromFloat(*b.Balance))
			totalBalance = totalBalance.Add(v)
			row.Balance = models.Ptr(v.InexactFloat64())
		}
		if b.Profit != nil {
			v := round2(decimal.NewFromFloat(*b.Profit))
			totalProfit = totalProfit.Add(v)
			row.Profit = models.Ptr(v.InexactFloat64())
		}
		if !b.Connected {
			report.AllConnected = false
		}
		if b.LastBalanceAt.After(report.LatestAt) {
			report.LatestAt = b.LastBalanceAt
		}
		report.Bots = append(report.Bots, row)
	}

	report.TotalBalance = round2(totalBalance).InexactFloat64()
	report.TotalProfit = round2(totalProfit).InexactFloat64()
	return report
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
