package usecase

import (
	"sort"
	"strconv"
	"strings"

	"MT5Hub/internal/domain/models"
)

// heartbeatPart covers the fields shown in a connection report.
func heartbeatPart(b *models.BotStatus) string {
	return strings.Join([]string{
		strconv.Itoa(b.BotID),
		strconv.FormatBool(b.Connected),
		optInt64(b.Login),
		optString(b.Broker),
		optInt(b.Leverage),
		optFloat(b.MaxSpread),
	}, ":")
}

// balancePart covers the fields shown in a balance report.
func balancePart(b *models.BotStatus) string {
	return strings.Join([]string{
		strconv.Itoa(b.BotID),
		optInt64(b.Login),
		optString(b.Broker),
		optFloat(b.Balance),
		optFloat(b.Profit),
	}, ":")
}

// aggregate joins per-bot parts ordered by bot id, so map iteration order never leaks in.
func aggregate(bots map[int]*models.BotStatus, part func(*models.BotStatus) string) string {
	ids := make([]int, 0, len(bots))
	for id := range bots {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = part(bots[id])
	}
	return strings.Join(parts, "|")
}

const absent = "-"

func optInt64(v *int64) string {
	if v == nil {
		return absent
	}
	return strconv.FormatInt(*v, 10)
}

func optInt(v *int) string {
	if v == nil {
		return absent
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return absent
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func optString(v *string) string {
	if v == nil {
		return absent
	}
	return strconv.Quote(*v)
}
