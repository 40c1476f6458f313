package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"MT5Hub/internal/domain/models"
	"MT5Hub/pkg/clock"
	applogger "MT5Hub/pkg/logger"
)

// ReportSink delivers a finished report envelope to one backend.
type ReportSink interface {
	Send(ctx context.Context, r models.Report) error
	Close() error
}

// ReportDispatcher wraps payloads into envelopes and hands them to the sinks.
// The primary sink decides success; mirrors are best effort.
type ReportDispatcher struct {
	primary ReportSink
	mirrors []ReportSink
	clock   clock.Clock
	l       *applogger.Logger
}

func NewReportDispatcher(primary ReportSink, clk clock.Clock, l *applogger.Logger, mirrors ...ReportSink) *ReportDispatcher {
	return &ReportDispatcher{
		primary: primary,
		mirrors: mirrors,
		clock:   clk,
		l:       l.With(applogger.String("component", "notifier")),
	}
}

func (d *ReportDispatcher) Notify(ctx context.Context, kind models.ReportKind, payload interface{}, channels []int64) error {
	r := models.Report{
		ID:        uuid.NewString(),
		Kind:      kind,
		Channels:  append([]int64(nil), channels...),
		CreatedAt: d.clock.Now().UTC(),
		Payload:   payload,
	}

	for _, m := range d.mirrors {
		if err := m.Send(ctx, r); err != nil {
			d.l.Warn("report mirror failed", applogger.String("id", r.ID), applogger.Error(err))
		}
	}

	if err := d.primary.Send(ctx, r); err != nil {
		return fmt.Errorf("deliver report %s: %w", r.ID, err)
	}
	return nil
}

func (d *ReportDispatcher) Close() error {
	errs := []error{d.primary.Close()}
	for _, m := range d.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
