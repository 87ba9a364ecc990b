package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"mensile/internal/amqp"
	"mensile/internal/core"
	"mensile/internal/export"
	"mensile/internal/log"
	"mensile/internal/services"
)

// ReportSource produces the month read model the worker exports. Implemented
// by services.MonthService.
type ReportSource interface {
	Report(ctx context.Context, month core.Month) (services.MonthReport, error)
}

// SyncConsumer delivers month sync messages. Implemented by amqp.Client.
type SyncConsumer interface {
	ConsumeMonthSync(ctx context.Context, handler func(*amqp.MonthSyncMessage) error) error
}

// SyncWorker re-exports a month's report whenever a sync message arrives, and
// refreshes the current month on a timer as a backup in case messages are lost.
type SyncWorker struct {
	source     ReportSource
	writer     export.ReportWriter
	flushEvery time.Duration
	now        func() time.Time
}

func NewSyncWorker(source ReportSource, writer export.ReportWriter, flushEvery time.Duration) *SyncWorker {
	return &SyncWorker{
		source:     source,
		writer:     writer,
		flushEvery: flushEvery,
		now:        time.Now,
	}
}

// Run consumes sync messages and ticks the periodic refresh until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, consumer SyncConsumer) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.ConsumeMonthSync(ctx, func(msg *amqp.MonthSyncMessage) error {
			return w.HandleSyncMessage(ctx, msg)
		})
	})

	if w.flushEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.flushEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					month := core.Date{Time: w.now()}.MonthOf()
					if err := w.ExportMonth(ctx, month); err != nil {
						// Keep ticking; the next sync message or tick retries.
						slog.ErrorContext(ctx, "Periodic export failed",
							log.FieldMonth, month.String(),
							log.FieldError, err)
					}
				}
			}
		})
	}

	return g.Wait()
}

// HandleSyncMessage processes a single month sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.MonthSyncMessage) error {
	slog.InfoContext(ctx, "Processing month sync message",
		log.FieldMonth, msg.Month,
		"reason", msg.Reason)

	month, err := core.ParseMonth(msg.Month)
	if err != nil {
		// A bad month never becomes parseable; failing would requeue forever.
		slog.ErrorContext(ctx, "Dropping sync message with invalid month",
			log.FieldMonth, msg.Month,
			log.FieldError, err)
		return nil
	}

	return w.ExportMonth(ctx, month)
}

// ExportMonth renders the report for one month and appends it to the writer.
func (w *SyncWorker) ExportMonth(ctx context.Context, month core.Month) error {
	report, err := w.source.Report(ctx, month)
	if err != nil {
		return fmt.Errorf("build month report: %w", err)
	}

	if err := w.writer.AppendMonthReport(ctx, report); err != nil {
		return fmt.Errorf("append month report: %w", err)
	}

	slog.InfoContext(ctx, "Exported month report",
		log.FieldMonth, month.String(),
		"leftover_valid", report.Leftover.IsValid)
	return nil
}
