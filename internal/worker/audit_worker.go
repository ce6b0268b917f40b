// Package worker consumes ledger events and keeps the audit trail.
package worker

import (
	"context"
	"fmt"
	"time"

	"zerobudget/internal/amqp"
	"zerobudget/internal/log"
	"zerobudget/internal/metrics"
	"zerobudget/internal/storage"
)

// EventConsumer delivers ledger events until ctx is done.
type EventConsumer interface {
	ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, amqp.LedgerEvent) error) error
}

// AuditWorker appends every ledger event it receives to the audit trail.
// Redelivered events are recorded once.
type AuditWorker struct {
	events storage.EventLog
	logger *log.Logger
	now    func() time.Time
}

func NewAuditWorker(events storage.EventLog, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &AuditWorker{
		events: events,
		logger: logger.WithComponent(log.ComponentWorker),
		now:    time.Now,
	}
}

// HandleLedgerEvent records one event. A returned error makes the consumer
// requeue the delivery.
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, e amqp.LedgerEvent) error {
	written, err := w.events.RecordEvent(ctx, storage.EventRecord{
		ID:         e.ID,
		Type:       string(e.Type),
		Owner:      e.Owner,
		EntityID:   e.EntityID,
		Amount:     e.Amount,
		OccurredAt: e.OccurredAt,
		RecordedAt: w.now().UTC(),
	})
	if err != nil {
		metrics.EventsRecorded.WithLabelValues("error").Inc()
		w.logger.ErrorContext(ctx, "Failed to record ledger event",
			log.FieldEventID, e.ID,
			log.FieldEventType, e.Type,
			log.FieldError, err)
		return fmt.Errorf("record event %s: %w", e.ID, err)
	}

	if !written {
		metrics.EventsRecorded.WithLabelValues("duplicate").Inc()
		w.logger.DebugContext(ctx, "Skipping duplicate ledger event",
			log.FieldEventID, e.ID,
			log.FieldEventType, e.Type)
		return nil
	}

	metrics.EventsRecorded.WithLabelValues("recorded").Inc()
	fields := log.NewFields().
		WithLedgerEntity(e.Owner, e.EntityID, e.Amount.String()).
		WithOperation(string(e.Type))
	fields[log.FieldEventID] = e.ID
	w.logger.InfoContext(ctx, "Ledger event recorded", fields.ToSlice()...)
	return nil
}

// Run consumes events until ctx is cancelled.
func (w *AuditWorker) Run(ctx context.Context, consumer EventConsumer) error {
	w.logger.InfoContext(ctx, "Audit worker started")
	err := consumer.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Audit worker stopped")
		return nil
	}
	return err
}

// RecentEvents returns the newest audit entries for owner.
func (w *AuditWorker) RecentEvents(ctx context.Context, owner string, limit int) ([]storage.EventRecord, error) {
	events, err := w.events.ListEvents(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", owner, err)
	}
	return events, nil
}
