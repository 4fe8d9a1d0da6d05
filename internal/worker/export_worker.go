// Package worker mirrors transaction mutations into the spreadsheet
// export, driven by AMQP events with a periodic database backfill as a
// safety net for lost messages.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"finsight/internal/core"
	"finsight/internal/events"
)

// Exporter is the spreadsheet side of the pipeline.
type Exporter interface {
	AppendTransaction(ctx context.Context, t core.Transaction) (string, error)
	RemoveTransaction(ctx context.Context, id string) error
}

// Repository is the database side: record lookup plus export bookkeeping.
type Repository interface {
	Get(ctx context.Context, id string) (core.Transaction, error)
	PendingExport(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkExported(ctx context.Context, id string) error
	MarkExportError(ctx context.Context, id string) error
}

type ExportWorker struct {
	repo      Repository
	exporter  Exporter
	batchSize int
}

func NewExportWorker(repo Repository, exporter Exporter, batchSize int) *ExportWorker {
	return &ExportWorker{
		repo:      repo,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleEvent processes one mutation event from the queue.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev *events.TransactionEvent) error {
	switch ev.Kind {
	case events.TransactionInserted:
		return w.exportByID(ctx, ev.ID)
	case events.TransactionDeleted:
		if err := w.exporter.RemoveTransaction(ctx, ev.ID); err != nil {
			return fmt.Errorf("remove exported row: %w", err)
		}
		slog.InfoContext(ctx, "Removed transaction from export", "id", ev.ID, "owner", ev.Owner)
		return nil
	default:
		slog.WarnContext(ctx, "Ignoring event of unknown kind", "kind", ev.Kind, "id", ev.ID)
		return nil
	}
}

// ProcessPending exports records whose events never arrived. Called on a
// timer and once at startup.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.repo.PendingExport(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending export: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, t := range pending {
		if err := w.export(ctx, t.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "id", t.ID, "error", err)
			continue
		}
	}
	return nil
}

// StartupCheck drains a larger pending batch before consuming begins, to
// recover from worker downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.repo.PendingExport(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending export for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...", "count", len(pending))

	successCount := 0
	errorCount := 0
	for _, t := range pending {
		if err := w.export(ctx, t.ID); err != nil {
			slog.ErrorContext(ctx, "Failed startup export", "id", t.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", successCount,
		"errors", errorCount)
	return nil
}

func (w *ExportWorker) exportByID(ctx context.Context, id string) error {
	if err := w.export(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Record was deleted before the insert event was processed.
			slog.InfoContext(ctx, "Record gone before export, skipping", "id", id)
			return nil
		}
		return err
	}
	return nil
}

func (w *ExportWorker) export(ctx context.Context, id string) error {
	t, err := w.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	ref, err := w.exporter.AppendTransaction(ctx, t)
	if err != nil {
		if markErr := w.repo.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.repo.MarkExported(ctx, id); err != nil {
		// The export itself worked; don't fail the message over bookkeeping.
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"id", id,
		"sheet_ref", ref,
		"owner", t.Owner,
		"amount_cents", t.Amount.Cents)
	return nil
}
