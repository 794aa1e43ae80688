package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/sheets"
	"feeledger/internal/storage"
)

// SyncStore is the slice of the SQLite repository the worker needs.
type SyncStore interface {
	GetTransaction(ctx context.Context, id int64) (core.FeeTransaction, error)
	GetStudent(ctx context.Context, id int64) (core.Student, error)
	SyncStatus(ctx context.Context, txID int64) (string, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, txID int64, sheetRef string) error
	MarkSyncError(ctx context.Context, txID int64, cause error) error
}

// RegisterSyncWorker mirrors recorded payments into the fee register.
type RegisterSyncWorker struct {
	storage   SyncStore
	register  sheets.RegisterWriter
	batchSize int
}

func NewRegisterSyncWorker(store SyncStore, register sheets.RegisterWriter, batchSize int) *RegisterSyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &RegisterSyncWorker{
		storage:   store,
		register:  register,
		batchSize: batchSize,
	}
}

// HandlePaymentRecorded processes one payment.recorded message. Rows that
// are already synced are skipped so redelivery is harmless.
func (w *RegisterSyncWorker) HandlePaymentRecorded(ctx context.Context, msg *amqp.PaymentRecordedMessage) error {
	slog.InfoContext(ctx, "Processing payment recorded message",
		"transaction_id", msg.TransactionID,
		"student_id", msg.StudentID)

	status, err := w.storage.SyncStatus(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// nothing to sync; the payment never committed
			slog.WarnContext(ctx, "No register row for transaction, dropping message",
				"transaction_id", msg.TransactionID)
			return nil
		}
		return fmt.Errorf("get sync status: %w", err)
	}
	if status == storage.SyncSynced {
		slog.InfoContext(ctx, "Transaction already in fee register", "transaction_id", msg.TransactionID)
		return nil
	}

	return w.syncTransaction(ctx, msg.TransactionID)
}

// ProcessPending syncs a batch of rows that were never confirmed. It covers
// lost AMQP messages and worker downtime.
func (w *RegisterSyncWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.processBatch(ctx, w.batchSize)
	return err
}

// StartupSyncCheck runs a larger sweep when the worker boots.
func (w *RegisterSyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending register rows found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"total", synced+failed,
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *RegisterSyncWorker) processBatch(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.storage.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending register rows: %w", err)
	}
	if len(pending) > 0 {
		slog.InfoContext(ctx, "Processing pending register rows", "count", len(pending))
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.syncTransaction(ctx, p.TransactionID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction",
				"transaction_id", p.TransactionID,
				"attempts", p.Attempts+1,
				"error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *RegisterSyncWorker) syncTransaction(ctx context.Context, txID int64) error {
	tx, err := w.storage.GetTransaction(ctx, txID)
	if err != nil {
		w.markError(ctx, txID, err)
		return fmt.Errorf("get transaction: %w", err)
	}
	st, err := w.storage.GetStudent(ctx, tx.StudentID)
	if err != nil {
		w.markError(ctx, txID, err)
		return fmt.Errorf("get student: %w", err)
	}

	ref, err := w.register.AppendRow(ctx, sheets.NewRegisterRow(tx, st))
	if err != nil {
		w.markError(ctx, txID, err)
		return fmt.Errorf("append to register: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, txID, ref); err != nil {
		// the row is in the register; the next sweep finds it there and skips it
		slog.ErrorContext(ctx, "Failed to mark as synced", "transaction_id", txID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced fee transaction",
		"transaction_id", txID,
		"sheets_ref", ref,
		"receipt", tx.ReceiptNumber(),
		"amount_paise", tx.Amount.Paise)
	return nil
}

func (w *RegisterSyncWorker) markError(ctx context.Context, txID int64, cause error) {
	if err := w.storage.MarkSyncError(ctx, txID, cause); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "transaction_id", txID, "error", err)
	}
}
