package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feeledger/internal/core"
)

// Register sync states. A row starts pending when its payment is committed.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"

	// MaxSyncAttempts stops the sweep from retrying a row forever.
	MaxSyncAttempts = 5
)

// PendingSync is the minimal data needed to requeue a register row.
type PendingSync struct {
	TransactionID int64
	Attempts      int
	CreatedAt     time.Time
}

// SyncStatus returns the register state of a transaction.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, txID int64) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM register_sync WHERE transaction_id = ?`, txID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("register row %d: %w", txID, core.ErrNotFound)
	}
	if err != nil {
		return "", core.NewPersistenceError("get sync status", err)
	}
	return status, nil
}

// GetPendingSync returns rows still waiting for the fee register, oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_id, attempts, created_at FROM register_sync
		WHERE status IN ('pending', 'error') AND attempts < ?
		ORDER BY transaction_id
		LIMIT ?`, MaxSyncAttempts, limit)
	if err != nil {
		return nil, core.NewPersistenceError("get pending sync", err)
	}
	defer rows.Close()

	var out []PendingSync
	for rows.Next() {
		var (
			p         PendingSync
			createdAt string
		)
		if err := rows.Scan(&p.TransactionID, &p.Attempts, &createdAt); err != nil {
			return nil, core.NewPersistenceError("scan pending sync", err)
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("get pending sync", err)
	}
	return out, nil
}

// MarkSynced records that the register row was written.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, txID int64, sheetRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE register_sync
		SET status = 'synced', sheet_ref = ?, synced_at = ?, attempts = attempts + 1, last_error = ''
		WHERE transaction_id = ?`, sheetRef, r.stamp(), txID)
	if err != nil {
		return core.NewPersistenceError("mark synced", err)
	}

	slog.InfoContext(ctx, "Fee transaction marked as synced", "transaction_id", txID, "sheet_ref", sheetRef)
	return nil
}

// MarkSyncError records a failed attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, txID int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE register_sync
		SET status = 'error', attempts = attempts + 1, last_error = ?
		WHERE transaction_id = ?`, msg, txID)
	if err != nil {
		return core.NewPersistenceError("mark sync error", err)
	}

	slog.WarnContext(ctx, "Fee transaction marked with sync error", "transaction_id", txID, "error", msg)
	return nil
}

// SyncStats counts register rows per state.
type SyncStats struct {
	Pending int64
	Synced  int64
	Error   int64
}

func (r *SQLiteRepository) SyncStats(ctx context.Context) (SyncStats, error) {
	var s SyncStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'synced' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
		FROM register_sync`).Scan(&s.Pending, &s.Synced, &s.Error)
	if err != nil {
		return SyncStats{}, core.NewPersistenceError("sync stats", err)
	}
	return s, nil
}
