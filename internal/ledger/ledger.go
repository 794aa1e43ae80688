// Package ledger records fee payments and derives balances from them.
//
// A Ledger sits on top of a Store that persists transactions append-only.
// Every payment goes through validation and the month guard before the
// store appends it; the store must apply the insert and the student's
// taken_fee increment atomically and must itself reject a second row for
// the same (student, month).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"feeledger/internal/core"
)

// Store is the persistence port of the ledger.
type Store interface {
	MonthChecker

	// GetStudent returns core.ErrNotFound for unknown ids.
	GetStudent(ctx context.Context, id int64) (core.Student, error)

	// AppendPayment inserts the transaction and increments the student's
	// taken_fee in one unit of work. A concurrent duplicate surfaces as
	// core.ErrDuplicateMonth.
	AppendPayment(ctx context.Context, p core.NewPayment) (core.FeeTransaction, error)

	// ListPayments returns the student's transactions, most recent first.
	ListPayments(ctx context.Context, studentID int64) ([]core.FeeTransaction, error)
}

type Ledger struct {
	store Store
	guard *Guard
}

func New(store Store) *Ledger {
	return &Ledger{store: store, guard: NewGuard(store)}
}

// RecordPayment validates p, checks the month guard and appends the
// transaction. Blank remarks default to "Tuition Fee for <Month>".
func (l *Ledger) RecordPayment(ctx context.Context, p core.NewPayment) (core.FeeTransaction, error) {
	p.Remarks = strings.TrimSpace(p.Remarks)
	if err := p.Validate(); err != nil {
		return core.FeeTransaction{}, err
	}

	student, err := l.store.GetStudent(ctx, p.StudentID)
	if err != nil {
		return core.FeeTransaction{}, asPersistence("get student", err)
	}
	if !student.IsActive() {
		return core.FeeTransaction{}, core.InactiveStudentError()
	}

	if err := l.guard.Check(ctx, p.StudentID, p.Month); err != nil {
		if errors.Is(err, core.ErrDuplicateMonth) {
			slog.WarnContext(ctx, "Duplicate fee month rejected",
				"student_id", p.StudentID,
				"payment_month", p.Month)
		}
		return core.FeeTransaction{}, err
	}

	if p.Remarks == "" {
		p.Remarks = core.DefaultRemarks(p.Month)
	}

	tx, err := l.store.AppendPayment(ctx, p)
	if err != nil {
		return core.FeeTransaction{}, asPersistence("append payment", err)
	}

	slog.InfoContext(ctx, "Fee payment recorded",
		"transaction_id", tx.ID,
		"student_id", tx.StudentID,
		"payment_month", tx.Month,
		"amount_paise", tx.Amount.Paise)

	return tx, nil
}

// ListTransactions returns the student's ledger, most recent first.
func (l *Ledger) ListTransactions(ctx context.Context, studentID int64) ([]core.FeeTransaction, error) {
	if _, err := l.store.GetStudent(ctx, studentID); err != nil {
		return nil, asPersistence("get student", err)
	}
	txs, err := l.store.ListPayments(ctx, studentID)
	if err != nil {
		return nil, asPersistence("list payments", err)
	}
	return txs, nil
}

// ComputeBalance derives the balance from the ledger. The cached taken_fee
// is only cross-checked; on mismatch the ledger sum wins and the drift is
// logged.
func (l *Ledger) ComputeBalance(ctx context.Context, studentID int64) (core.Balance, error) {
	student, err := l.store.GetStudent(ctx, studentID)
	if err != nil {
		return core.Balance{}, asPersistence("get student", err)
	}
	txs, err := l.store.ListPayments(ctx, studentID)
	if err != nil {
		return core.Balance{}, asPersistence("list payments", err)
	}
	return l.balanceOf(ctx, student, txs), nil
}

// BalanceOf is ComputeBalance for callers that already hold the student and
// their transactions.
func (l *Ledger) BalanceOf(ctx context.Context, student core.Student, txs []core.FeeTransaction) core.Balance {
	return l.balanceOf(ctx, student, txs)
}

func (l *Ledger) balanceOf(ctx context.Context, student core.Student, txs []core.FeeTransaction) core.Balance {
	b := core.ComputeBalance(student.TotalFee, txs)
	if b.Paid != student.TakenFee {
		slog.WarnContext(ctx, "Cached taken fee drifted from ledger",
			"student_id", student.ID,
			"taken_fee_paise", student.TakenFee.Paise,
			"ledger_paise", b.Paid.Paise)
	}
	return b
}

// Describe is a short human summary used in logs and text receipts.
func Describe(b core.Balance) string {
	if b.Overpaid {
		return fmt.Sprintf("paid %s of %s (overpaid by %s)", b.Paid, b.Total, core.Money{Paise: -b.Remaining.Paise})
	}
	return fmt.Sprintf("paid %s of %s, %s remaining", b.Paid, b.Total, b.Remaining)
}
