package ledger

import (
	"context"
	"errors"
	"fmt"

	"feeledger/internal/core"
)

// MonthChecker reports whether a student already has a payment for a month.
type MonthChecker interface {
	HasPaymentForMonth(ctx context.Context, studentID int64, month core.AcademicMonth) (bool, error)
}

// Guard enforces at most one payment per academic month per student.
// When the store cannot answer, the payment is rejected.
type Guard struct {
	store MonthChecker
}

func NewGuard(store MonthChecker) *Guard {
	return &Guard{store: store}
}

// Check returns nil when a payment for month may be recorded.
func (g *Guard) Check(ctx context.Context, studentID int64, month core.AcademicMonth) error {
	if err := month.Validate(); err != nil {
		return core.NewValidationError(err, core.FieldError{
			Field: "payment_month",
			Error: fmt.Sprintf("unknown month %q", month),
		})
	}

	exists, err := g.store.HasPaymentForMonth(ctx, studentID, month)
	if err != nil {
		return asPersistence("check payment month", err)
	}
	if exists {
		return fmt.Errorf("%s for student %d: %w", month, studentID, core.ErrDuplicateMonth)
	}
	return nil
}

// asPersistence keeps domain errors intact and wraps everything else.
func asPersistence(op string, err error) error {
	switch {
	case errors.Is(err, core.ErrPersistence),
		errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrDuplicateMonth),
		core.IsValidation(err):
		return err
	}
	return core.NewPersistenceError(op, err)
}
