package sheets

import (
	"context"
	"time"

	"feeledger/internal/core"
)

// RegisterRow is one line of the fee register mirror.
type RegisterRow struct {
	Date          time.Time
	ReceiptNumber string
	StudentName   string
	ClassName     string
	Month         core.AcademicMonth
	Amount        core.Money
	Remarks       string
}

func NewRegisterRow(tx core.FeeTransaction, st core.Student) RegisterRow {
	return RegisterRow{
		Date:          tx.CreatedAt,
		ReceiptNumber: tx.ReceiptNumber(),
		StudentName:   st.FullName,
		ClassName:     st.ClassName,
		Month:         tx.Month,
		Amount:        tx.Amount,
		Remarks:       tx.Remarks,
	}
}

// Values renders the row in register column order:
// date, receipt no, student, class, month, amount, remarks.
func (r RegisterRow) Values() []any {
	return []any{
		r.Date.Format("2006-01-02"),
		r.ReceiptNumber,
		r.StudentName,
		r.ClassName,
		r.Month.String(),
		r.Amount.Plain(),
		r.Remarks,
	}
}

// Ports for outbound adapters.
type (
	// RegisterWriter appends payments to the external fee register. Writing a
	// receipt number that is already present must not add a second line.
	RegisterWriter interface {
		AppendRow(ctx context.Context, row RegisterRow) (rowRef string, err error)
	}
)
