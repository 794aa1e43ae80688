package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/services"
)

const timeLayout = time.RFC3339

// pathID reads a positive integer path value such as {id}.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(fmt.Errorf("invalid %s", name), core.FieldError{
			Field: name,
			Error: fmt.Sprintf("%q is not a valid id", raw),
		})
	}
	return id, nil
}

// sanitizeInput trims whitespace and strips control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response", "error", err)
	}
}

type moneyJSON struct {
	Paise   int64  `json:"paise"`
	Display string `json:"display"`
}

func toMoney(m core.Money) moneyJSON {
	return moneyJSON{Paise: m.Paise, Display: m.String()}
}

type classJSON struct {
	ID          int64     `json:"id"`
	Name        string    `json:"class_name"`
	StandardFee moneyJSON `json:"standard_fee"`
}

func toClass(c core.Class) classJSON {
	return classJSON{ID: c.ID, Name: c.Name, StandardFee: toMoney(c.StandardFee)}
}

type studentJSON struct {
	ID           int64     `json:"id"`
	FullName     string    `json:"full_name"`
	FatherName   string    `json:"father_name,omitempty"`
	Mobile       string    `json:"mobile,omitempty"`
	Address      string    `json:"address,omitempty"`
	ClassID      int64     `json:"class_id"`
	ClassName    string    `json:"class_name"`
	TotalFee     moneyJSON `json:"total_fee"`
	TakenFee     moneyJSON `json:"taken_fee"`
	RemainingFee moneyJSON `json:"remaining_fee"`
	Status       string    `json:"status"`
	LeftDate     string    `json:"left_date,omitempty"`
	CreatedAt    string    `json:"created_at"`
}

func toStudent(s core.Student) studentJSON {
	out := studentJSON{
		ID:           s.ID,
		FullName:     s.FullName,
		FatherName:   s.FatherName,
		Mobile:       s.Mobile,
		Address:      s.Address,
		ClassID:      s.ClassID,
		ClassName:    s.ClassName,
		TotalFee:     toMoney(s.TotalFee),
		TakenFee:     toMoney(s.TakenFee),
		RemainingFee: toMoney(s.RemainingFee()),
		Status:       string(s.Status),
		CreatedAt:    s.CreatedAt.Format(timeLayout),
	}
	if !s.LeftDate.IsZero() {
		out.LeftDate = s.LeftDate.Format(time.DateOnly)
	}
	return out
}

type transactionJSON struct {
	ID            int64     `json:"id"`
	ReceiptNumber string    `json:"receipt_number"`
	StudentID     int64     `json:"student_id"`
	Amount        moneyJSON `json:"amount"`
	Month         string    `json:"payment_month"`
	Remarks       string    `json:"remarks"`
	CreatedAt     string    `json:"created_at"`
}

func toTransaction(t core.FeeTransaction) transactionJSON {
	return transactionJSON{
		ID:            t.ID,
		ReceiptNumber: t.ReceiptNumber(),
		StudentID:     t.StudentID,
		Amount:        toMoney(t.Amount),
		Month:         t.Month.String(),
		Remarks:       t.Remarks,
		CreatedAt:     t.CreatedAt.Format(timeLayout),
	}
}

func toTransactions(txs []core.FeeTransaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransaction(t))
	}
	return out
}

type balanceJSON struct {
	Total     moneyJSON `json:"total"`
	Paid      moneyJSON `json:"paid"`
	Remaining moneyJSON `json:"remaining"`
	Overpaid  bool      `json:"overpaid"`
}

func toBalance(b core.Balance) balanceJSON {
	return balanceJSON{
		Total:     toMoney(b.Total),
		Paid:      toMoney(b.Paid),
		Remaining: toMoney(b.Remaining),
		Overpaid:  b.Overpaid,
	}
}

type paymentJSON struct {
	Transaction transactionJSON `json:"transaction"`
	Balance     balanceJSON     `json:"balance"`
	ReceiptURL  string          `json:"receipt_url"`
	ReceiptText string          `json:"receipt_text,omitempty"`
}

func toPayment(res services.PaymentResult) paymentJSON {
	out := paymentJSON{
		Transaction: toTransaction(res.Transaction),
		Balance:     toBalance(res.Balance),
		ReceiptURL:  fmt.Sprintf("/transactions/%d/receipt", res.Transaction.ID),
	}
	if res.Receipt != nil {
		out.ReceiptText = res.Receipt.Text
	}
	return out
}

type monthJSON struct {
	Month         string `json:"month"`
	State         string `json:"state"`
	Overdue       bool   `json:"overdue"`
	TransactionID int64  `json:"transaction_id,omitempty"`
}

type feeCardJSON struct {
	Student studentJSON       `json:"student"`
	Balance balanceJSON       `json:"balance"`
	Months  []monthJSON       `json:"months"`
	Recent  []transactionJSON `json:"recent"`
}

func toFeeCard(c core.FeeCard) feeCardJSON {
	months := make([]monthJSON, 0, len(c.Months))
	for _, m := range c.Months {
		months = append(months, monthJSON{
			Month:         m.Month.String(),
			State:         string(m.State),
			Overdue:       m.Overdue,
			TransactionID: m.TransactionID,
		})
	}
	return feeCardJSON{
		Student: toStudent(c.Student),
		Balance: toBalance(c.Balance),
		Months:  months,
		Recent:  toTransactions(c.Recent),
	}
}

type examJSON struct {
	ID         int64   `json:"id"`
	StudentID  int64   `json:"student_id"`
	ExamName   string  `json:"exam_name"`
	Math       int     `json:"math"`
	Science    int     `json:"science"`
	English    int     `json:"english"`
	Hindi      int     `json:"hindi"`
	SST        int     `json:"sst"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Grade      string  `json:"grade"`
	CreatedAt  string  `json:"created_at"`
}

func toExam(r core.ExamResult) examJSON {
	return examJSON{
		ID:         r.ID,
		StudentID:  r.StudentID,
		ExamName:   r.ExamName,
		Math:       r.Marks.Math,
		Science:    r.Marks.Science,
		English:    r.Marks.English,
		Hindi:      r.Marks.Hindi,
		SST:        r.Marks.SST,
		Total:      r.Marks.Total(),
		Percentage: r.Marks.Percentage(),
		Grade:      r.Grade(),
		CreatedAt:  r.CreatedAt.Format(timeLayout),
	}
}
