package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusActive StudentStatus = "active"
	StatusLeft   StudentStatus = "left"
)

type (
	StudentStatus string

	Money struct {
		Paise int64
	}

	Class struct {
		ID          int64
		Name        string
		StandardFee Money
	}

	Student struct {
		ID         int64
		FullName   string
		FatherName string
		Mobile     string
		Address    string
		ClassID    int64
		ClassName  string
		TotalFee   Money // agreed fee for the session
		TakenFee   Money // cached sum of the student's transactions
		Status     StudentStatus
		LeftDate   time.Time
		CreatedAt  time.Time
	}

	// NewStudent carries enrollment input. A nil TotalFee takes the
	// class's standard fee.
	NewStudent struct {
		FullName   string
		FatherName string
		Mobile     string
		Address    string
		ClassID    int64
		TotalFee   *Money
	}

	// FeeTransaction is an immutable ledger entry.
	FeeTransaction struct {
		ID        int64
		StudentID int64
		Amount    Money
		Month     AcademicMonth
		Remarks   string
		CreatedAt time.Time
	}

	NewPayment struct {
		StudentID int64
		Amount    Money
		Month     AcademicMonth
		Remarks   string
	}
)

var (
	ErrEmptyName      = errors.New("empty student name")
	ErrNegativeFee    = errors.New("fee cannot be negative")
	ErrInvalidClass   = errors.New("invalid class")
	ErrInvalidStudent = errors.New("invalid student")
)

func (m Money) Validate() error {
	if m.Paise <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// RemainingFee is derived on every call and never stored.
func (s Student) RemainingFee() Money {
	return s.TotalFee.Sub(s.TakenFee)
}

func (s Student) IsActive() bool {
	return s.Status != StatusLeft
}

func (c Class) Validate() error {
	var flds []FieldError
	if strings.TrimSpace(c.Name) == "" {
		flds = append(flds, FieldError{Field: "class_name", Error: "class name is required"})
	}
	if c.StandardFee.Paise < 0 {
		flds = append(flds, FieldError{Field: "standard_fee", Error: ErrNegativeFee.Error()})
	}
	if len(flds) > 0 {
		return NewValidationError(ErrInvalidClass, flds...)
	}
	return nil
}

func (ns NewStudent) Validate() error {
	var flds []FieldError
	if strings.TrimSpace(ns.FullName) == "" {
		flds = append(flds, FieldError{Field: "full_name", Error: ErrEmptyName.Error()})
	} else if len(ns.FullName) > 200 {
		flds = append(flds, FieldError{Field: "full_name", Error: "name too long (max 200 characters)"})
	}
	if ns.ClassID <= 0 {
		flds = append(flds, FieldError{Field: "class_id", Error: "class is required"})
	}
	if ns.TotalFee != nil && ns.TotalFee.Paise < 0 {
		flds = append(flds, FieldError{Field: "total_fee", Error: ErrNegativeFee.Error()})
	}
	if len(flds) > 0 {
		return NewValidationError(ErrInvalidStudent, flds...)
	}
	return nil
}

// Validate checks a payment before it reaches the ledger.
func (p NewPayment) Validate() error {
	if p.StudentID <= 0 {
		return NewValidationError(ErrInvalidStudent, FieldError{Field: "student_id", Error: "student is required"})
	}
	if err := p.Amount.Validate(); err != nil {
		return NewValidationError(err, FieldError{Field: "amount", Error: "amount must be greater than zero"})
	}
	if err := p.Month.Validate(); err != nil {
		return NewValidationError(err, FieldError{Field: "payment_month", Error: fmt.Sprintf("unknown month %q", p.Month)})
	}
	if len(p.Remarks) > 500 {
		return NewValidationError(errors.New("remarks too long"), FieldError{Field: "remarks", Error: "remarks too long (max 500 characters)"})
	}
	return nil
}

// DefaultRemarks is the remark stored when the operator leaves it blank.
func DefaultRemarks(m AcademicMonth) string {
	return "Tuition Fee for " + string(m)
}

// ReceiptNumber is the printed identifier of a transaction.
func (t FeeTransaction) ReceiptNumber() string {
	return fmt.Sprintf("RCT-%06d", t.ID)
}

// StudentFilter narrows a student listing. Zero values match everything.
type StudentFilter struct {
	ClassID int64
	Status  StudentStatus
}

func (f StudentFilter) Match(s Student) bool {
	if f.ClassID != 0 && s.ClassID != f.ClassID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}
