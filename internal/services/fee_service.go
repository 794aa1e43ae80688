package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/receipt"
)

// recentLimit is how many transactions the fee card lists.
const recentLimit = 5

// Repository is everything the fee service needs from storage. Both the
// SQLite repository and the memory store satisfy it.
type Repository interface {
	ledger.Store

	CreateClass(ctx context.Context, c core.Class) (core.Class, error)
	ListClasses(ctx context.Context) ([]core.Class, error)
	GetClass(ctx context.Context, id int64) (core.Class, error)

	CreateStudent(ctx context.Context, st core.Student) (core.Student, error)
	ListStudents(ctx context.Context, f core.StudentFilter) ([]core.Student, error)
	ArchiveStudent(ctx context.Context, id int64, at time.Time) error
	SetTotalFee(ctx context.Context, id int64, fee core.Money) error

	GetTransaction(ctx context.Context, id int64) (core.FeeTransaction, error)

	SaveExamResult(ctx context.Context, r core.ExamResult) (core.ExamResult, error)
	ListExamResults(ctx context.Context, studentID int64) ([]core.ExamResult, error)

	Ping(ctx context.Context) error
	Close() error
}

// Publisher announces recorded payments. *amqp.Client implements it.
type Publisher interface {
	PublishPaymentRecorded(ctx context.Context, msg *amqp.PaymentRecordedMessage) error
}

// PaymentResult is what the caller gets back from RecordPayment. Receipt is
// nil when rendering failed after the payment committed.
type PaymentResult struct {
	Transaction core.FeeTransaction
	Balance     core.Balance
	Receipt     *receipt.Document
}

// FeeService orchestrates fee operations across storage, the ledger, the
// receipt formatter and AMQP.
type FeeService struct {
	repo      Repository
	ledger    *ledger.Ledger
	receipts  *receipt.Formatter
	publisher Publisher
	now       func() time.Time
	loc       *time.Location
	dueness   DuenessChecker
}

type Option func(*FeeService)

func WithClock(now func() time.Time) Option {
	return func(s *FeeService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone the fee card and archive dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *FeeService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithDueness(c DuenessChecker) Option {
	return func(s *FeeService) {
		if c != nil {
			s.dueness = c
		}
	}
}

// NewFeeService wires the service. publisher may be nil, in which case
// payments are only picked up by the register sweep.
func NewFeeService(repo Repository, receipts *receipt.Formatter, publisher Publisher, opts ...Option) *FeeService {
	s := &FeeService{
		repo:      repo,
		ledger:    ledger.New(repo),
		receipts:  receipts,
		publisher: publisher,
		now:       time.Now,
		loc:       time.Local,
		dueness:   MonthStartChecker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordPayment appends the payment, derives the new balance and renders the
// receipt. Once the append commits the payment is never reported as failed:
// balance, receipt and publish problems are logged only.
func (s *FeeService) RecordPayment(ctx context.Context, p core.NewPayment) (PaymentResult, error) {
	tx, err := s.ledger.RecordPayment(ctx, p)
	if err != nil {
		return PaymentResult{}, err
	}
	res := PaymentResult{Transaction: tx}

	student, err := s.repo.GetStudent(ctx, tx.StudentID)
	if err != nil {
		slog.ErrorContext(ctx, "Payment saved but student reload failed",
			"transaction_id", tx.ID, "error", err)
		s.publish(ctx, tx)
		return res, nil
	}

	if bal, err := s.ledger.ComputeBalance(ctx, tx.StudentID); err != nil {
		slog.ErrorContext(ctx, "Payment saved but balance failed",
			"transaction_id", tx.ID, "error", err)
	} else {
		res.Balance = bal
	}

	if s.receipts != nil {
		doc, err := s.receipts.Format(tx, student)
		if err != nil {
			slog.ErrorContext(ctx, "Payment saved but receipt failed",
				"transaction_id", tx.ID, "error", err)
		} else {
			res.Receipt = &doc
		}
	}

	s.publish(ctx, tx)
	return res, nil
}

func (s *FeeService) publish(ctx context.Context, tx core.FeeTransaction) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping payment message",
			"transaction_id", tx.ID)
		return
	}
	if err := s.publisher.PublishPaymentRecorded(ctx, amqp.NewPaymentRecordedMessage(tx)); err != nil {
		// the register sweep picks the row up later
		slog.ErrorContext(ctx, "Failed to publish payment message",
			"transaction_id", tx.ID, "error", err)
	}
}

func (s *FeeService) ListTransactions(ctx context.Context, studentID int64) ([]core.FeeTransaction, error) {
	return s.ledger.ListTransactions(ctx, studentID)
}

func (s *FeeService) ComputeBalance(ctx context.Context, studentID int64) (core.Balance, error) {
	return s.ledger.ComputeBalance(ctx, studentID)
}

// Receipt renders the receipt of an existing transaction.
func (s *FeeService) Receipt(ctx context.Context, txID int64) (receipt.Document, error) {
	if s.receipts == nil {
		return receipt.Document{}, errors.New("receipt formatter not configured")
	}
	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return receipt.Document{}, err
	}
	st, err := s.repo.GetStudent(ctx, tx.StudentID)
	if err != nil {
		return receipt.Document{}, err
	}
	return s.receipts.Format(tx, st)
}

// FeeCard builds the twelve-month view of a student for the current session.
func (s *FeeService) FeeCard(ctx context.Context, studentID int64) (core.FeeCard, error) {
	var (
		student core.Student
		txs     []core.FeeTransaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		student, err = s.repo.GetStudent(gctx, studentID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = s.repo.ListPayments(gctx, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.FeeCard{}, fmt.Errorf("fee card for student %d: %w", studentID, err)
	}

	recent := txs
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	return core.FeeCard{
		Student: student,
		Balance: s.ledger.BalanceOf(ctx, student, txs),
		Months:  BuildMonthGrid(txs, s.now().In(s.loc), s.dueness),
		Recent:  recent,
	}, nil
}

// EnrollStudent creates an active student. A nil TotalFee takes the class's
// standard fee.
func (s *FeeService) EnrollStudent(ctx context.Context, ns core.NewStudent) (core.Student, error) {
	ns.FullName = strings.TrimSpace(ns.FullName)
	if err := ns.Validate(); err != nil {
		return core.Student{}, err
	}

	class, err := s.repo.GetClass(ctx, ns.ClassID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Student{}, core.NewValidationError(core.ErrInvalidClass, core.FieldError{
				Field: "class_id",
				Error: fmt.Sprintf("class %d does not exist", ns.ClassID),
			})
		}
		return core.Student{}, err
	}

	total := class.StandardFee
	if ns.TotalFee != nil {
		total = *ns.TotalFee
	}

	st, err := s.repo.CreateStudent(ctx, core.Student{
		FullName:   ns.FullName,
		FatherName: strings.TrimSpace(ns.FatherName),
		Mobile:     strings.TrimSpace(ns.Mobile),
		Address:    strings.TrimSpace(ns.Address),
		ClassID:    class.ID,
		TotalFee:   total,
	})
	if err != nil {
		return core.Student{}, fmt.Errorf("enroll student: %w", err)
	}

	slog.InfoContext(ctx, "Student enrolled",
		"student_id", st.ID,
		"class_id", st.ClassID,
		"total_fee_paise", st.TotalFee.Paise)
	return st, nil
}

// ArchiveStudent marks the student as left. Their ledger stays intact.
func (s *FeeService) ArchiveStudent(ctx context.Context, id int64) error {
	if err := s.repo.ArchiveStudent(ctx, id, s.now().In(s.loc)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Student archived", "student_id", id)
	return nil
}

func (s *FeeService) SetTotalFee(ctx context.Context, id int64, fee core.Money) error {
	if fee.Paise < 0 {
		return core.NewValidationError(core.ErrNegativeFee, core.FieldError{
			Field: "total_fee",
			Error: core.ErrNegativeFee.Error(),
		})
	}
	return s.repo.SetTotalFee(ctx, id, fee)
}

func (s *FeeService) GetStudent(ctx context.Context, id int64) (core.Student, error) {
	return s.repo.GetStudent(ctx, id)
}

func (s *FeeService) ListStudents(ctx context.Context, f core.StudentFilter) ([]core.Student, error) {
	return s.repo.ListStudents(ctx, f)
}

func (s *FeeService) CreateClass(ctx context.Context, c core.Class) (core.Class, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Class{}, err
	}
	return s.repo.CreateClass(ctx, c)
}

func (s *FeeService) ListClasses(ctx context.Context) ([]core.Class, error) {
	return s.repo.ListClasses(ctx)
}

// SaveExamResult stores a result for an existing student. A blank exam name
// becomes "Annual".
func (s *FeeService) SaveExamResult(ctx context.Context, r core.ExamResult) (core.ExamResult, error) {
	r.ExamName = strings.TrimSpace(r.ExamName)
	if r.ExamName == "" {
		r.ExamName = core.DefaultExamName
	}
	if err := r.Validate(); err != nil {
		return core.ExamResult{}, err
	}
	if _, err := s.repo.GetStudent(ctx, r.StudentID); err != nil {
		return core.ExamResult{}, err
	}
	return s.repo.SaveExamResult(ctx, r)
}

// ListExamResults returns the student's results, newest first.
func (s *FeeService) ListExamResults(ctx context.Context, studentID int64) ([]core.ExamResult, error) {
	if _, err := s.repo.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.repo.ListExamResults(ctx, studentID)
}

// Ready reports whether storage answers.
func (s *FeeService) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *FeeService) Close() error {
	return s.repo.Close()
}
