package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/storage"
	"feeledger/internal/storage/memory"
)

func setup(t *testing.T, total int64) (*Ledger, *memory.Store, core.Student) {
	t.Helper()
	store := memory.New(core.Class{Name: "Class 10", StandardFee: core.Rupees(total)})
	st, err := store.CreateStudent(context.Background(), core.Student{
		FullName: "Sita Devi",
		ClassID:  1,
		TotalFee: core.Rupees(total),
	})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
	return New(store), store, st
}

func TestPaymentScenario(t *testing.T) {
	ctx := context.Background()
	l, _, st := setup(t, 12000)

	if _, err := l.RecordPayment(ctx, core.NewPayment{StudentID: st.ID, Amount: core.Rupees(1000), Month: core.April}); err != nil {
		t.Fatalf("april: %v", err)
	}
	b, err := l.ComputeBalance(ctx, st.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Paid != core.Rupees(1000) || b.Remaining != core.Rupees(11000) {
		t.Fatalf("after april: paid=%v remaining=%v", b.Paid, b.Remaining)
	}

	_, err = l.RecordPayment(ctx, core.NewPayment{StudentID: st.ID, Amount: core.Rupees(1000), Month: core.April})
	if !errors.Is(err, core.ErrDuplicateMonth) {
		t.Fatalf("second april: expected ErrDuplicateMonth, got %v", err)
	}

	if _, err := l.RecordPayment(ctx, core.NewPayment{StudentID: st.ID, Amount: core.Rupees(1000), Month: core.May}); err != nil {
		t.Fatalf("may: %v", err)
	}
	b, _ = l.ComputeBalance(ctx, st.ID)
	if b.Paid != core.Rupees(2000) || b.Remaining != core.Rupees(10000) {
		t.Fatalf("after may: paid=%v remaining=%v", b.Paid, b.Remaining)
	}

	txs, _ := l.ListTransactions(ctx, st.ID)
	if len(txs) != 2 || txs[0].Month != core.May {
		t.Fatalf("expected two transactions, newest first: %+v", txs)
	}
}

func TestRecordPaymentRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	l, store, st := setup(t, 12000)

	tests := []struct {
		name string
		p    core.NewPayment
	}{
		{"zero amount", core.NewPayment{StudentID: st.ID, Amount: core.Money{}, Month: core.April}},
		{"negative amount", core.NewPayment{StudentID: st.ID, Amount: core.Rupees(-100), Month: core.April}},
		{"unknown month", core.NewPayment{StudentID: st.ID, Amount: core.Rupees(100), Month: "Smarch"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordPayment(ctx, tt.p)
			if !core.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	txs, _ := store.ListPayments(ctx, st.ID)
	if len(txs) != 0 {
		t.Fatalf("rejected payments must not be stored, got %d", len(txs))
	}
	got, _ := store.GetStudent(ctx, st.ID)
	if got.TakenFee.Paise != 0 {
		t.Fatalf("taken fee changed: %v", got.TakenFee)
	}
}

func TestRecordPaymentDefaultsRemarks(t *testing.T) {
	l, _, st := setup(t, 12000)
	tx, err := l.RecordPayment(context.Background(), core.NewPayment{StudentID: st.ID, Amount: core.Rupees(1000), Month: core.July, Remarks: "  "})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if tx.Remarks != "Tuition Fee for July" {
		t.Fatalf("remarks = %q", tx.Remarks)
	}
}

func TestRecordPaymentUnknownAndInactiveStudent(t *testing.T) {
	ctx := context.Background()
	l, store, st := setup(t, 12000)

	_, err := l.RecordPayment(ctx, core.NewPayment{StudentID: 404, Amount: core.Rupees(100), Month: core.April})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.ArchiveStudent(ctx, st.ID, time.Now()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, err = l.RecordPayment(ctx, core.NewPayment{StudentID: st.ID, Amount: core.Rupees(100), Month: core.April})
	if !errors.Is(err, core.ErrStudentInactive) || !core.IsValidation(err) {
		t.Fatalf("expected inactive validation error, got %v", err)
	}
}

func TestOverpaymentIsNotClamped(t *testing.T) {
	ctx := context.Background()
	l, _, st := setup(t, 1500)
	for _, m := range []core.AcademicMonth{core.April, core.May} {
		if _, err := l.RecordPayment(ctx, core.NewPayment{StudentID: st.ID, Amount: core.Rupees(1000), Month: m}); err != nil {
			t.Fatalf("%s: %v", m, err)
		}
	}
	b, _ := l.ComputeBalance(ctx, st.ID)
	if b.Remaining != core.Rupees(-500) || !b.Overpaid {
		t.Fatalf("expected remaining -500 and overpaid, got %+v", b)
	}
	if got := Describe(b); got != "paid ₹2000.00 of ₹1500.00 (overpaid by ₹500.00)" {
		t.Fatalf("Describe = %q", got)
	}
}

func TestListTransactionsUnknownStudent(t *testing.T) {
	l, _, _ := setup(t, 12000)
	if _, err := l.ListTransactions(context.Background(), 999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTakenFeeMatchesLedgerSum(t *testing.T) {
	ctx := context.Background()
	l, store, st := setup(t, 12000)
	amounts := []int64{1000, 750, 1250}
	for i, a := range amounts {
		if _, err := l.RecordPayment(ctx, core.NewPayment{StudentID: st.ID, Amount: core.Rupees(a), Month: core.AcademicMonths[i]}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, _ := store.GetStudent(ctx, st.ID)
	txs, _ := l.ListTransactions(ctx, st.ID)
	if got.TakenFee != core.SumAmounts(txs) {
		t.Fatalf("taken fee %v != ledger sum %v", got.TakenFee, core.SumAmounts(txs))
	}
}

// failingStore simulates an unreachable backing store.
type failingStore struct {
	student     core.Student
	checkErr    error
	appendErr   error
	appendCalls int
}

func (f *failingStore) GetStudent(context.Context, int64) (core.Student, error) {
	return f.student, nil
}

func (f *failingStore) HasPaymentForMonth(context.Context, int64, core.AcademicMonth) (bool, error) {
	return false, f.checkErr
}

func (f *failingStore) AppendPayment(_ context.Context, p core.NewPayment) (core.FeeTransaction, error) {
	f.appendCalls++
	if f.appendErr != nil {
		return core.FeeTransaction{}, f.appendErr
	}
	return core.FeeTransaction{ID: 1, StudentID: p.StudentID, Amount: p.Amount, Month: p.Month}, nil
}

func (f *failingStore) ListPayments(context.Context, int64) ([]core.FeeTransaction, error) {
	return nil, errors.New("connection refused")
}

func TestGuardFailsClosed(t *testing.T) {
	store := &failingStore{
		student:  core.Student{ID: 1, TotalFee: core.Rupees(12000), Status: core.StatusActive},
		checkErr: errors.New("connection refused"),
	}
	l := New(store)

	_, err := l.RecordPayment(context.Background(), core.NewPayment{StudentID: 1, Amount: core.Rupees(1000), Month: core.April})
	if !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if store.appendCalls != 0 {
		t.Fatalf("payment must not be appended when the guard cannot check")
	}
}

func TestAppendFailureIsPersistenceError(t *testing.T) {
	store := &failingStore{
		student:   core.Student{ID: 1, Status: core.StatusActive},
		appendErr: errors.New("database is locked"),
	}
	_, err := New(store).RecordPayment(context.Background(), core.NewPayment{StudentID: 1, Amount: core.Rupees(1000), Month: core.April})
	var pe *core.PersistenceError
	if !errors.As(err, &pe) || pe.Op != "append payment" {
		t.Fatalf("expected append PersistenceError, got %v", err)
	}
}

func TestAppendRaceSurfacesAsDuplicate(t *testing.T) {
	store := &failingStore{
		student:   core.Student{ID: 1, Status: core.StatusActive},
		appendErr: core.ErrDuplicateMonth,
	}
	_, err := New(store).RecordPayment(context.Background(), core.NewPayment{StudentID: 1, Amount: core.Rupees(1000), Month: core.April})
	if !errors.Is(err, core.ErrDuplicateMonth) || errors.Is(err, core.ErrPersistence) {
		t.Fatalf("expected plain ErrDuplicateMonth, got %v", err)
	}
}

func TestComputeBalancePersistenceError(t *testing.T) {
	store := &failingStore{student: core.Student{ID: 1}}
	if _, err := New(store).ComputeBalance(context.Background(), 1); !errors.Is(err, core.ErrPersistence) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestGuardCheckInvalidMonth(t *testing.T) {
	g := NewGuard(&failingStore{})
	if err := g.Check(context.Background(), 1, "Smarch"); !core.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// clockedStore is a ledger store whose timestamps can be pinned.
type clockedStore interface {
	Store
	CreateClass(ctx context.Context, c core.Class) (core.Class, error)
	CreateStudent(ctx context.Context, st core.Student) (core.Student, error)
	SetClock(now func() time.Time)
}

func TestListTransactionsIsRepeatable(t *testing.T) {
	stores := []struct {
		name string
		open func(t *testing.T) clockedStore
	}{
		{"memory", func(*testing.T) clockedStore { return memory.New() }},
		{"sqlite", func(t *testing.T) clockedStore {
			repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fees.db"))
			if err != nil {
				t.Fatalf("open repository: %v", err)
			}
			t.Cleanup(func() { repo.Close() })
			return repo
		}},
	}

	for _, tt := range stores {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := tt.open(t)
			// identical created_at forces the id tiebreak
			fixed := time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)
			store.SetClock(func() time.Time { return fixed })

			class, err := store.CreateClass(ctx, core.Class{Name: "Class 10", StandardFee: core.Rupees(12000)})
			if err != nil {
				t.Fatalf("create class: %v", err)
			}
			st, err := store.CreateStudent(ctx, core.Student{FullName: "Sita Devi", ClassID: class.ID, TotalFee: core.Rupees(12000)})
			if err != nil {
				t.Fatalf("create student: %v", err)
			}

			l := New(store)
			for _, m := range []core.AcademicMonth{core.April, core.May} {
				if _, err := l.RecordPayment(ctx, core.NewPayment{StudentID: st.ID, Amount: core.Rupees(1000), Month: m}); err != nil {
					t.Fatalf("record %s: %v", m, err)
				}
			}

			first, err := l.ListTransactions(ctx, st.ID)
			if err != nil {
				t.Fatalf("first list: %v", err)
			}
			second, err := l.ListTransactions(ctx, st.ID)
			if err != nil {
				t.Fatalf("second list: %v", err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("listings differ:\n%+v\n%+v", first, second)
			}
			if len(first) != 2 || first[0].Month != core.May || first[1].Month != core.April {
				t.Fatalf("expected May then April, got %+v", first)
			}
		})
	}
}
