package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"feeledger/internal/core"
)

// Store keeps the whole school in memory. Writes are serialised under one
// mutex so the month-uniqueness check and the append happen together.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	classes  []core.Class
	students map[int64]*core.Student
	txs      []core.FeeTransaction
	results  []core.ExamResult

	nextClass   int64
	nextStudent int64
	nextTx      int64
	nextResult  int64
}

func New(classes ...core.Class) *Store {
	s := &Store{
		now:      time.Now,
		students: map[int64]*core.Student{},
	}
	for _, c := range classes {
		s.nextClass++
		c.ID = s.nextClass
		s.classes = append(s.classes, c)
	}
	return s
}

// NewFromFiles seeds the class catalogue from base/seed_classes.txt, one
// "name,standard fee" pair per line.
func NewFromFiles(base string) *Store {
	var classes []core.Class
	for _, line := range readLines(filepath.Join(base, "seed_classes.txt")) {
		name, fee, _ := strings.Cut(line, ",")
		c := core.Class{Name: strings.TrimSpace(name)}
		if paise, err := core.ParseDecimalToPaise(fee); err == nil {
			c.StandardFee = core.Money{Paise: paise}
		}
		classes = append(classes, c)
	}
	if len(classes) == 0 {
		classes = []core.Class{
			{Name: "Class 1", StandardFee: core.Rupees(6000)},
			{Name: "Class 5", StandardFee: core.Rupees(9000)},
			{Name: "Class 10", StandardFee: core.Rupees(12000)},
		}
	}
	return New(classes...)
}

// SetClock replaces the time source used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateClass(_ context.Context, c core.Class) (core.Class, error) {
	if err := c.Validate(); err != nil {
		return core.Class{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.classes {
		if strings.EqualFold(existing.Name, c.Name) {
			return core.Class{}, core.NewValidationError(core.ErrInvalidClass,
				core.FieldError{Field: "class_name", Error: "class already exists"})
		}
	}
	s.nextClass++
	c.ID = s.nextClass
	s.classes = append(s.classes, c)
	return c, nil
}

func (s *Store) ListClasses(context.Context) ([]core.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Class(nil), s.classes...), nil
}

func (s *Store) GetClass(_ context.Context, id int64) (core.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classLocked(id)
}

func (s *Store) classLocked(id int64) (core.Class, error) {
	for _, c := range s.classes {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Class{}, fmt.Errorf("class %d: %w", id, core.ErrNotFound)
}

// CreateStudent stores a new active student. TotalFee must already be
// resolved by the caller; TakenFee always starts at zero.
func (s *Store) CreateStudent(_ context.Context, st core.Student) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	class, err := s.classLocked(st.ClassID)
	if err != nil {
		return core.Student{}, err
	}
	s.nextStudent++
	st.ID = s.nextStudent
	st.ClassName = class.Name
	st.TakenFee = core.Money{}
	st.Status = core.StatusActive
	st.LeftDate = time.Time{}
	st.CreatedAt = s.now()
	s.students[st.ID] = &st
	return st, nil
}

func (s *Store) GetStudent(_ context.Context, id int64) (core.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return core.Student{}, fmt.Errorf("student %d: %w", id, core.ErrNotFound)
	}
	return *st, nil
}

// ListStudents returns matching students ordered by name.
func (s *Store) ListStudents(_ context.Context, f core.StudentFilter) ([]core.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Student, 0, len(s.students))
	for _, st := range s.students {
		if f.Match(*st) {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ArchiveStudent(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return fmt.Errorf("student %d: %w", id, core.ErrNotFound)
	}
	st.Status = core.StatusLeft
	st.LeftDate = at
	return nil
}

func (s *Store) SetTotalFee(_ context.Context, id int64, fee core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return fmt.Errorf("student %d: %w", id, core.ErrNotFound)
	}
	st.TotalFee = fee
	return nil
}

func (s *Store) HasPaymentForMonth(_ context.Context, studentID int64, month core.AcademicMonth) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMonthLocked(studentID, month), nil
}

func (s *Store) hasMonthLocked(studentID int64, month core.AcademicMonth) bool {
	for _, t := range s.txs {
		if t.StudentID == studentID && t.Month == month {
			return true
		}
	}
	return false
}

// AppendPayment re-checks uniqueness inside the critical section and bumps
// the student's taken fee together with the insert.
func (s *Store) AppendPayment(_ context.Context, p core.NewPayment) (core.FeeTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[p.StudentID]
	if !ok {
		return core.FeeTransaction{}, fmt.Errorf("student %d: %w", p.StudentID, core.ErrNotFound)
	}
	if !st.IsActive() {
		return core.FeeTransaction{}, core.InactiveStudentError()
	}
	if s.hasMonthLocked(p.StudentID, p.Month) {
		return core.FeeTransaction{}, fmt.Errorf("%s for student %d: %w", p.Month, p.StudentID, core.ErrDuplicateMonth)
	}
	s.nextTx++
	tx := core.FeeTransaction{
		ID:        s.nextTx,
		StudentID: p.StudentID,
		Amount:    p.Amount,
		Month:     p.Month,
		Remarks:   p.Remarks,
		CreatedAt: s.now(),
	}
	s.txs = append(s.txs, tx)
	st.TakenFee = st.TakenFee.Add(p.Amount)
	return tx, nil
}

func (s *Store) ListPayments(_ context.Context, studentID int64) ([]core.FeeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.FeeTransaction
	// newest first: insertion order reversed
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].StudentID == studentID {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.FeeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txs {
		if t.ID == id {
			return t, nil
		}
	}
	return core.FeeTransaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
}

func (s *Store) SaveExamResult(_ context.Context, r core.ExamResult) (core.ExamResult, error) {
	if err := r.Validate(); err != nil {
		return core.ExamResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[r.StudentID]; !ok {
		return core.ExamResult{}, fmt.Errorf("student %d: %w", r.StudentID, core.ErrNotFound)
	}
	s.nextResult++
	r.ID = s.nextResult
	r.CreatedAt = s.now()
	s.results = append(s.results, r)
	return r, nil
}

// ListExamResults returns the student's results, most recent first.
func (s *Store) ListExamResults(_ context.Context, studentID int64) ([]core.ExamResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ExamResult
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].StudentID == studentID {
			out = append(out, s.results[i])
		}
	}
	return out, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
