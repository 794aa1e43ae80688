package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feeledger/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeLayout sorts lexicographically, so ORDER BY created_at is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer connection; payments are serialised by SQLite itself
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// SetClock replaces the time source used for created_at stamps.
func (r *SQLiteRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.NewPersistenceError("ping", err)
	}
	return nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateClass adds a class to the catalogue.
func (r *SQLiteRepository) CreateClass(ctx context.Context, c core.Class) (core.Class, error) {
	if err := c.Validate(); err != nil {
		return core.Class{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO classes (class_name, standard_fee_paise) VALUES (?, ?)`,
		strings.TrimSpace(c.Name), c.StandardFee.Paise)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Class{}, core.NewValidationError(core.ErrInvalidClass,
				core.FieldError{Field: "class_name", Error: "class already exists"})
		}
		return core.Class{}, core.NewPersistenceError("create class", err)
	}
	c.ID, _ = res.LastInsertId()
	c.Name = strings.TrimSpace(c.Name)

	slog.InfoContext(ctx, "Class created", "class_id", c.ID, "class_name", c.Name)
	return c, nil
}

func (r *SQLiteRepository) ListClasses(ctx context.Context) ([]core.Class, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, class_name, standard_fee_paise FROM classes ORDER BY id`)
	if err != nil {
		return nil, core.NewPersistenceError("list classes", err)
	}
	defer rows.Close()

	var out []core.Class
	for rows.Next() {
		var c core.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.StandardFee.Paise); err != nil {
			return nil, core.NewPersistenceError("scan class", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("list classes", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetClass(ctx context.Context, id int64) (core.Class, error) {
	var c core.Class
	err := r.db.QueryRowContext(ctx,
		`SELECT id, class_name, standard_fee_paise FROM classes WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.StandardFee.Paise)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Class{}, fmt.Errorf("class %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Class{}, core.NewPersistenceError("get class", err)
	}
	return c, nil
}

// CreateStudent enrols an active student with a zero taken fee. TotalFee
// must be resolved by the caller.
func (r *SQLiteRepository) CreateStudent(ctx context.Context, st core.Student) (core.Student, error) {
	class, err := r.GetClass(ctx, st.ClassID)
	if err != nil {
		return core.Student{}, err
	}

	createdAt := r.stamp()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO students (full_name, father_name, mobile, address, class_id, total_fee_paise, taken_fee_paise, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 'active', ?)`,
		st.FullName, st.FatherName, st.Mobile, st.Address, st.ClassID, st.TotalFee.Paise, createdAt)
	if err != nil {
		return core.Student{}, core.NewPersistenceError("create student", err)
	}

	st.ID, _ = res.LastInsertId()
	st.ClassName = class.Name
	st.TakenFee = core.Money{}
	st.Status = core.StatusActive
	st.LeftDate = time.Time{}
	st.CreatedAt = parseTime(createdAt)

	slog.InfoContext(ctx, "Student enrolled",
		"student_id", st.ID,
		"class_id", st.ClassID,
		"total_fee_paise", st.TotalFee.Paise)
	return st, nil
}

const studentColumns = `
	s.id, s.full_name, s.father_name, s.mobile, s.address, s.class_id, c.class_name,
	s.total_fee_paise, s.taken_fee_paise, s.status, s.left_date, s.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (core.Student, error) {
	var (
		st        core.Student
		status    string
		leftDate  sql.NullString
		createdAt string
	)
	err := row.Scan(&st.ID, &st.FullName, &st.FatherName, &st.Mobile, &st.Address, &st.ClassID, &st.ClassName,
		&st.TotalFee.Paise, &st.TakenFee.Paise, &status, &leftDate, &createdAt)
	if err != nil {
		return core.Student{}, err
	}
	st.Status = core.StudentStatus(status)
	if leftDate.Valid {
		st.LeftDate = parseTime(leftDate.String)
	}
	st.CreatedAt = parseTime(createdAt)
	return st, nil
}

func (r *SQLiteRepository) GetStudent(ctx context.Context, id int64) (core.Student, error) {
	return getStudent(ctx, r.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getStudent(ctx context.Context, q querier, id int64) (core.Student, error) {
	row := q.QueryRowContext(ctx, `SELECT`+studentColumns+`
		FROM students s JOIN classes c ON c.id = s.class_id
		WHERE s.id = ?`, id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Student{}, fmt.Errorf("student %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Student{}, core.NewPersistenceError("get student", err)
	}
	return st, nil
}

// ListStudents returns matching students ordered by name.
func (r *SQLiteRepository) ListStudents(ctx context.Context, f core.StudentFilter) ([]core.Student, error) {
	query := `SELECT` + studentColumns + `
		FROM students s JOIN classes c ON c.id = s.class_id
		WHERE (? = 0 OR s.class_id = ?) AND (? = '' OR s.status = ?)
		ORDER BY s.full_name, s.id`
	rows, err := r.db.QueryContext(ctx, query, f.ClassID, f.ClassID, string(f.Status), string(f.Status))
	if err != nil {
		return nil, core.NewPersistenceError("list students", err)
	}
	defer rows.Close()

	var out []core.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, core.NewPersistenceError("scan student", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("list students", err)
	}
	return out, nil
}

// ArchiveStudent marks the student as left. Nothing is deleted.
func (r *SQLiteRepository) ArchiveStudent(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET status = 'left', left_date = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	if err != nil {
		return core.NewPersistenceError("archive student", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("student %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Student archived", "student_id", id)
	return nil
}

func (r *SQLiteRepository) SetTotalFee(ctx context.Context, id int64, fee core.Money) error {
	res, err := r.db.ExecContext(ctx, `UPDATE students SET total_fee_paise = ? WHERE id = ?`, fee.Paise, id)
	if err != nil {
		return core.NewPersistenceError("set total fee", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("student %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) HasPaymentForMonth(ctx context.Context, studentID int64, month core.AcademicMonth) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM fee_transactions WHERE student_id = ? AND payment_month = ?`,
		studentID, string(month)).Scan(&n)
	if err != nil {
		return false, core.NewPersistenceError("check payment month", err)
	}
	return n > 0, nil
}

// AppendPayment inserts the transaction, increments taken_fee and queues the
// row for the fee register in a single database transaction. The taken_fee
// update only matches active students, so an archive that lands after the
// ledger's status check still blocks the payment.
func (r *SQLiteRepository) AppendPayment(ctx context.Context, p core.NewPayment) (core.FeeTransaction, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.FeeTransaction{}, core.NewPersistenceError("begin payment", err)
	}
	defer dbtx.Rollback()

	if _, err := getStudent(ctx, dbtx, p.StudentID); err != nil {
		return core.FeeTransaction{}, err
	}

	upd, err := dbtx.ExecContext(ctx,
		`UPDATE students SET taken_fee_paise = taken_fee_paise + ? WHERE id = ? AND status = 'active'`,
		p.Amount.Paise, p.StudentID)
	if err != nil {
		return core.FeeTransaction{}, core.NewPersistenceError("update taken fee", err)
	}
	if n, err := upd.RowsAffected(); err != nil {
		return core.FeeTransaction{}, core.NewPersistenceError("update taken fee", err)
	} else if n == 0 {
		return core.FeeTransaction{}, core.InactiveStudentError()
	}

	createdAt := r.stamp()
	res, err := dbtx.ExecContext(ctx, `
		INSERT INTO fee_transactions (student_id, amount_paise, payment_month, remarks, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.StudentID, p.Amount.Paise, string(p.Month), p.Remarks, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.FeeTransaction{}, fmt.Errorf("%s for student %d: %w", p.Month, p.StudentID, core.ErrDuplicateMonth)
		}
		return core.FeeTransaction{}, core.NewPersistenceError("insert transaction", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.FeeTransaction{}, core.NewPersistenceError("insert transaction", err)
	}

	if _, err := dbtx.ExecContext(ctx,
		`INSERT INTO register_sync (transaction_id, status, created_at) VALUES (?, 'pending', ?)`,
		id, createdAt); err != nil {
		return core.FeeTransaction{}, core.NewPersistenceError("queue register sync", err)
	}

	if err := dbtx.Commit(); err != nil {
		return core.FeeTransaction{}, core.NewPersistenceError("commit payment", err)
	}

	slog.InfoContext(ctx, "Fee transaction saved to SQLite",
		"transaction_id", id,
		"student_id", p.StudentID,
		"payment_month", p.Month,
		"amount_paise", p.Amount.Paise)

	return core.FeeTransaction{
		ID:        id,
		StudentID: p.StudentID,
		Amount:    p.Amount,
		Month:     p.Month,
		Remarks:   p.Remarks,
		CreatedAt: parseTime(createdAt),
	}, nil
}

const transactionColumns = `id, student_id, amount_paise, payment_month, remarks, created_at`

func scanTransaction(row rowScanner) (core.FeeTransaction, error) {
	var (
		t         core.FeeTransaction
		month     string
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.StudentID, &t.Amount.Paise, &month, &t.Remarks, &createdAt); err != nil {
		return core.FeeTransaction{}, err
	}
	t.Month = core.AcademicMonth(month)
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

// ListPayments returns the student's transactions, most recent first.
func (r *SQLiteRepository) ListPayments(ctx context.Context, studentID int64) ([]core.FeeTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+`
		FROM fee_transactions WHERE student_id = ?
		ORDER BY created_at DESC, id DESC`, studentID)
	if err != nil {
		return nil, core.NewPersistenceError("list payments", err)
	}
	defer rows.Close()

	var out []core.FeeTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, core.NewPersistenceError("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("list payments", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.FeeTransaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM fee_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FeeTransaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.FeeTransaction{}, core.NewPersistenceError("get transaction", err)
	}
	return t, nil
}

func (r *SQLiteRepository) SaveExamResult(ctx context.Context, res core.ExamResult) (core.ExamResult, error) {
	if err := res.Validate(); err != nil {
		return core.ExamResult{}, err
	}
	if _, err := r.GetStudent(ctx, res.StudentID); err != nil {
		return core.ExamResult{}, err
	}

	createdAt := r.stamp()
	out, err := r.db.ExecContext(ctx, `
		INSERT INTO exam_results (student_id, exam_name, math, science, english, hindi, sst, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.StudentID, res.ExamName, res.Marks.Math, res.Marks.Science, res.Marks.English,
		res.Marks.Hindi, res.Marks.SST, createdAt)
	if err != nil {
		return core.ExamResult{}, core.NewPersistenceError("save exam result", err)
	}
	res.ID, _ = out.LastInsertId()
	res.CreatedAt = parseTime(createdAt)
	return res, nil
}

// ListExamResults returns the student's results, most recent first.
func (r *SQLiteRepository) ListExamResults(ctx context.Context, studentID int64) ([]core.ExamResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, exam_name, math, science, english, hindi, sst, created_at
		FROM exam_results WHERE student_id = ?
		ORDER BY created_at DESC, id DESC`, studentID)
	if err != nil {
		return nil, core.NewPersistenceError("list exam results", err)
	}
	defer rows.Close()

	var out []core.ExamResult
	for rows.Next() {
		var (
			res       core.ExamResult
			createdAt string
		)
		if err := rows.Scan(&res.ID, &res.StudentID, &res.ExamName, &res.Marks.Math, &res.Marks.Science,
			&res.Marks.English, &res.Marks.Hindi, &res.Marks.SST, &createdAt); err != nil {
			return nil, core.NewPersistenceError("scan exam result", err)
		}
		res.CreatedAt = parseTime(createdAt)
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewPersistenceError("list exam results", err)
	}
	return out, nil
}
