package core

import (
	"errors"
	"strings"
	"time"
)

// SubjectCount is the number of subjects an exam result carries.
const SubjectCount = 5

const DefaultExamName = "Annual"

// Marks holds the per-subject scores out of 100.
type Marks struct {
	Math    int
	Science int
	English int
	Hindi   int
	SST     int
}

type ExamResult struct {
	ID        int64
	StudentID int64
	ExamName  string
	Marks     Marks
	CreatedAt time.Time
}

var ErrInvalidMarks = errors.New("invalid marks")

func (m Marks) Total() int {
	return m.Math + m.Science + m.English + m.Hindi + m.SST
}

// Percentage is the average score rounded to two decimals.
func (m Marks) Percentage() float64 {
	pct := float64(m.Total()) / SubjectCount
	return float64(int64(pct*100+0.5)) / 100
}

// Grade is "A" from 60 percent upwards and "B" below.
func (r ExamResult) Grade() string {
	if r.Marks.Percentage() >= 60 {
		return "A"
	}
	return "B"
}

func (r ExamResult) Validate() error {
	var flds []FieldError
	if r.StudentID <= 0 {
		flds = append(flds, FieldError{Field: "student_id", Error: "student is required"})
	}
	if strings.TrimSpace(r.ExamName) == "" {
		flds = append(flds, FieldError{Field: "exam_name", Error: "exam name is required"})
	}
	subjects := []struct {
		name  string
		score int
	}{
		{"math", r.Marks.Math},
		{"science", r.Marks.Science},
		{"english", r.Marks.English},
		{"hindi", r.Marks.Hindi},
		{"sst", r.Marks.SST},
	}
	for _, s := range subjects {
		if s.score < 0 || s.score > 100 {
			flds = append(flds, FieldError{Field: s.name, Error: "marks must be between 0 and 100"})
		}
	}
	if len(flds) > 0 {
		return NewValidationError(ErrInvalidMarks, flds...)
	}
	return nil
}
