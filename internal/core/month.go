package core

import (
	"fmt"
	"strings"
	"time"
)

// AcademicMonth is one of the twelve fee months. The academic year starts in
// April and ends in March.
type AcademicMonth string

const (
	April     AcademicMonth = "April"
	May       AcademicMonth = "May"
	June      AcademicMonth = "June"
	July      AcademicMonth = "July"
	August    AcademicMonth = "August"
	September AcademicMonth = "September"
	October   AcademicMonth = "October"
	November  AcademicMonth = "November"
	December  AcademicMonth = "December"
	January   AcademicMonth = "January"
	February  AcademicMonth = "February"
	March     AcademicMonth = "March"
)

// AcademicMonths lists the months in academic order, April first.
var AcademicMonths = []AcademicMonth{
	April, May, June, July, August, September,
	October, November, December, January, February, March,
}

// ParseAcademicMonth accepts a month label in any case, full name or
// three-letter abbreviation ("apr", "April", "APRIL").
func ParseAcademicMonth(s string) (AcademicMonth, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidMonth
	}
	for _, m := range AcademicMonths {
		if strings.EqualFold(s, string(m)) || strings.EqualFold(s, string(m)[:3]) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

func (m AcademicMonth) Validate() error {
	if m.Index() < 0 {
		return ErrInvalidMonth
	}
	return nil
}

// Index returns the position of m in academic order (April = 0) or -1 when
// m is not a recognised label.
func (m AcademicMonth) Index() int {
	for i, v := range AcademicMonths {
		if v == m {
			return i
		}
	}
	return -1
}

func (m AcademicMonth) String() string {
	return string(m)
}

// AcademicMonthOf maps a calendar date to its fee month.
func AcademicMonthOf(t time.Time) AcademicMonth {
	// time.April == 4 maps to index 0, time.March == 3 maps to index 11
	return AcademicMonths[(int(t.Month())+8)%12]
}

// AcademicYearOf returns the calendar year in which the session containing t
// started.
func AcademicYearOf(t time.Time) int {
	if t.Month() < time.April {
		return t.Year() - 1
	}
	return t.Year()
}

// AcademicSession formats the session containing t, e.g. "2025-26".
func AcademicSession(t time.Time) string {
	start := AcademicYearOf(t)
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

// MonthStart returns the first day of month m in the session that started
// in April of sessionYear.
func MonthStart(sessionYear int, m AcademicMonth, loc *time.Location) time.Time {
	idx := m.Index()
	if idx < 0 {
		return time.Time{}
	}
	year := sessionYear
	month := time.April + time.Month(idx)
	if month > time.December {
		month -= 12
		year++
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}
