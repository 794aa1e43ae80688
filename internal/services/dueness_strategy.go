// Package services provides business logic and orchestration services.
//
// This file implements the strategies that decide when an unpaid fee month
// counts as overdue, and builds the twelve-month fee grid from them.
package services

import (
	"time"

	"feeledger/internal/core"
)

// DuenessChecker decides whether an unpaid month is overdue at now.
type DuenessChecker interface {
	IsOverdue(month core.AcademicMonth, sessionYear int, now time.Time) bool
}

// MonthStartChecker treats a month as overdue from its first day.
type MonthStartChecker struct{}

func (MonthStartChecker) IsOverdue(month core.AcademicMonth, sessionYear int, now time.Time) bool {
	start := core.MonthStart(sessionYear, month, now.Location())
	return !start.IsZero() && !now.Before(start)
}

// DueDayChecker gives a grace period: a month becomes overdue once its
// DueDay has passed. DueDay beyond the month's length clamps to the last day.
type DueDayChecker struct {
	DueDay int
}

func (c DueDayChecker) IsOverdue(month core.AcademicMonth, sessionYear int, now time.Time) bool {
	start := core.MonthStart(sessionYear, month, now.Location())
	if start.IsZero() {
		return false
	}
	day := c.DueDay
	lastDay := start.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}
	// overdue from the day after the due day
	deadline := start.AddDate(0, 0, day)
	return !now.Before(deadline)
}

// NewDuenessChecker returns the checker for a configured due day; zero or
// less means "due on the first".
func NewDuenessChecker(dueDay int) DuenessChecker {
	if dueDay <= 0 {
		return MonthStartChecker{}
	}
	return DueDayChecker{DueDay: dueDay}
}

// BuildMonthGrid lays out the twelve academic months in order with their
// PAID or DUE state for the session containing now.
func BuildMonthGrid(txs []core.FeeTransaction, now time.Time, checker DuenessChecker) []core.MonthStatus {
	paid := make(map[core.AcademicMonth]int64, len(txs))
	for _, t := range txs {
		paid[t.Month] = t.ID
	}
	session := core.AcademicYearOf(now)

	grid := make([]core.MonthStatus, 0, len(core.AcademicMonths))
	for _, m := range core.AcademicMonths {
		st := core.MonthStatus{Month: m, State: core.MonthDue}
		if id, ok := paid[m]; ok {
			st.State = core.MonthPaid
			st.TransactionID = id
		} else {
			st.Overdue = checker.IsOverdue(m, session, now)
		}
		grid = append(grid, st)
	}
	return grid
}
