package core

const (
	MonthPaid MonthState = "PAID"
	MonthDue  MonthState = "DUE"
)

type MonthState string

// MonthStatus is one cell of the twelve-month fee grid.
type MonthStatus struct {
	Month         AcademicMonth
	State         MonthState
	Overdue       bool  // due and already behind the current fee month
	TransactionID int64 // zero when unpaid
}

// FeeCard is the compact fee view of one student.
type FeeCard struct {
	Student Student
	Balance Balance
	Months  []MonthStatus
	Recent  []FeeTransaction // most recent first
}
