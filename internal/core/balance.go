package core

// Balance is the derived fee position of a student.
type Balance struct {
	Total     Money
	Paid      Money
	Remaining Money // Total - Paid, negative when overpaid
	Overpaid  bool
}

// SumAmounts adds up the amounts of the given transactions.
func SumAmounts(txs []FeeTransaction) Money {
	var sum Money
	for _, t := range txs {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// ComputeBalance derives paid and remaining from the ledger. Remaining is
// not clamped: an overpayment shows up as a negative value.
func ComputeBalance(total Money, txs []FeeTransaction) Balance {
	return BalanceFromPaid(total, SumAmounts(txs))
}

// BalanceFromPaid builds a Balance from an already-summed paid amount.
func BalanceFromPaid(total, paid Money) Balance {
	remaining := total.Sub(paid)
	return Balance{
		Total:     total,
		Paid:      paid,
		Remaining: remaining,
		Overpaid:  remaining.IsNegative(),
	}
}
