package core

// DebtorRecap is one debtor's line in the recap view.
type DebtorRecap struct {
	DebtorID  string
	Name      string
	TotalDebt int64
}

// Recap is the summary across one owner's whole ledger.
type Recap struct {
	TotalDebt   int64 // sum of all debt transactions
	TotalPaid   int64 // sum of all payment transactions
	Outstanding int64 // TotalDebt - TotalPaid
	Unsettled   []DebtorRecap
}
