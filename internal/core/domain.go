package core

import (
	"errors"
	"strings"
	"time"
)

const (
	TypeDebt    TransactionType = "debt"
	TypePayment TransactionType = "payment"
)

const (
	StateSettled DebtorState = "settled"
	StateOwing   DebtorState = "owing"
)

type (
	TransactionType string

	DebtorState string

	// Debtor is one customer with an outstanding balance. TotalDebt is a
	// denormalized running total kept for list views; the transaction log is
	// the source of truth on the detail view.
	Debtor struct {
		ID          string
		OwnerID     string
		Name        string
		Nickname    string
		Phone       string
		PhotoBase64 string
		TotalDebt   int64 // whole rupiah
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Transaction is one balance-affecting event. Immutable once created:
	// there is no update path, only create and cascade delete.
	Transaction struct {
		ID         string
		OwnerID    string
		DebtorID   string
		DebtorName string // snapshot at write time
		Amount     int64  // whole rupiah, always positive
		Type       TransactionType
		Note       string
		CreatedAt  time.Time
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyName       = errors.New("empty debtor name")
	ErrMissingPhoto    = errors.New("missing debtor photo")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrEmptyDebtorID   = errors.New("empty debtor id")
	ErrEmptyOwnerID    = errors.New("empty owner id")
	ErrNothingToSettle = errors.New("nothing to settle")
	ErrPaymentTooLarge = errors.New("payment exceeds outstanding debt")
)

// Valid reports whether the transaction type is one of the two variants.
func (t TransactionType) Valid() bool {
	return t == TypeDebt || t == TypePayment
}

func (d Debtor) Validate() error {
	if d.OwnerID == "" {
		return ErrEmptyOwnerID
	}
	if len(strings.TrimSpace(d.Name)) == 0 {
		return ErrEmptyName
	}
	if len(d.Name) > 200 {
		return errors.New("debtor name too long (max 200 characters)")
	}
	if d.PhotoBase64 == "" {
		return ErrMissingPhoto
	}
	if d.TotalDebt < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// State classifies the debtor by its cached balance.
func (d Debtor) State() DebtorState {
	if d.TotalDebt > 0 {
		return StateOwing
	}
	return StateSettled
}

func (t Transaction) Validate() error {
	if t.OwnerID == "" {
		return ErrEmptyOwnerID
	}
	if t.DebtorID == "" {
		return ErrEmptyDebtorID
	}
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if len(t.Note) > 500 {
		return errors.New("note too long (max 500 characters)")
	}
	return nil
}

// ComputeActualBalance recomputes a debtor's balance from its transaction
// log: sum of debts minus sum of payments. This is the authoritative value
// on the detail view, independent of the cached Debtor.TotalDebt.
func ComputeActualBalance(transactions []Transaction) int64 {
	var debt, paid int64
	for _, t := range transactions {
		switch t.Type {
		case TypeDebt:
			debt += t.Amount
		case TypePayment:
			paid += t.Amount
		}
	}
	return debt - paid
}
