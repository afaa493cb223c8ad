// Package store defines the document-store contract the ledger runs on.
//
// Collections are debtors, transactions and users, all scoped to an owner.
// Implementations must execute a LedgerWrite (one transaction append plus one
// balance application) as a single unit of work where the backend has a
// transaction primitive, and must cascade DeleteDebtor over the debtor's
// transactions the same way.
package store

import (
	"context"
	"errors"
	"time"

	"utangku/internal/core"
)

const (
	// BalanceIncrement adds Value to the cached balance (debt adds).
	BalanceIncrement BalanceOp = iota
	// BalanceSet overwrites the cached balance with Value (payments).
	BalanceSet
)

type (
	BalanceOp int

	// LedgerWrite pairs a transaction-log append with the debtor balance
	// update it implies.
	LedgerWrite struct {
		Transaction core.Transaction
		Op          BalanceOp
		Value       int64
	}

	// CancelFunc tears down a watch subscription. Safe to call repeatedly.
	CancelFunc func()
)

var (
	ErrDebtorNotFound = errors.New("debtor not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
)

// Ports for the ledger and auth layers.
type (
	DebtorWriter interface {
		// CreateDebtor persists a new debtor together with its first debt
		// transaction and returns both with server-assigned IDs and
		// timestamps.
		CreateDebtor(ctx context.Context, d core.Debtor, first core.Transaction) (core.Debtor, core.Transaction, error)

		// DeleteDebtor removes the debtor and every transaction referencing
		// it. Returns ErrDebtorNotFound when no such debtor exists for the
		// owner.
		DeleteDebtor(ctx context.Context, ownerID, debtorID string) error
	}

	LedgerWriter interface {
		// Record appends the transaction and applies the balance update as
		// one unit of work, returning the stored transaction.
		Record(ctx context.Context, w LedgerWrite) (core.Transaction, error)
	}

	DebtorReader interface {
		GetDebtor(ctx context.Context, ownerID, debtorID string) (core.Debtor, error)
		// ListDebtors returns the owner's debtors, most recently updated first.
		ListDebtors(ctx context.Context, ownerID string) ([]core.Debtor, error)
	}

	TransactionReader interface {
		// ListTransactions returns one debtor's log, newest first.
		ListTransactions(ctx context.Context, ownerID, debtorID string) ([]core.Transaction, error)
		// ListAllTransactions returns the owner's whole log, newest first.
		ListAllTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)
	}

	// Watcher delivers push snapshots for equality-filtered queries. The
	// returned channel carries the current snapshot immediately and again
	// after every matching write; cancel unsubscribes and closes it.
	Watcher interface {
		WatchDebtors(ctx context.Context, ownerID string) (<-chan []core.Debtor, CancelFunc, error)
		WatchTransactions(ctx context.Context, ownerID, debtorID string) (<-chan []core.Transaction, CancelFunc, error)
	}

	UserStore interface {
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		// CreateUser persists a new profile document. ErrUserExists when the
		// email is taken.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		// TouchLastLogin refreshes the last-login timestamp (merge-update).
		TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	}
)

// Store is the full contract a backend implements.
type Store interface {
	DebtorWriter
	LedgerWriter
	DebtorReader
	TransactionReader
	Watcher
	UserStore

	Close() error
}
