// Package memory is the in-memory store backend. It is the default for
// local development and the test double for the ledger and HTTP layers.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"utangku/internal/core"
	"utangku/internal/store"
)

type Store struct {
	mu      sync.Mutex
	debtors []core.Debtor
	txs     []core.Transaction
	users   map[string]core.User // keyed by lower-cased email

	debtorHub *store.Hub[[]core.Debtor]
	txHub     *store.Hub[[]core.Transaction]

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     make(map[string]core.User),
		debtorHub: store.NewHub[[]core.Debtor](),
		txHub:     store.NewHub[[]core.Transaction](),
		now:       time.Now,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateDebtor(_ context.Context, d core.Debtor, first core.Transaction) (core.Debtor, core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	d.ID = uuid.NewString()
	d.CreatedAt = now
	d.UpdatedAt = now
	if err := d.Validate(); err != nil {
		return core.Debtor{}, core.Transaction{}, err
	}

	first.ID = uuid.NewString()
	first.DebtorID = d.ID
	first.DebtorName = d.Name
	first.CreatedAt = now
	if err := first.Validate(); err != nil {
		return core.Debtor{}, core.Transaction{}, err
	}

	s.debtors = append(s.debtors, d)
	s.txs = append(s.txs, first)
	s.notifyLocked(d.OwnerID, d.ID)
	return d, first, nil
}

func (s *Store) Record(_ context.Context, w store.LedgerWrite) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := w.Transaction
	i := s.indexLocked(tx.OwnerID, tx.DebtorID)
	if i < 0 {
		return core.Transaction{}, store.ErrDebtorNotFound
	}

	now := s.now()
	tx.ID = uuid.NewString()
	tx.CreatedAt = now
	if tx.DebtorName == "" {
		tx.DebtorName = s.debtors[i].Name
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	// Both writes happen under one lock hold: the log append and the cached
	// balance never diverge in this backend.
	switch w.Op {
	case store.BalanceIncrement:
		s.debtors[i].TotalDebt += w.Value
	case store.BalanceSet:
		s.debtors[i].TotalDebt = w.Value
	}
	s.debtors[i].UpdatedAt = now
	s.txs = append(s.txs, tx)

	s.notifyLocked(tx.OwnerID, tx.DebtorID)
	return tx, nil
}

func (s *Store) DeleteDebtor(_ context.Context, ownerID, debtorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(ownerID, debtorID)
	if i < 0 {
		return store.ErrDebtorNotFound
	}

	s.debtors = append(s.debtors[:i], s.debtors[i+1:]...)
	kept := s.txs[:0]
	for _, tx := range s.txs {
		if tx.DebtorID != debtorID {
			kept = append(kept, tx)
		}
	}
	s.txs = kept

	s.notifyLocked(ownerID, debtorID)
	return nil
}

func (s *Store) GetDebtor(_ context.Context, ownerID, debtorID string) (core.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(ownerID, debtorID)
	if i < 0 {
		return core.Debtor{}, store.ErrDebtorNotFound
	}
	return s.debtors[i], nil
}

func (s *Store) ListDebtors(_ context.Context, ownerID string) ([]core.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debtorSnapshotLocked(ownerID), nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID, debtorID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txSnapshotLocked(ownerID, debtorID), nil
}

func (s *Store) ListAllTransactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txSnapshotLocked(ownerID, ""), nil
}

func (s *Store) WatchDebtors(_ context.Context, ownerID string) (<-chan []core.Debtor, store.CancelFunc, error) {
	ch, cancel := s.debtorHub.Subscribe(ownerID)
	s.mu.Lock()
	store.Offer(ch, s.debtorSnapshotLocked(ownerID))
	s.mu.Unlock()
	return ch, cancel, nil
}

func (s *Store) WatchTransactions(_ context.Context, ownerID, debtorID string) (<-chan []core.Transaction, store.CancelFunc, error) {
	ch, cancel := s.txHub.Subscribe(txKey(ownerID, debtorID))
	s.mu.Lock()
	store.Offer(ch, s.txSnapshotLocked(ownerID, debtorID))
	s.mu.Unlock()
	return ch, cancel, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return core.User{}, store.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := s.users[key]; ok {
		return core.User{}, store.ErrUserExists
	}
	u.ID = uuid.NewString()
	u.CreatedAt = s.now()
	u.LastLogin = u.CreatedAt
	s.users[key] = u
	return u, nil
}

func (s *Store) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, u := range s.users {
		if u.ID == userID {
			u.LastLogin = at
			s.users[key] = u
			return nil
		}
	}
	return store.ErrUserNotFound
}

func (s *Store) indexLocked(ownerID, debtorID string) int {
	for i, d := range s.debtors {
		if d.OwnerID == ownerID && d.ID == debtorID {
			return i
		}
	}
	return -1
}

// debtorSnapshotLocked returns the owner's debtors, most recently written
// first.
func (s *Store) debtorSnapshotLocked(ownerID string) []core.Debtor {
	out := make([]core.Debtor, 0)
	for _, d := range s.debtors {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// txSnapshotLocked returns matching transactions newest first. Empty
// debtorID matches the owner's whole log.
func (s *Store) txSnapshotLocked(ownerID, debtorID string) []core.Transaction {
	out := make([]core.Transaction, 0)
	for i := len(s.txs) - 1; i >= 0; i-- {
		tx := s.txs[i]
		if tx.OwnerID != ownerID {
			continue
		}
		if debtorID != "" && tx.DebtorID != debtorID {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func (s *Store) notifyLocked(ownerID, debtorID string) {
	s.debtorHub.Publish(ownerID, s.debtorSnapshotLocked(ownerID))
	s.txHub.Publish(txKey(ownerID, debtorID), s.txSnapshotLocked(ownerID, debtorID))
	s.txHub.Publish(txKey(ownerID, ""), s.txSnapshotLocked(ownerID, ""))
}

func txKey(ownerID, debtorID string) string {
	return ownerID + "/" + debtorID
}
