// Package ledger implements the debt-ledger operations on top of a store.
//
// Every operation takes the caller's session and only ever touches documents
// owned by that session's user. Writes go to the store first; the matching
// event is published afterwards on a best-effort basis, so a broker outage
// never loses a recorded transaction.
package ledger

import (
	"context"
	"log/slog"

	"utangku/internal/auth"
	"utangku/internal/core"
	"utangku/internal/store"
)

type (
	// EventPublisher fans ledger writes out to interested consumers. A nil
	// publisher disables events.
	EventPublisher interface {
		PublishTransactionRecorded(ctx context.Context, tx core.Transaction) error
		PublishDebtorDeleted(ctx context.Context, ownerID, debtorID, name string) error
	}

	// NewDebtor carries the client-supplied fields of a debtor creation.
	// The photo must already be encoded; InitialDebt becomes the first
	// transaction in the debtor's log.
	NewDebtor struct {
		Name        string
		Nickname    string
		Phone       string
		PhotoBase64 string
		InitialDebt int64
		Note        string
	}

	// Detail is one debtor together with its full log. ActualBalance is
	// recomputed from the log and may be compared against the cached
	// Debtor.TotalDebt.
	Detail struct {
		Debtor        core.Debtor
		Transactions  []core.Transaction
		ActualBalance int64
	}

	Service struct {
		store  store.Store
		events EventPublisher
		logger *slog.Logger
	}
)

func NewService(st store.Store, events EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, events: events, logger: logger}
}

// CreateDebtor registers a new debtor and writes the opening debt as the
// first entry of their transaction log.
func (s *Service) CreateDebtor(ctx context.Context, sess auth.Session, in NewDebtor) (core.Debtor, error) {
	d := core.Debtor{
		OwnerID:     sess.UserID,
		Name:        in.Name,
		Nickname:    in.Nickname,
		Phone:       in.Phone,
		PhotoBase64: in.PhotoBase64,
		TotalDebt:   in.InitialDebt,
	}
	first := core.Transaction{
		OwnerID: sess.UserID,
		Amount:  in.InitialDebt,
		Type:    core.TypeDebt,
		Note:    in.Note,
	}

	d, tx, err := s.store.CreateDebtor(ctx, d, first)
	if err != nil {
		return core.Debtor{}, err
	}
	s.publishRecorded(ctx, tx)
	return d, nil
}

// AddDebt appends a debt transaction and raises the debtor's balance.
func (s *Service) AddDebt(ctx context.Context, sess auth.Session, debtorID string, amount int64, note string) (core.Transaction, error) {
	if amount <= 0 {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	tx, err := s.store.Record(ctx, store.LedgerWrite{
		Transaction: core.Transaction{
			OwnerID:  sess.UserID,
			DebtorID: debtorID,
			Amount:   amount,
			Type:     core.TypeDebt,
			Note:     note,
		},
		Op:    store.BalanceIncrement,
		Value: amount,
	})
	if err != nil {
		return core.Transaction{}, err
	}
	s.publishRecorded(ctx, tx)
	return tx, nil
}

// FullPayment settles the debtor's entire outstanding balance with a single
// payment transaction.
func (s *Service) FullPayment(ctx context.Context, sess auth.Session, debtorID, note string) (core.Transaction, error) {
	d, err := s.store.GetDebtor(ctx, sess.UserID, debtorID)
	if err != nil {
		return core.Transaction{}, err
	}
	if d.TotalDebt <= 0 {
		return core.Transaction{}, core.ErrNothingToSettle
	}
	tx, err := s.store.Record(ctx, store.LedgerWrite{
		Transaction: core.Transaction{
			OwnerID:  sess.UserID,
			DebtorID: debtorID,
			Amount:   d.TotalDebt,
			Type:     core.TypePayment,
			Note:     note,
		},
		Op:    store.BalanceSet,
		Value: 0,
	})
	if err != nil {
		return core.Transaction{}, err
	}
	s.publishRecorded(ctx, tx)
	return tx, nil
}

// PartialPayment records a payment smaller than or equal to the outstanding
// balance. Paying the exact balance settles the debtor the same way
// FullPayment does.
func (s *Service) PartialPayment(ctx context.Context, sess auth.Session, debtorID string, amount int64, note string) (core.Transaction, error) {
	if amount <= 0 {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	d, err := s.store.GetDebtor(ctx, sess.UserID, debtorID)
	if err != nil {
		return core.Transaction{}, err
	}
	if amount > d.TotalDebt {
		return core.Transaction{}, core.ErrPaymentTooLarge
	}
	remaining := d.TotalDebt - amount
	if remaining < 0 {
		remaining = 0
	}
	tx, err := s.store.Record(ctx, store.LedgerWrite{
		Transaction: core.Transaction{
			OwnerID:  sess.UserID,
			DebtorID: debtorID,
			Amount:   amount,
			Type:     core.TypePayment,
			Note:     note,
		},
		Op:    store.BalanceSet,
		Value: remaining,
	})
	if err != nil {
		return core.Transaction{}, err
	}
	s.publishRecorded(ctx, tx)
	return tx, nil
}

// DeleteDebtor removes the debtor and their whole transaction log.
func (s *Service) DeleteDebtor(ctx context.Context, sess auth.Session, debtorID string) error {
	d, err := s.store.GetDebtor(ctx, sess.UserID, debtorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDebtor(ctx, sess.UserID, debtorID); err != nil {
		return err
	}
	if s.events != nil {
		if err := s.events.PublishDebtorDeleted(ctx, sess.UserID, debtorID, d.Name); err != nil {
			s.logger.Warn("publish debtor deleted", "debtor_id", debtorID, "error", err)
		}
	}
	return nil
}

func (s *Service) ListDebtors(ctx context.Context, sess auth.Session) ([]core.Debtor, error) {
	return s.store.ListDebtors(ctx, sess.UserID)
}

func (s *Service) GetDebtor(ctx context.Context, sess auth.Session, debtorID string) (core.Debtor, error) {
	return s.store.GetDebtor(ctx, sess.UserID, debtorID)
}

// DebtorDetail loads one debtor with their log and the balance recomputed
// from it.
func (s *Service) DebtorDetail(ctx context.Context, sess auth.Session, debtorID string) (Detail, error) {
	d, err := s.store.GetDebtor(ctx, sess.UserID, debtorID)
	if err != nil {
		return Detail{}, err
	}
	txs, err := s.store.ListTransactions(ctx, sess.UserID, debtorID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		Debtor:        d,
		Transactions:  txs,
		ActualBalance: core.ComputeActualBalance(txs),
	}, nil
}

func (s *Service) ListAllTransactions(ctx context.Context, sess auth.Session) ([]core.Transaction, error) {
	return s.store.ListAllTransactions(ctx, sess.UserID)
}

// Recap aggregates the owner's whole ledger into recap totals plus the list
// of debtors still owing.
func (s *Service) Recap(ctx context.Context, sess auth.Session) (core.Recap, error) {
	txs, err := s.store.ListAllTransactions(ctx, sess.UserID)
	if err != nil {
		return core.Recap{}, err
	}
	debtors, err := s.store.ListDebtors(ctx, sess.UserID)
	if err != nil {
		return core.Recap{}, err
	}

	var r core.Recap
	for _, tx := range txs {
		switch tx.Type {
		case core.TypeDebt:
			r.TotalDebt += tx.Amount
		case core.TypePayment:
			r.TotalPaid += tx.Amount
		}
	}
	r.Outstanding = r.TotalDebt - r.TotalPaid
	for _, d := range debtors {
		if d.State() == core.StateOwing {
			r.Unsettled = append(r.Unsettled, core.DebtorRecap{
				DebtorID:  d.ID,
				Name:      d.Name,
				TotalDebt: d.TotalDebt,
			})
		}
	}
	return r, nil
}

func (s *Service) publishRecorded(ctx context.Context, tx core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionRecorded(ctx, tx); err != nil {
		s.logger.Warn("publish transaction recorded",
			"transaction_id", tx.ID, "debtor_id", tx.DebtorID, "error", err)
	}
}
