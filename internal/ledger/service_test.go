package ledger

import (
	"context"
	"errors"
	"testing"

	"utangku/internal/auth"
	"utangku/internal/core"
	"utangku/internal/store/memory"
)

type fakePublisher struct {
	recorded []core.Transaction
	deleted  []string
	fail     bool
}

func (f *fakePublisher) PublishTransactionRecorded(_ context.Context, tx core.Transaction) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.recorded = append(f.recorded, tx)
	return nil
}

func (f *fakePublisher) PublishDebtorDeleted(_ context.Context, _, debtorID, _ string) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.deleted = append(f.deleted, debtorID)
	return nil
}

func newService(t *testing.T) (*Service, *fakePublisher, auth.Session) {
	t.Helper()
	pub := &fakePublisher{}
	svc := NewService(memory.New(), pub, nil)
	return svc, pub, auth.Session{Token: "tok", UserID: "u1", Email: "toko@example.com"}
}

func TestCreateDebtorOpensLog(t *testing.T) {
	svc, pub, sess := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{
		Name: "Ibu Siti", PhotoBase64: "p", InitialDebt: 5000, Note: "beras",
	})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	if d.TotalDebt != 5000 {
		t.Fatalf("expected balance 5000, got %d", d.TotalDebt)
	}

	detail, err := svc.DebtorDetail(ctx, sess, d.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Transactions) != 1 {
		t.Fatalf("expected exactly one transaction, got %d", len(detail.Transactions))
	}
	first := detail.Transactions[0]
	if first.Type != core.TypeDebt || first.Amount != 5000 || first.Note != "beras" {
		t.Fatalf("unexpected opening transaction: %+v", first)
	}
	if first.DebtorName != "Ibu Siti" {
		t.Fatalf("missing name snapshot: %+v", first)
	}
	if len(pub.recorded) != 1 || pub.recorded[0].Amount != 5000 {
		t.Fatalf("opening transaction not published: %+v", pub.recorded)
	}
}

func TestDebtAndPaymentLifecycle(t *testing.T) {
	svc, _, sess := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Ibu Siti", PhotoBase64: "p", InitialDebt: 10000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	if _, err := svc.AddDebt(ctx, sess, d.ID, 5000, ""); err != nil {
		t.Fatalf("add debt: %v", err)
	}
	if _, err := svc.PartialPayment(ctx, sess, d.ID, 4000, ""); err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	full, err := svc.FullPayment(ctx, sess, d.ID, "")
	if err != nil {
		t.Fatalf("full payment: %v", err)
	}
	if full.Amount != 11000 {
		t.Fatalf("full payment should settle 11000, settled %d", full.Amount)
	}

	detail, err := svc.DebtorDetail(ctx, sess, d.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Debtor.TotalDebt != 0 {
		t.Fatalf("expected settled balance, got %d", detail.Debtor.TotalDebt)
	}
	if detail.Debtor.State() != core.StateSettled {
		t.Fatalf("expected settled state, got %v", detail.Debtor.State())
	}
	if detail.ActualBalance != 0 {
		t.Fatalf("log disagrees with balance: %d", detail.ActualBalance)
	}

	// Newest first: the full log of the whole exchange.
	want := []struct {
		typ    core.TransactionType
		amount int64
	}{
		{core.TypePayment, 11000},
		{core.TypePayment, 4000},
		{core.TypeDebt, 5000},
		{core.TypeDebt, 10000},
	}
	if len(detail.Transactions) != len(want) {
		t.Fatalf("expected %d transactions, got %d", len(want), len(detail.Transactions))
	}
	for i, w := range want {
		got := detail.Transactions[i]
		if got.Type != w.typ || got.Amount != w.amount {
			t.Fatalf("transaction %d: expected %s %d, got %s %d", i, w.typ, w.amount, got.Type, got.Amount)
		}
	}
}

func TestPartialPaymentOfExactBalanceSettles(t *testing.T) {
	svc, _, sess := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Pak Budi", PhotoBase64: "p", InitialDebt: 7000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	if _, err := svc.PartialPayment(ctx, sess, d.ID, 7000, ""); err != nil {
		t.Fatalf("partial payment of exact balance: %v", err)
	}
	got, err := svc.GetDebtor(ctx, sess, d.ID)
	if err != nil {
		t.Fatalf("get debtor: %v", err)
	}
	if got.TotalDebt != 0 || got.State() != core.StateSettled {
		t.Fatalf("exact partial payment should settle, got %+v", got)
	}
}

func TestPartialPaymentRejectsOverpay(t *testing.T) {
	svc, pub, sess := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Pak Budi", PhotoBase64: "p", InitialDebt: 3000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	published := len(pub.recorded)

	if _, err := svc.PartialPayment(ctx, sess, d.ID, 4000, ""); !errors.Is(err, core.ErrPaymentTooLarge) {
		t.Fatalf("expected ErrPaymentTooLarge, got %v", err)
	}

	detail, err := svc.DebtorDetail(ctx, sess, d.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Debtor.TotalDebt != 3000 || len(detail.Transactions) != 1 {
		t.Fatalf("rejected payment must leave no trace: %+v", detail)
	}
	if len(pub.recorded) != published {
		t.Fatal("rejected payment must not publish")
	}
}

func TestFullPaymentOnSettledDebtor(t *testing.T) {
	svc, _, sess := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Pak Budi", PhotoBase64: "p", InitialDebt: 2000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	if _, err := svc.FullPayment(ctx, sess, d.ID, ""); err != nil {
		t.Fatalf("full payment: %v", err)
	}
	if _, err := svc.FullPayment(ctx, sess, d.ID, ""); !errors.Is(err, core.ErrNothingToSettle) {
		t.Fatalf("expected ErrNothingToSettle, got %v", err)
	}
}

func TestAddDebtRejectsNonPositiveAmount(t *testing.T) {
	svc, _, sess := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Pak Budi", PhotoBase64: "p", InitialDebt: 1000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	for _, amount := range []int64{0, -500} {
		if _, err := svc.AddDebt(ctx, sess, d.ID, amount, ""); !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestDeleteDebtorRemovesLog(t *testing.T) {
	svc, pub, sess := newService(t)
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Ibu Siti", PhotoBase64: "p", InitialDebt: 9000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	if _, err := svc.AddDebt(ctx, sess, d.ID, 1000, ""); err != nil {
		t.Fatalf("add debt: %v", err)
	}
	if err := svc.DeleteDebtor(ctx, sess, d.ID); err != nil {
		t.Fatalf("delete debtor: %v", err)
	}

	all, err := svc.ListAllTransactions(ctx, sess)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty log after delete, got %d entries", len(all))
	}
	if len(pub.deleted) != 1 || pub.deleted[0] != d.ID {
		t.Fatalf("delete not published: %+v", pub.deleted)
	}
}

func TestWritesSurviveBrokerOutage(t *testing.T) {
	svc, pub, sess := newService(t)
	pub.fail = true
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Ibu Siti", PhotoBase64: "p", InitialDebt: 5000})
	if err != nil {
		t.Fatalf("create debtor despite broker outage: %v", err)
	}
	if _, err := svc.AddDebt(ctx, sess, d.ID, 1000, ""); err != nil {
		t.Fatalf("add debt despite broker outage: %v", err)
	}
	if err := svc.DeleteDebtor(ctx, sess, d.ID); err != nil {
		t.Fatalf("delete despite broker outage: %v", err)
	}
}

func TestRecapAggregatesWholeLedger(t *testing.T) {
	svc, _, sess := newService(t)
	ctx := context.Background()

	siti, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Ibu Siti", PhotoBase64: "p", InitialDebt: 10000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	budi, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Pak Budi", PhotoBase64: "p", InitialDebt: 4000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	if _, err := svc.PartialPayment(ctx, sess, siti.ID, 3000, ""); err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if _, err := svc.FullPayment(ctx, sess, budi.ID, ""); err != nil {
		t.Fatalf("full payment: %v", err)
	}

	r, err := svc.Recap(ctx, sess)
	if err != nil {
		t.Fatalf("recap: %v", err)
	}
	if r.TotalDebt != 14000 || r.TotalPaid != 7000 || r.Outstanding != 7000 {
		t.Fatalf("unexpected totals: %+v", r)
	}
	if len(r.Unsettled) != 1 || r.Unsettled[0].DebtorID != siti.ID || r.Unsettled[0].TotalDebt != 7000 {
		t.Fatalf("unexpected unsettled list: %+v", r.Unsettled)
	}
}

func TestOwnerIsolation(t *testing.T) {
	svc, _, sess := newService(t)
	other := auth.Session{Token: "tok2", UserID: "u2", Email: "lain@example.com"}
	ctx := context.Background()

	d, err := svc.CreateDebtor(ctx, sess, NewDebtor{Name: "Ibu Siti", PhotoBase64: "p", InitialDebt: 5000})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	if _, err := svc.GetDebtor(ctx, other, d.ID); err == nil {
		t.Fatal("other owner must not see the debtor")
	}
	if _, err := svc.FullPayment(ctx, other, d.ID, ""); err == nil {
		t.Fatal("other owner must not settle the debtor")
	}
	debtors, err := svc.ListDebtors(ctx, other)
	if err != nil {
		t.Fatalf("list debtors: %v", err)
	}
	if len(debtors) != 0 {
		t.Fatalf("other owner sees %d debtors", len(debtors))
	}
}
