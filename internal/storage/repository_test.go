package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"utangku/internal/core"
	"utangku/internal/store"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	r, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "utangku.db"), nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func seedDebtor(t *testing.T, r *SQLiteRepository, owner string) core.Debtor {
	t.Helper()
	d, _, err := r.CreateDebtor(context.Background(),
		core.Debtor{OwnerID: owner, Name: "Ibu Siti", PhotoBase64: "p", TotalDebt: 10000},
		core.Transaction{OwnerID: owner, Amount: 10000, Type: core.TypeDebt},
	)
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	return d
}

func TestCreateDebtorPersistsBothDocuments(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	d := seedDebtor(t, r, "u1")

	got, err := r.GetDebtor(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("get debtor: %v", err)
	}
	if got.Name != "Ibu Siti" || got.TotalDebt != 10000 {
		t.Fatalf("unexpected debtor: %+v", got)
	}

	txs, err := r.ListTransactions(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Amount != 10000 || txs[0].DebtorName != "Ibu Siti" {
		t.Fatalf("unexpected opening transaction: %+v", txs)
	}
}

func TestRecordAppliesBalanceOps(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	d := seedDebtor(t, r, "u1")

	if _, err := r.Record(ctx, store.LedgerWrite{
		Transaction: core.Transaction{OwnerID: "u1", DebtorID: d.ID, Amount: 5000, Type: core.TypeDebt},
		Op:          store.BalanceIncrement,
		Value:       5000,
	}); err != nil {
		t.Fatalf("record debt: %v", err)
	}
	if _, err := r.Record(ctx, store.LedgerWrite{
		Transaction: core.Transaction{OwnerID: "u1", DebtorID: d.ID, Amount: 15000, Type: core.TypePayment},
		Op:          store.BalanceSet,
		Value:       0,
	}); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	got, err := r.GetDebtor(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("get debtor: %v", err)
	}
	if got.TotalDebt != 0 {
		t.Fatalf("expected settled debtor, got %d", got.TotalDebt)
	}

	txs, err := r.ListTransactions(ctx, "u1", d.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	// Newest first.
	if txs[0].Type != core.TypePayment || txs[0].Amount != 15000 {
		t.Fatalf("unexpected newest transaction: %+v", txs[0])
	}
	if core.ComputeActualBalance(txs) != 0 {
		t.Fatalf("log disagrees with balance")
	}
}

func TestRecordUnknownDebtor(t *testing.T) {
	r := newRepo(t)
	if _, err := r.Record(context.Background(), store.LedgerWrite{
		Transaction: core.Transaction{OwnerID: "u1", DebtorID: "missing", Amount: 1, Type: core.TypeDebt},
		Op:          store.BalanceIncrement,
		Value:       1,
	}); !errors.Is(err, store.ErrDebtorNotFound) {
		t.Fatalf("expected ErrDebtorNotFound, got %v", err)
	}
}

func TestDeleteDebtorCascades(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	d := seedDebtor(t, r, "u1")

	if err := r.DeleteDebtor(ctx, "u1", d.ID); err != nil {
		t.Fatalf("delete debtor: %v", err)
	}
	if _, err := r.GetDebtor(ctx, "u1", d.ID); !errors.Is(err, store.ErrDebtorNotFound) {
		t.Fatalf("expected ErrDebtorNotFound, got %v", err)
	}
	all, err := r.ListAllTransactions(ctx, "u1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("cascade left %d transactions", len(all))
	}
	if err := r.DeleteDebtor(ctx, "u1", d.ID); !errors.Is(err, store.ErrDebtorNotFound) {
		t.Fatalf("expected ErrDebtorNotFound on second delete, got %v", err)
	}
}

func TestWatchDebtorsDeliversSnapshots(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	ch, cancel, err := r.WatchDebtors(ctx, "u1")
	if err != nil {
		t.Fatalf("watch debtors: %v", err)
	}
	defer cancel()

	if snap := <-ch; len(snap) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(snap))
	}

	d := seedDebtor(t, r, "u1")
	snap := <-ch
	if len(snap) != 1 || snap[0].ID != d.ID {
		t.Fatalf("unexpected snapshot after create: %+v", snap)
	}
}

func TestUserStoreRoundTrip(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	u, err := r.CreateUser(ctx, core.User{Email: "Toko@Example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := r.CreateUser(ctx, core.User{Email: "toko@example.com", PasswordHash: "h"}); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	got, err := r.GetUserByEmail(ctx, "TOKO@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("lookup returned wrong user: %+v", got)
	}

	later := got.LastLogin.Add(1e9)
	if err := r.TouchLastLogin(ctx, u.ID, later); err != nil {
		t.Fatalf("touch last login: %v", err)
	}
	got, err = r.GetUserByEmail(ctx, "toko@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !got.LastLogin.After(u.LastLogin) {
		t.Fatalf("last login not refreshed: %v", got.LastLogin)
	}
	if err := r.TouchLastLogin(ctx, "missing", later); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestOwnerScoping(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	d := seedDebtor(t, r, "u1")

	if _, err := r.GetDebtor(ctx, "u2", d.ID); !errors.Is(err, store.ErrDebtorNotFound) {
		t.Fatalf("expected ErrDebtorNotFound for other owner, got %v", err)
	}
	debtors, err := r.ListDebtors(ctx, "u2")
	if err != nil {
		t.Fatalf("list debtors: %v", err)
	}
	if len(debtors) != 0 {
		t.Fatalf("other owner sees %d debtors", len(debtors))
	}
}
