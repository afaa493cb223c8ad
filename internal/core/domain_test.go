package core

import "testing"

func TestDebtorValidate(t *testing.T) {
	good := Debtor{
		OwnerID:     "u1",
		Name:        "Ibu Siti",
		PhotoBase64: "data:image/jpeg;base64,xxx",
		TotalDebt:   5000,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Debtor{
		{Name: "a", PhotoBase64: "p"},                                 // no owner
		{OwnerID: "u1", Name: "  ", PhotoBase64: "p"},                 // blank name
		{OwnerID: "u1", Name: "a"},                                    // no photo
		{OwnerID: "u1", Name: "a", PhotoBase64: "p", TotalDebt: -100}, // negative cache
	}
	for i, d := range bads {
		if err := d.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{OwnerID: "u1", DebtorID: "d1", Amount: 100, Type: TypeDebt}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{DebtorID: "d1", Amount: 1, Type: TypeDebt},
		{OwnerID: "u1", Amount: 1, Type: TypeDebt},
		{OwnerID: "u1", DebtorID: "d1", Amount: 0, Type: TypeDebt},
		{OwnerID: "u1", DebtorID: "d1", Amount: -5, Type: TypePayment},
		{OwnerID: "u1", DebtorID: "d1", Amount: 1, Type: "refund"},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDebtorState(t *testing.T) {
	if (Debtor{TotalDebt: 0}).State() != StateSettled {
		t.Fatal("zero balance should be settled")
	}
	if (Debtor{TotalDebt: 1}).State() != StateOwing {
		t.Fatal("positive balance should be owing")
	}
}

func TestComputeActualBalance(t *testing.T) {
	txs := []Transaction{
		{Type: TypeDebt, Amount: 10000},
		{Type: TypeDebt, Amount: 5000},
		{Type: TypePayment, Amount: 4000},
	}
	if got := ComputeActualBalance(txs); got != 11000 {
		t.Fatalf("expected 11000, got %d", got)
	}
	if got := ComputeActualBalance(nil); got != 0 {
		t.Fatalf("expected 0 for empty log, got %d", got)
	}
}
