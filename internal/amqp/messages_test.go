package amqp

import (
	"context"
	"testing"
	"time"

	"utangku/internal/core"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tx := core.Transaction{
		ID:         "t1",
		OwnerID:    "u1",
		DebtorID:   "d1",
		DebtorName: "Ibu Siti",
		Amount:     5000,
		Type:       core.TypeDebt,
		Note:       "sembako",
		CreatedAt:  time.Now(),
	}

	body, err := wrap(KindTransactionRecorded, NewTransactionRecordedMessage(tx))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	env, err := EnvelopeFromJSON(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Kind != KindTransactionRecorded {
		t.Fatalf("unexpected kind %q", env.Kind)
	}

	var recorded *TransactionRecordedMessage
	err = dispatch(context.Background(), env,
		func(_ context.Context, msg *TransactionRecordedMessage) error {
			recorded = msg
			return nil
		},
		func(_ context.Context, _ *DebtorDeletedMessage) error {
			t.Fatal("wrong handler invoked")
			return nil
		})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if recorded.TransactionID != "t1" || recorded.Amount != 5000 || recorded.Type != "debt" {
		t.Fatalf("payload mangled: %+v", recorded)
	}
}

func TestDispatchRejectsUnknownKind(t *testing.T) {
	env := &Envelope{Kind: "balance_adjusted", Payload: []byte(`{}`)}
	err := dispatch(context.Background(), env,
		func(_ context.Context, _ *TransactionRecordedMessage) error { return nil },
		func(_ context.Context, _ *DebtorDeletedMessage) error { return nil })
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestEnvelopeFromJSONRejectsGarbage(t *testing.T) {
	if _, err := EnvelopeFromJSON([]byte("not json")); err == nil {
		t.Fatal("expected error")
	}
}
