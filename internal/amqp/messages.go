package amqp

import (
	"encoding/json"
	"time"

	"utangku/internal/core"
)

const (
	KindTransactionRecorded = "transaction_recorded"
	KindDebtorDeleted       = "debtor_deleted"
)

// Envelope wraps every ledger event on the wire so one queue can carry both
// kinds.
type Envelope struct {
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// TransactionRecordedMessage carries the full transaction so the worker can
// mirror it without a store round-trip.
type TransactionRecordedMessage struct {
	TransactionID string    `json:"transaction_id"`
	OwnerID       string    `json:"owner_id"`
	DebtorID      string    `json:"debtor_id"`
	DebtorName    string    `json:"debtor_name"`
	Amount        int64     `json:"amount"`
	Type          string    `json:"type"`
	Note          string    `json:"note,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// DebtorDeletedMessage notes a cascade delete, so mirrors can mark the
// debtor's rows as removed.
type DebtorDeletedMessage struct {
	DebtorID string `json:"debtor_id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
}

func NewTransactionRecordedMessage(tx core.Transaction) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		TransactionID: tx.ID,
		OwnerID:       tx.OwnerID,
		DebtorID:      tx.DebtorID,
		DebtorName:    tx.DebtorName,
		Amount:        tx.Amount,
		Type:          string(tx.Type),
		Note:          tx.Note,
		RecordedAt:    tx.CreatedAt,
	}
}

// Transaction rebuilds the core value carried by the message.
func (m *TransactionRecordedMessage) Transaction() core.Transaction {
	return core.Transaction{
		ID:         m.TransactionID,
		OwnerID:    m.OwnerID,
		DebtorID:   m.DebtorID,
		DebtorName: m.DebtorName,
		Amount:     m.Amount,
		Type:       core.TransactionType(m.Type),
		Note:       m.Note,
		CreatedAt:  m.RecordedAt,
	}
}

func wrap(kind string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Timestamp: time.Now(), Payload: raw})
}

// EnvelopeFromJSON parses a wire message back into its envelope.
func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
