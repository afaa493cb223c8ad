// Package worker mirrors ledger events into the export surface.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"utangku/internal/amqp"
	"utangku/internal/export"
)

// SyncWorker applies ledger events to the spreadsheet mirror. Messages carry
// the full transaction, so the worker never reads the store.
type SyncWorker struct {
	mirror export.Mirror
	logger *slog.Logger
}

func NewSyncWorker(mirror export.Mirror, logger *slog.Logger) *SyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{mirror: mirror, logger: logger}
}

// HandleTransactionRecorded mirrors one recorded transaction.
func (w *SyncWorker) HandleTransactionRecorded(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	tx := msg.Transaction()
	w.logger.InfoContext(ctx, "mirroring transaction",
		"transaction_id", tx.ID, "debtor_id", tx.DebtorID, "type", tx.Type)

	if err := w.mirror.AppendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("mirror transaction %s: %w", tx.ID, err)
	}
	return nil
}

// HandleDebtorDeleted records the removal in the mirror.
func (w *SyncWorker) HandleDebtorDeleted(ctx context.Context, msg *amqp.DebtorDeletedMessage) error {
	w.logger.InfoContext(ctx, "mirroring debtor deletion", "debtor_id", msg.DebtorID)

	if err := w.mirror.NoteDebtorDeleted(ctx, msg.DebtorID, msg.Name); err != nil {
		return fmt.Errorf("mirror deletion of %s: %w", msg.DebtorID, err)
	}
	return nil
}
