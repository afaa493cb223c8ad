// Package export renders the ledger for the outside world: CSV downloads and
// an optional spreadsheet mirror fed by the worker.
package export

import (
	"context"

	"utangku/internal/core"
)

// Mirror receives ledger events for an external copy of the books. The mirror
// is append-only; a deleted debtor is recorded as a note rather than by
// rewriting history.
type Mirror interface {
	AppendTransaction(ctx context.Context, tx core.Transaction) error
	NoteDebtorDeleted(ctx context.Context, debtorID, name string) error
}
