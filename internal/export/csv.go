package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"utangku/internal/core"
)

// WriteRecapCSV writes the recap totals followed by the whole transaction log,
// newest first, amounts formatted as whole rupiah.
func WriteRecapCSV(w io.Writer, recap core.Recap, txs []core.Transaction) error {
	cw := csv.NewWriter(w)

	summary := [][]string{
		{"Total Hutang", core.FormatRupiah(recap.TotalDebt)},
		{"Total Dibayar", core.FormatRupiah(recap.TotalPaid)},
		{"Sisa Hutang", core.FormatRupiah(recap.Outstanding)},
		{},
	}
	for _, row := range summary {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	if err := cw.Write([]string{"Tanggal", "Nama", "Jenis", "Jumlah", "Catatan"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, tx := range txs {
		row := []string{
			tx.CreatedAt.Format(time.RFC3339),
			tx.DebtorName,
			string(tx.Type),
			core.FormatRupiah(tx.Amount),
			tx.Note,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write transaction row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
