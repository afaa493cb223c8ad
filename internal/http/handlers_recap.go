package http

import (
	"net/http"

	"utangku/internal/auth"
	"utangku/internal/core"
	"utangku/internal/export"
)

type recapResponse struct {
	TotalDebt            int64             `json:"total_debt"`
	TotalDebtFormatted   string            `json:"total_debt_formatted"`
	TotalPaid            int64             `json:"total_paid"`
	TotalPaidFormatted   string            `json:"total_paid_formatted"`
	Outstanding          int64             `json:"outstanding"`
	OutstandingFormatted string            `json:"outstanding_formatted"`
	Unsettled            []unsettledDebtor `json:"unsettled"`
}

type unsettledDebtor struct {
	DebtorID  string `json:"debtor_id"`
	Name      string `json:"name"`
	TotalDebt int64  `json:"total_debt"`
	Formatted string `json:"total_debt_formatted"`
}

func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	recap, ok := s.recapCache.Get(sess.UserID)
	if !ok {
		var err error
		recap, err = s.ledger.Recap(r.Context(), sess)
		if err != nil {
			respondError(w, r, err)
			return
		}
		s.recapCache.Set(sess.UserID, recap)
	}

	out := recapResponse{
		TotalDebt:            recap.TotalDebt,
		TotalDebtFormatted:   core.FormatRupiah(recap.TotalDebt),
		TotalPaid:            recap.TotalPaid,
		TotalPaidFormatted:   core.FormatRupiah(recap.TotalPaid),
		Outstanding:          recap.Outstanding,
		OutstandingFormatted: core.FormatRupiah(recap.Outstanding),
		Unsettled:            make([]unsettledDebtor, len(recap.Unsettled)),
	}
	for i, d := range recap.Unsettled {
		out.Unsettled[i] = unsettledDebtor{
			DebtorID:  d.DebtorID,
			Name:      d.Name,
			TotalDebt: d.TotalDebt,
			Formatted: core.FormatRupiah(d.TotalDebt),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	recap, err := s.ledger.Recap(r.Context(), sess)
	if err != nil {
		respondError(w, r, err)
		return
	}
	txs, err := s.ledger.ListAllTransactions(r.Context(), sess)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="recap.csv"`)
	if err := export.WriteRecapCSV(w, recap, txs); err != nil {
		respondError(w, r, err)
	}
}
