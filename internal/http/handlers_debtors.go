package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"utangku/internal/auth"
	"utangku/internal/core"
	"utangku/internal/imaging"
	"utangku/internal/ledger"
)

// maxPhotoUpload caps the multipart form size for debtor creation.
const maxPhotoUpload = 10 << 20

type debtorResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nickname  string    `json:"nickname,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Photo     string    `json:"photo"`
	TotalDebt int64     `json:"total_debt"`
	Formatted string    `json:"total_debt_formatted"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID         string    `json:"id"`
	DebtorID   string    `json:"debtor_id"`
	DebtorName string    `json:"debtor_name"`
	Amount     int64     `json:"amount"`
	Formatted  string    `json:"amount_formatted"`
	Type       string    `json:"type"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type detailResponse struct {
	Debtor        debtorResponse        `json:"debtor"`
	Transactions  []transactionResponse `json:"transactions"`
	ActualBalance int64                 `json:"actual_balance"`
}

func toDebtorResponse(d core.Debtor) debtorResponse {
	return debtorResponse{
		ID:        d.ID,
		Name:      d.Name,
		Nickname:  d.Nickname,
		Phone:     d.Phone,
		Photo:     d.PhotoBase64,
		TotalDebt: d.TotalDebt,
		Formatted: core.FormatRupiah(d.TotalDebt),
		State:     string(d.State()),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:         tx.ID,
		DebtorID:   tx.DebtorID,
		DebtorName: tx.DebtorName,
		Amount:     tx.Amount,
		Formatted:  core.FormatRupiah(tx.Amount),
		Type:       string(tx.Type),
		Note:       tx.Note,
		CreatedAt:  tx.CreatedAt,
	}
}

func toTransactionResponses(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		out[i] = toTransactionResponse(tx)
	}
	return out
}

// handleCreateDebtor accepts a multipart form: name, nickname, phone, amount,
// note, and a photo file, which is recompressed before storage.
func (s *Server) handleCreateDebtor(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := r.ParseMultipartForm(maxPhotoUpload); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}

	amount, err := core.ParseAmount(strings.TrimSpace(r.FormValue("amount")))
	if err != nil {
		respondError(w, r, err)
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, r, core.ErrMissingPhoto)
		return
	}
	defer file.Close()

	photo, err := imaging.EncodePhoto(file)
	if err != nil {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	d, err := s.ledger.CreateDebtor(r.Context(), sess, ledger.NewDebtor{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Nickname:    strings.TrimSpace(r.FormValue("nickname")),
		Phone:       strings.TrimSpace(r.FormValue("phone")),
		PhotoBase64: photo,
		InitialDebt: amount,
		Note:        strings.TrimSpace(r.FormValue("note")),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.recapCache.Delete(sess.UserID)
	respondJSON(w, http.StatusCreated, toDebtorResponse(d))
}

func (s *Server) handleListDebtors(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	debtors, err := s.ledger.ListDebtors(r.Context(), sess)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]debtorResponse, len(debtors))
	for i, d := range debtors {
		out[i] = toDebtorResponse(d)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDebtorDetail(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	detail, err := s.ledger.DebtorDetail(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detailResponse{
		Debtor:        toDebtorResponse(detail.Debtor),
		Transactions:  toTransactionResponses(detail.Transactions),
		ActualBalance: detail.ActualBalance,
	})
}

func (s *Server) handleDeleteDebtor(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := s.ledger.DeleteDebtor(r.Context(), sess, r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	s.recapCache.Delete(sess.UserID)
	respondJSON(w, http.StatusNoContent, nil)
}

type amountRequest struct {
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

func (s *Server) handleAddDebt(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	amount, err := core.ParseAmount(strings.TrimSpace(req.Amount))
	if err != nil {
		respondError(w, r, err)
		return
	}

	tx, err := s.ledger.AddDebt(r.Context(), sess, r.PathValue("id"), amount, req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.recapCache.Delete(sess.UserID)
	respondJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleFullPayment(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req amountRequest
	// Body is optional for full payments; only the note is read.
	_ = json.NewDecoder(r.Body).Decode(&req)

	tx, err := s.ledger.FullPayment(r.Context(), sess, r.PathValue("id"), req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.recapCache.Delete(sess.UserID)
	respondJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handlePartialPayment(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	amount, err := core.ParseAmount(strings.TrimSpace(req.Amount))
	if err != nil {
		respondError(w, r, err)
		return
	}

	tx, err := s.ledger.PartialPayment(r.Context(), sess, r.PathValue("id"), amount, req.Note)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.recapCache.Delete(sess.UserID)
	respondJSON(w, http.StatusCreated, toTransactionResponse(tx))
}
