package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"utangku/internal/auth"
)

// handleDebtorEvents streams the owner's debtor list as SSE snapshots: the
// current state immediately, then one event per matching write.
func (s *Server) handleDebtorEvents(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	ch, cancel, err := s.watcher.WatchDebtors(r.Context(), sess.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer cancel()

	streamSSE(w, r, "debtors", func() (any, bool) {
		select {
		case <-r.Context().Done():
			return nil, false
		case snap, ok := <-ch:
			if !ok {
				return nil, false
			}
			out := make([]debtorResponse, len(snap))
			for i, d := range snap {
				out[i] = toDebtorResponse(d)
			}
			return out, true
		}
	})
}

// handleTransactionEvents streams one debtor's transaction log the same way.
func (s *Server) handleTransactionEvents(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	ch, cancel, err := s.watcher.WatchTransactions(r.Context(), sess.UserID, r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer cancel()

	streamSSE(w, r, "transactions", func() (any, bool) {
		select {
		case <-r.Context().Done():
			return nil, false
		case snap, ok := <-ch:
			if !ok {
				return nil, false
			}
			return toTransactionResponses(snap), true
		}
	})
}

// streamSSE writes server-sent events until next reports no more snapshots.
func streamSSE(w http.ResponseWriter, r *http.Request, event string, next func() (any, bool)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		snapshot, ok := next()
		if !ok {
			return
		}
		payload, err := json.Marshal(snapshot)
		if err != nil {
			slog.ErrorContext(r.Context(), "encode sse snapshot", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return
		}
		flusher.Flush()
	}
}
