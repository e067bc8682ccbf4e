package api

import (
	"net/http"
	"time"

	"github.com/helpcomp/teller-dashboard/forecast"
	"github.com/helpcomp/teller-dashboard/httperror"
	"github.com/helpcomp/teller-dashboard/store"
)

type transactionJSON struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"account_id"`
	Amount       forecast.Money `json:"amount"`
	Date         string         `json:"date"`
	Description  string         `json:"description"`
	Category     string         `json:"category"`
	Counterparty string         `json:"counterparty"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
}

func newTransactionsJSON(txns []store.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txns))
	for _, t := range txns {
		out = append(out, transactionJSON{
			ID:           t.ID,
			AccountID:    t.AccountID,
			Amount:       forecast.Money(t.Amount),
			Date:         t.Date.Format(time.DateOnly),
			Description:  t.Description,
			Category:     t.Category,
			Counterparty: t.Counterparty,
			Type:         t.Type,
			Status:       t.Status,
		})
	}
	return out
}

func (s *Server) handleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", store.DefaultTransactionLimit)
	if err != nil || limit <= 0 {
		httperror.Send(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	txns, err := s.store.ListTransactions(r.Context(), store.TransactionFilter{AccountID: a.ID, Limit: limit})
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load transactions", err)
		return
	}
	out := newTransactionsJSON(txns)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"account_id":   a.ID,
		"transactions": out,
		"count":        len(out),
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TransactionFilter{
		AccountID: q.Get("account_id"),
		Status:    q.Get("status"),
	}
	var err error
	if f.Limit, err = intParam(r, "limit", store.DefaultTransactionLimit); err != nil || f.Limit <= 0 {
		httperror.Send(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if f.Start, err = dateParam(r, "start"); err != nil {
		httperror.Send(w, r, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	if f.End, err = dateParam(r, "end"); err != nil {
		httperror.Send(w, r, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}
	switch f.Status {
	case "", store.StatusPending, store.StatusPosted:
	default:
		httperror.Send(w, r, http.StatusBadRequest, "status must be pending or posted")
		return
	}

	txns, err := s.store.ListTransactions(r.Context(), f)
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load transactions", err)
		return
	}
	out := newTransactionsJSON(txns)
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"transactions": out,
		"count":        len(out),
	})
}

func dateParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, v)
}
