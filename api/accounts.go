package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helpcomp/teller-dashboard/forecast"
	"github.com/helpcomp/teller-dashboard/httperror"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/shopspring/decimal"
)

type balanceJSON struct {
	AccountID string         `json:"account_id"`
	Available forecast.Money `json:"available"`
	Ledger    forecast.Money `json:"ledger"`
	Timestamp time.Time      `json:"timestamp"`
}

type accountJSON struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	DisplayName     string         `json:"display_name"`
	Type            string         `json:"type"`
	Subtype         string         `json:"subtype"`
	InstitutionName string         `json:"institution_name"`
	LastFour        string         `json:"last_four"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	EnrollmentID    string         `json:"enrollment_id"`
	CurrentBalance  forecast.Money `json:"current_balance"`
	Balance         *balanceJSON   `json:"balance"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func newBalanceJSON(b store.Balance) *balanceJSON {
	return &balanceJSON{
		AccountID: b.AccountID,
		Available: forecast.Money(b.Available),
		Ledger:    forecast.Money(b.Ledger),
		Timestamp: b.Timestamp,
	}
}

// newAccountJSON reports the ledger balance as current_balance, zero when none is recorded.
func newAccountJSON(a store.Account, b *store.Balance) accountJSON {
	out := accountJSON{
		ID:              a.ID,
		Name:            a.Name,
		DisplayName:     a.DisplayName,
		Type:            a.Type,
		Subtype:         a.Subtype,
		InstitutionName: a.InstitutionName,
		LastFour:        a.LastFour,
		Currency:        a.Currency,
		Status:          a.Status,
		EnrollmentID:    a.EnrollmentID,
		CurrentBalance:  forecast.Money(decimal.Zero),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if b != nil {
		out.Balance = newBalanceJSON(*b)
		out.CurrentBalance = forecast.Money(b.Ledger)
	}
	return out
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load accounts", err)
		return
	}
	latest, err := s.store.LatestBalances(r.Context())
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load balances", err)
		return
	}

	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		var bp *store.Balance
		if b, ok := latest[a.ID]; ok {
			bp = &b
		}
		out = append(out, newAccountJSON(a, bp))
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"accounts": out})
}

// account loads the {id} account or writes a 404.
func (s *Server) account(w http.ResponseWriter, r *http.Request) (store.Account, bool) {
	a, err := s.store.GetAccount(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		httperror.Send(w, r, http.StatusNotFound, "Account not found")
		return store.Account{}, false
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load account", err)
		return store.Account{}, false
	}
	return a, true
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	var bp *store.Balance
	b, err := s.store.LatestBalance(r.Context(), a.ID)
	switch {
	case err == nil:
		bp = &b
	case !errors.Is(err, store.ErrNotFound):
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load balance", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, newAccountJSON(a, bp))
}

func (s *Server) handleDisplayName(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httperror.Send(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id := r.PathValue("id")
	name := strings.TrimSpace(body.DisplayName)
	err := s.store.SetDisplayName(r.Context(), id, name)
	if errors.Is(err, store.ErrNotFound) {
		httperror.Send(w, r, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to update display name", err)
		return
	}
	var display any
	if name != "" {
		display = name
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":       "success",
		"account_id":   id,
		"display_name": display,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	b, err := s.store.LatestBalance(r.Context(), a.ID)
	if errors.Is(err, store.ErrNotFound) {
		httperror.Send(w, r, http.StatusNotFound, "No balance recorded for account")
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load balance", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, newBalanceJSON(b))
}

func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30)
	if err != nil || days <= 0 {
		httperror.Send(w, r, http.StatusBadRequest, "days must be a positive integer")
		return
	}
	a, ok := s.account(w, r)
	if !ok {
		return
	}
	history, err := s.store.BalanceHistory(r.Context(), a.ID, s.now().AddDate(0, 0, -days))
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load balance history", err)
		return
	}
	out := make([]*balanceJSON, 0, len(history))
	for _, b := range history {
		out = append(out, newBalanceJSON(b))
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"account_id": a.ID,
		"days":       days,
		"balances":   out,
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
