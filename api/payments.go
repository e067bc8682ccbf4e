package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helpcomp/teller-dashboard/forecast"
	"github.com/helpcomp/teller-dashboard/httperror"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/shopspring/decimal"
)

type paymentJSON struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Amount      forecast.Money `json:"amount"`
	AccountID   string         `json:"account_id,omitempty"`
	DayOfMonth  int            `json:"day_of_month"`
	Month       int            `json:"month,omitempty"`
	DueDate     string         `json:"due_date,omitempty"`
	IsActive    bool           `json:"is_active"`
	IsRecurring bool           `json:"is_recurring"`
	Frequency   string         `json:"frequency"`
	Email       string         `json:"email,omitempty"`
	Category    string         `json:"category,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func newPaymentJSON(p store.ScheduledPayment) paymentJSON {
	out := paymentJSON{
		ID:          p.ID,
		Name:        p.Name,
		Amount:      forecast.Money(p.Amount),
		AccountID:   p.AccountID,
		DayOfMonth:  p.DayOfMonth,
		Month:       p.Month,
		IsActive:    p.IsActive,
		IsRecurring: p.IsRecurring,
		Frequency:   p.Frequency,
		Email:       p.Email,
		Category:    p.Category,
		Notes:       p.Notes,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.DueDate != nil {
		out.DueDate = p.DueDate.Format(time.DateOnly)
	}
	return out
}

// paymentRequest is the body of create and update calls. Absent fields keep
// their current value on update.
type paymentRequest struct {
	Name        *string          `json:"name"`
	Amount      *decimal.Decimal `json:"amount"`
	AccountID   *string          `json:"account_id"`
	DayOfMonth  *int             `json:"day_of_month"`
	Month       *int             `json:"month"`
	DueDate     *string          `json:"due_date"`
	IsRecurring *bool            `json:"is_recurring"`
	Frequency   *string          `json:"frequency"`
	Email       *string          `json:"email"`
	Category    *string          `json:"category"`
	Notes       *string          `json:"notes"`
}

func (req paymentRequest) apply(p *store.ScheduledPayment) error {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Amount != nil {
		p.Amount = *req.Amount
	}
	if req.AccountID != nil {
		p.AccountID = *req.AccountID
	}
	if req.DayOfMonth != nil {
		p.DayOfMonth = *req.DayOfMonth
	}
	if req.Month != nil {
		p.Month = *req.Month
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			p.DueDate = nil
		} else {
			d, err := time.Parse(time.DateOnly, *req.DueDate)
			if err != nil {
				return errors.New("due_date must be YYYY-MM-DD")
			}
			p.DueDate = &d
		}
	}
	if req.IsRecurring != nil {
		p.IsRecurring = *req.IsRecurring
	}
	if req.Frequency != nil {
		p.Frequency = *req.Frequency
	}
	if req.Email != nil {
		p.Email = *req.Email
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Notes != nil {
		p.Notes = *req.Notes
	}
	return nil
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.store.ListActivePayments(r.Context())
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load scheduled payments", err)
		return
	}
	out := make([]paymentJSON, 0, len(payments))
	for _, p := range payments {
		out = append(out, newPaymentJSON(p))
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"payments": out,
		"count":    len(out),
	})
}

// decodePayment reads the body into p and validates the result. It writes a 400
// and returns false when the payment is unusable.
func (s *Server) decodePayment(w http.ResponseWriter, r *http.Request, p *store.ScheduledPayment, create bool) bool {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.Send(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if create && (req.Name == nil || req.Amount == nil || req.DayOfMonth == nil) {
		httperror.Send(w, r, http.StatusBadRequest, "Missing required fields: name, amount, day_of_month")
		return false
	}
	if err := req.apply(p); err != nil {
		httperror.Send(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	if p.Frequency == "" {
		p.Frequency = store.FrequencyMonthly
	}
	if err := p.Validate(); err != nil {
		httperror.Send(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	if p.AccountID != "" {
		_, err := s.store.GetAccount(r.Context(), p.AccountID)
		if errors.Is(err, store.ErrNotFound) {
			httperror.Send(w, r, http.StatusBadRequest, "unknown account_id "+p.AccountID)
			return false
		}
		if err != nil {
			httperror.SendError(w, r, http.StatusInternalServerError, "failed to load account", err)
			return false
		}
	}
	return true
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	p := store.ScheduledPayment{IsRecurring: true}
	if !s.decodePayment(w, r, &p, true) {
		return
	}
	id, err := s.store.CreatePayment(r.Context(), p)
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to create scheduled payment", err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, map[string]any{
		"status": "success",
		"id":     id,
	})
}

func paymentID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		httperror.Send(w, r, http.StatusBadRequest, "invalid payment id")
		return
	}
	p, err := s.store.GetPayment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !p.IsActive) {
		httperror.Send(w, r, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load scheduled payment", err)
		return
	}
	if !s.decodePayment(w, r, &p, false) {
		return
	}
	err = s.store.UpdatePayment(r.Context(), p)
	if errors.Is(err, store.ErrNotFound) {
		httperror.Send(w, r, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to update scheduled payment", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Payment %d updated", id),
	})
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentID(r)
	if err != nil {
		httperror.Send(w, r, http.StatusBadRequest, "invalid payment id")
		return
	}
	err = s.store.DeactivatePayment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httperror.Send(w, r, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to delete scheduled payment", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Payment %d deleted", id),
	})
}
