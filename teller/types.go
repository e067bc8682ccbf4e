package teller

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Account struct {
	ID           string      `json:"id"`
	EnrollmentID string      `json:"enrollment_id"`
	Name         string      `json:"name"`
	Type         string      `json:"type"`    // depository, credit
	Subtype      string      `json:"subtype"` // checking, savings, credit_card
	Currency     string      `json:"currency"`
	Status       string      `json:"status"` // open, closed
	LastFour     string      `json:"last_four"`
	Institution  Institution `json:"institution"`
}

type Balance struct {
	AccountID string          `json:"account_id"`
	Available decimal.Decimal `json:"available"`
	Ledger    decimal.Decimal `json:"ledger"`
}

type Counterparty struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TransactionDetails struct {
	Category         string       `json:"category"`
	ProcessingStatus string       `json:"processing_status"`
	Counterparty     Counterparty `json:"counterparty"`
}

type Transaction struct {
	ID          string             `json:"id"`
	AccountID   string             `json:"account_id"`
	Amount      decimal.Decimal    `json:"amount"`
	Date        string             `json:"date"` // "2024-03-18"
	Description string             `json:"description"`
	Status      string             `json:"status"` // posted, pending
	Type        string             `json:"type"`   // card_payment, ach, ...
	Category    string             `json:"category,omitempty"`
	Details     TransactionDetails `json:"details"`
}

// CategoryName prefers the enriched category over the top-level field.
func (t Transaction) CategoryName() string {
	if t.Details.Category != "" {
		return t.Details.Category
	}
	return t.Category
}

type AccountDetails struct {
	AccountID      string            `json:"account_id"`
	AccountNumber  string            `json:"account_number"`
	RoutingNumbers map[string]string `json:"routing_numbers"`
}

// APIError is returned for any non-2xx response that is not retried.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("teller: %s", e.Status)
	}
	return fmt.Sprintf("teller: %s - %s", e.Status, e.Body)
}
