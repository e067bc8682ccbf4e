package store

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
	FrequencyOneTime = "one-time"

	StatusPending = "pending"
	StatusPosted  = "posted"
)

// Account is a bank or credit card account mirrored from the provider.
type Account struct {
	ID              string
	EnrollmentID    string
	Name            string
	DisplayName     string // user supplied, never touched by sync
	Type            string
	Subtype         string
	InstitutionName string
	LastFour        string
	Currency        string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Balance is one point-in-time snapshot of an account's balances.
type Balance struct {
	ID        int64
	AccountID string
	Available decimal.Decimal
	Ledger    decimal.Decimal
	Timestamp time.Time
}

type Transaction struct {
	ID           string
	AccountID    string
	Amount       decimal.Decimal
	Date         time.Time
	Description  string
	Category     string
	Counterparty string
	Type         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t Transaction) Pending() bool { return t.Status == StatusPending }

// ScheduledPayment is a bill or subscription the user expects to pay.
type ScheduledPayment struct {
	ID          int64
	Name        string
	Amount      decimal.Decimal
	AccountID   string
	DayOfMonth  int
	Month       int        // yearly payments only, 0 means the creation month
	DueDate     *time.Time // one-time payments only
	IsActive    bool
	IsRecurring bool
	Frequency   string
	Email       string
	Category    string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enrollment links a user to a provider access token.
type Enrollment struct {
	ID              int64
	EnrollmentID    string
	UserID          string
	AccessToken     string
	InstitutionName string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSynced      *time.Time
	IsActive        bool
}

type SyncRun struct {
	ID                  string
	EnrollmentID        string
	StartedAt           time.Time
	FinishedAt          *time.Time
	Status              string
	Accounts            int
	Balances            int
	TransactionsAdded   int
	TransactionsUpdated int
	TransactionsRemoved int
	Error               string
}

const (
	SyncRunning = "running"
	SyncSuccess = "success"
	SyncFailed  = "failed"
)
