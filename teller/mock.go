package teller

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Mock serves fixed accounts and generated transactions without network access.
type Mock struct {
	Now func() time.Time

	accounts []Account
	balances map[string]Balance
}

type mockTemplate struct {
	description string
	amount      string
	category    string
}

var mockTemplates = []mockTemplate{
	{"Amazon.com", "-45.99", "shopping"},
	{"Grocery Store", "-123.45", "groceries"},
	{"Gas Station", "-52.30", "fuel"},
	{"Coffee Shop", "-5.75", "dining"},
	{"Salary Deposit", "3500.00", "income"},
	{"Utility Bill", "-125.00", "utilities"},
	{"Netflix", "-15.99", "entertainment"},
	{"Restaurant", "-67.50", "dining"},
	{"Online Shopping", "-89.99", "shopping"},
	{"ATM Withdrawal", "-100.00", ""},
}

func NewMock() *Mock {
	return &Mock{
		Now: time.Now,
		accounts: []Account{
			{
				ID: "acc_mock_checking_001", EnrollmentID: "enr_mock_001", Name: "Primary Checking",
				Type: "depository", Subtype: "checking", Currency: "USD", Status: "open", LastFour: "1234",
				Institution: Institution{ID: "mock_bank", Name: "Mock Bank"},
			},
			{
				ID: "acc_mock_savings_001", EnrollmentID: "enr_mock_001", Name: "Savings Account",
				Type: "depository", Subtype: "savings", Currency: "USD", Status: "open", LastFour: "5678",
				Institution: Institution{ID: "mock_bank", Name: "Mock Bank"},
			},
			{
				ID: "acc_mock_credit_001", EnrollmentID: "enr_mock_001", Name: "Credit Card",
				Type: "credit", Subtype: "credit_card", Currency: "USD", Status: "open", LastFour: "9012",
				Institution: Institution{ID: "mock_credit_union", Name: "Mock Credit Union"},
			},
		},
		balances: map[string]Balance{
			"acc_mock_checking_001": {Available: decimal.RequireFromString("2543.50"), Ledger: decimal.RequireFromString("2543.50")},
			"acc_mock_savings_001":  {Available: decimal.RequireFromString("15230.75"), Ledger: decimal.RequireFromString("15230.75")},
			"acc_mock_credit_001":   {Available: decimal.RequireFromString("-1250.00"), Ledger: decimal.RequireFromString("-1250.00")},
		},
	}
}

func (m *Mock) Accounts(context.Context) ([]Account, error) {
	out := make([]Account, len(m.accounts))
	copy(out, m.accounts)
	return out, nil
}

func (m *Mock) Account(_ context.Context, accountID string) (Account, error) {
	for _, a := range m.accounts {
		if a.ID == accountID {
			return a, nil
		}
	}
	return Account{}, &APIError{StatusCode: 404, Status: "404 Not Found", Body: fmt.Sprintf("account %s not found", accountID)}
}

func (m *Mock) Balances(_ context.Context, accountID string) (Balance, error) {
	b, ok := m.balances[accountID]
	if !ok {
		return Balance{AccountID: accountID, Available: decimal.Zero, Ledger: decimal.Zero}, nil
	}
	b.AccountID = accountID
	return b, nil
}

// Transactions generates up to 50 daily transactions ending today; the newest is pending.
func (m *Mock) Transactions(_ context.Context, accountID string, count int) ([]Transaction, error) {
	if count <= 0 || count > 50 {
		count = 50
	}
	base := m.Now()
	txns := make([]Transaction, 0, count)
	for i := 0; i < count; i++ {
		tpl := mockTemplates[i%len(mockTemplates)]
		amount := decimal.RequireFromString(tpl.amount)
		t := Transaction{
			ID:          fmt.Sprintf("txn_mock_%s_%d", accountID, i),
			AccountID:   accountID,
			Amount:      amount,
			Date:        base.AddDate(0, 0, -i).Format(time.DateOnly),
			Description: tpl.description,
			Status:      "posted",
			Type:        "card_payment",
			Details:     TransactionDetails{Category: tpl.category, Counterparty: Counterparty{Name: tpl.description}},
		}
		if amount.IsPositive() {
			t.Type = "ach"
		}
		if i == 0 {
			t.Status = "pending"
		}
		txns = append(txns, t)
	}
	return txns, nil
}

func (m *Mock) AccountDetails(ctx context.Context, accountID string) (AccountDetails, error) {
	a, err := m.Account(ctx, accountID)
	if err != nil {
		return AccountDetails{}, err
	}
	return AccountDetails{
		AccountID:      a.ID,
		AccountNumber:  "000000" + a.LastFour,
		RoutingNumbers: map[string]string{"ach": "123456789"},
	}, nil
}

func (m *Mock) TestConnection(context.Context) bool { return true }
