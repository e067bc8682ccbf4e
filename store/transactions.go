package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const transactionColumns = `id, account_id, amount, date, description, category, counterparty,
	type, status, created_at, updated_at`

// ChangeSet is the work a sync computed for one account.
type ChangeSet struct {
	Insert []Transaction
	Update []Transaction
	Delete []string
}

func (c ChangeSet) Empty() bool {
	return len(c.Insert) == 0 && len(c.Update) == 0 && len(c.Delete) == 0
}

type TransactionFilter struct {
	AccountID string
	Start     time.Time // inclusive, zero means unbounded
	End       time.Time // inclusive, zero means unbounded
	Status    string
	Limit     int
}

const DefaultTransactionLimit = 100

const Uncategorized = "Uncategorized"

// TransactionsSince indexes an account's stored transactions dated on or after since by id.
func (s *Store) TransactionsSince(ctx context.Context, accountID string, since time.Time) (map[string]Transaction, error) {
	txns, err := s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND date >= ?`, accountID, formatDate(since))
	if err != nil {
		return nil, err
	}
	index := make(map[string]Transaction, len(txns))
	for _, t := range txns {
		index[t.ID] = t
	}
	return index, nil
}

// TransactionsByID returns the stored transactions of an account among ids, keyed by id.
func (s *Store) TransactionsByID(ctx context.Context, accountID string, ids []string) (map[string]Transaction, error) {
	index := make(map[string]Transaction, len(ids))
	if len(ids) == 0 {
		return index, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, accountID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	txns, err := s.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, t := range txns {
		index[t.ID] = t
	}
	return index, nil
}

// ApplyTransactionChanges writes a ChangeSet atomically.
func (s *Store) ApplyTransactionChanges(ctx context.Context, changes ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	now := s.timestamp()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range changes.Insert {
			if err := s.upsertTransaction(ctx, tx, t, now); err != nil {
				return err
			}
		}
		for _, t := range changes.Update {
			if err := s.upsertTransaction(ctx, tx, t, now); err != nil {
				return err
			}
		}
		for _, id := range changes.Delete {
			if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM transactions WHERE id = ?`), id); err != nil {
				return fmt.Errorf("deleting transaction %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) upsertTransaction(ctx context.Context, tx *sql.Tx, t Transaction, now string) error {
	if t.Status == "" {
		t.Status = StatusPosted
	}
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO transactions
		(id, account_id, amount, date, description, category, counterparty, type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			account_id = excluded.account_id,
			amount = excluded.amount,
			date = excluded.date,
			description = excluded.description,
			category = excluded.category,
			counterparty = excluded.counterparty,
			type = excluded.type,
			status = excluded.status,
			updated_at = excluded.updated_at`),
		t.ID, t.AccountID, t.Amount, formatDate(t.Date), t.Description, t.Category,
		t.Counterparty, t.Type, t.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("writing transaction %s: %w", t.ID, err)
	}
	return nil
}

// ListTransactions returns transactions newest first.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if !f.Start.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatDate(f.Start))
	}
	if !f.End.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatDate(f.End))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, created_at DESC, id LIMIT ?`
	args = append(args, limit)
	return s.queryTransactions(ctx, query, args...)
}

// CountTransactions returns the number of stored transactions per account.
func (s *Store) CountTransactions(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_id, COUNT(*) FROM transactions GROUP BY account_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// CategoryTotal summarizes the stored transactions of one category.
type CategoryTotal struct {
	Count  int
	Amount decimal.Decimal
}

// TransactionsByCategory groups stored transactions by category. Transactions
// without one are reported under Uncategorized.
func (s *Store) TransactionsByCategory(ctx context.Context) (map[string]CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, amount FROM transactions`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	totals := make(map[string]CategoryTotal)
	for rows.Next() {
		var (
			category string
			amount   decimal.Decimal
		)
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, err
		}
		if category == "" {
			category = Uncategorized
		}
		t := totals[category]
		t.Count++
		t.Amount = t.Amount.Add(amount)
		totals[category] = t
	}
	return totals, rows.Err()
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var txns []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func scanTransaction(row scanner) (Transaction, error) {
	var (
		t                          Transaction
		date, createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.Amount, &date, &t.Description, &t.Category,
		&t.Counterparty, &t.Type, &t.Status, &createdAt, &updatedAt)
	if err != nil {
		return Transaction{}, err
	}
	if t.Date, err = parseDate(date); err != nil {
		return Transaction{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Transaction{}, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
