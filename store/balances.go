package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

const balanceColumns = `id, account_id, available, ledger, timestamp`

// InsertBalances appends snapshots. A zero Timestamp means now.
func (s *Store) InsertBalances(ctx context.Context, balances []Balance) error {
	now := s.timestamp()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, b := range balances {
			ts := now
			if !b.Timestamp.IsZero() {
				ts = formatTime(b.Timestamp)
			}
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO balances (account_id, available, ledger, timestamp)
				VALUES (?, ?, ?, ?)`), b.AccountID, b.Available, b.Ledger, ts)
			if err != nil {
				return fmt.Errorf("inserting balance for %s: %w", b.AccountID, err)
			}
		}
		return nil
	})
}

func (s *Store) LatestBalance(ctx context.Context, accountID string) (Balance, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+balanceColumns+` FROM balances
		WHERE account_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`), accountID)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Balance{}, ErrNotFound
	}
	return b, err
}

// LatestBalances returns the newest snapshot of every account that has one.
func (s *Store) LatestBalances(ctx context.Context) (map[string]Balance, error) {
	balances, err := s.queryBalances(ctx, `SELECT `+balanceColumns+` FROM balances b
		WHERE b.id = (
			SELECT b2.id FROM balances b2
			WHERE b2.account_id = b.account_id
			ORDER BY b2.timestamp DESC, b2.id DESC LIMIT 1
		)`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Balance, len(balances))
	for _, b := range balances {
		out[b.AccountID] = b
	}
	return out, nil
}

// BalanceHistory returns snapshots of one account taken at or after since, oldest first.
func (s *Store) BalanceHistory(ctx context.Context, accountID string, since time.Time) ([]Balance, error) {
	return s.queryBalances(ctx, `SELECT `+balanceColumns+` FROM balances
		WHERE account_id = ? AND timestamp >= ? ORDER BY timestamp, id`, accountID, formatTime(since))
}

// BalancesBetween returns every snapshot in [from, to) plus, per account, the newest
// snapshot before from, so callers can carry balances forward. Oldest first.
// An empty accountIDs selects every account.
func (s *Store) BalancesBetween(ctx context.Context, accountIDs []string, from, to time.Time) ([]Balance, error) {
	before, err := s.queryBalances(ctx, `SELECT `+balanceColumns+` FROM balances b
		WHERE b.id = (
			SELECT b2.id FROM balances b2
			WHERE b2.account_id = b.account_id AND b2.timestamp < ?
			ORDER BY b2.timestamp DESC, b2.id DESC LIMIT 1
		)
		ORDER BY timestamp, id`, formatTime(from))
	if err != nil {
		return nil, err
	}
	within, err := s.queryBalances(ctx, `SELECT `+balanceColumns+` FROM balances
		WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp, id`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	all := append(before, within...)
	if len(accountIDs) == 0 {
		return all, nil
	}
	out := all[:0]
	for _, b := range all {
		if slices.Contains(accountIDs, b.AccountID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) queryBalances(ctx context.Context, query string, args ...any) ([]Balance, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var balances []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func scanBalance(row scanner) (Balance, error) {
	var (
		b  Balance
		ts string
	)
	if err := row.Scan(&b.ID, &b.AccountID, &b.Available, &b.Ledger, &ts); err != nil {
		return Balance{}, err
	}
	var err error
	b.Timestamp, err = parseTime(ts)
	return b, err
}
