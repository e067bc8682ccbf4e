package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const accountColumns = `id, enrollment_id, name, display_name, type, subtype, institution_name,
	last_four, currency, status, created_at, updated_at`

// UpsertAccounts inserts or refreshes accounts in a single transaction.
// A user's display name is never overwritten.
func (s *Store) UpsertAccounts(ctx context.Context, accounts []Account) error {
	now := s.timestamp()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range accounts {
			if a.Currency == "" {
				a.Currency = "USD"
			}
			if a.Status == "" {
				a.Status = "open"
			}
			_, err := tx.ExecContext(ctx, s.q(`INSERT INTO accounts
				(id, enrollment_id, name, display_name, type, subtype, institution_name,
				 last_four, currency, status, created_at, updated_at)
				VALUES (?, ?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					enrollment_id = excluded.enrollment_id,
					name = excluded.name,
					type = excluded.type,
					subtype = excluded.subtype,
					institution_name = excluded.institution_name,
					last_four = excluded.last_four,
					currency = excluded.currency,
					status = excluded.status,
					updated_at = excluded.updated_at`),
				a.ID, a.EnrollmentID, a.Name, a.Type, a.Subtype, a.InstitutionName,
				a.LastFour, a.Currency, a.Status, now, now,
			)
			if err != nil {
				return fmt.Errorf("upserting account %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY institution_name, name, id`)
}

func (s *Store) AccountsByEnrollment(ctx context.Context, enrollmentID string) ([]Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE enrollment_id = ? ORDER BY name, id`, enrollmentID)
}

func (s *Store) GetAccount(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// SetDisplayName sets a custom name; an empty name clears it.
func (s *Store) SetDisplayName(ctx context.Context, id, displayName string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE accounts SET display_name = ?, updated_at = ? WHERE id = ?`),
		displayName, s.timestamp(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row scanner) (Account, error) {
	var (
		a                    Account
		createdAt, updatedAt string
	)
	err := row.Scan(&a.ID, &a.EnrollmentID, &a.Name, &a.DisplayName, &a.Type, &a.Subtype,
		&a.InstitutionName, &a.LastFour, &a.Currency, &a.Status, &createdAt, &updatedAt)
	if err != nil {
		return Account{}, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return Account{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Account{}, err
	}
	return a, nil
}
