package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// StartSyncRun records a running sync for enrollmentID and returns its id.
func (s *Store) StartSyncRun(ctx context.Context, enrollmentID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO sync_runs (id, enrollment_id, started_at, status)
		VALUES (?, ?, ?, ?)`), id, enrollmentID, s.timestamp(), SyncRunning)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishSyncRun stores the outcome of run. Status is derived from run.Error.
func (s *Store) FinishSyncRun(ctx context.Context, run SyncRun) error {
	status := SyncSuccess
	if run.Error != "" {
		status = SyncFailed
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE sync_runs SET
		finished_at = ?, status = ?, accounts = ?, balances = ?, transactions_added = ?,
		transactions_updated = ?, transactions_removed = ?, error = ?
		WHERE id = ?`),
		s.timestamp(), status, run.Accounts, run.Balances, run.TransactionsAdded,
		run.TransactionsUpdated, run.TransactionsRemoved, run.Error, run.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// LastSyncRun returns the most recently started run.
func (s *Store) LastSyncRun(ctx context.Context) (SyncRun, error) {
	var (
		r          SyncRun
		startedAt  string
		finishedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, enrollment_id, started_at, finished_at, status,
		accounts, balances, transactions_added, transactions_updated, transactions_removed, error
		FROM sync_runs ORDER BY started_at DESC LIMIT 1`).Scan(
		&r.ID, &r.EnrollmentID, &startedAt, &finishedAt, &r.Status, &r.Accounts, &r.Balances,
		&r.TransactionsAdded, &r.TransactionsUpdated, &r.TransactionsRemoved, &r.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRun{}, ErrNotFound
	}
	if err != nil {
		return SyncRun{}, err
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return SyncRun{}, err
	}
	if r.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return SyncRun{}, err
	}
	return r, nil
}
