package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const paymentColumns = `id, name, amount, account_id, day_of_month, month, due_date, is_active,
	is_recurring, frequency, email, category, notes, created_at, updated_at`

// Validate checks the fields a caller controls.
func (p ScheduledPayment) Validate() error {
	switch {
	case p.Name == "":
		return errors.New("name is required")
	case p.DayOfMonth < 1 || p.DayOfMonth > 31:
		return fmt.Errorf("day_of_month %d out of range 1-31", p.DayOfMonth)
	case p.Month < 0 || p.Month > 12:
		return fmt.Errorf("month %d out of range 0-12", p.Month)
	}
	switch p.Frequency {
	case FrequencyMonthly, FrequencyYearly, FrequencyOneTime:
	default:
		return fmt.Errorf("unknown frequency %q", p.Frequency)
	}
	return nil
}

// NextDueDate is the first date on or after from whose day equals day, clamped to
// the length of the month.
func NextDueDate(from time.Time, day int) time.Time {
	y, m, d := from.Date()
	candidate := clampDay(y, m, day, from.Location())
	if candidate.Day() < d {
		candidate = clampDay(y, m+1, day, from.Location())
	}
	return candidate
}

func clampDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// CreatePayment stores p and returns its id. A one-time payment without a due
// date gets the next occurrence of its day of month.
func (s *Store) CreatePayment(ctx context.Context, p ScheduledPayment) (int64, error) {
	if p.Frequency == "" {
		p.Frequency = FrequencyMonthly
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	now := s.now()
	if p.Frequency == FrequencyOneTime && p.DueDate == nil {
		due := NextDueDate(now.UTC(), p.DayOfMonth)
		p.DueDate = &due
	}
	if p.Frequency == FrequencyOneTime {
		p.IsRecurring = false
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO scheduled_payments
		(name, amount, account_id, day_of_month, month, due_date, is_active, is_recurring,
		 frequency, email, category, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, TRUE, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		p.Name, p.Amount, nullString(p.AccountID), p.DayOfMonth, p.Month, dueDateValue(p.DueDate),
		p.IsRecurring, p.Frequency, p.Email, p.Category, p.Notes, formatTime(now), formatTime(now),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating scheduled payment: %w", err)
	}
	return id, nil
}

// UpdatePayment replaces the editable fields of an existing payment.
func (s *Store) UpdatePayment(ctx context.Context, p ScheduledPayment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Frequency == FrequencyOneTime {
		p.IsRecurring = false
		if p.DueDate == nil {
			due := NextDueDate(s.now().UTC(), p.DayOfMonth)
			p.DueDate = &due
		}
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE scheduled_payments SET
		name = ?, amount = ?, account_id = ?, day_of_month = ?, month = ?, due_date = ?,
		is_recurring = ?, frequency = ?, email = ?, category = ?, notes = ?, updated_at = ?
		WHERE id = ? AND is_active`),
		p.Name, p.Amount, nullString(p.AccountID), p.DayOfMonth, p.Month, dueDateValue(p.DueDate),
		p.IsRecurring, p.Frequency, p.Email, p.Category, p.Notes, s.timestamp(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating scheduled payment %d: %w", p.ID, err)
	}
	return checkAffected(res)
}

func (s *Store) ListActivePayments(ctx context.Context) ([]ScheduledPayment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM scheduled_payments
		WHERE is_active ORDER BY day_of_month, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var payments []ScheduledPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetPayment returns a payment whether or not it is still active.
func (s *Store) GetPayment(ctx context.Context, id int64) (ScheduledPayment, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+paymentColumns+` FROM scheduled_payments WHERE id = ?`), id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledPayment{}, ErrNotFound
	}
	return p, err
}

// DeactivatePayment soft deletes a payment.
func (s *Store) DeactivatePayment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE scheduled_payments SET is_active = FALSE, updated_at = ?
		WHERE id = ? AND is_active`), s.timestamp(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func dueDateValue(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func scanPayment(row scanner) (ScheduledPayment, error) {
	var (
		p                    ScheduledPayment
		accountID, dueDate   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Amount, &accountID, &p.DayOfMonth, &p.Month, &dueDate,
		&p.IsActive, &p.IsRecurring, &p.Frequency, &p.Email, &p.Category, &p.Notes, &createdAt, &updatedAt)
	if err != nil {
		return ScheduledPayment{}, err
	}
	p.AccountID = accountID.String
	if dueDate.Valid && dueDate.String != "" {
		d, err := parseDate(dueDate.String)
		if err != nil {
			return ScheduledPayment{}, err
		}
		p.DueDate = &d
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return ScheduledPayment{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ScheduledPayment{}, err
	}
	return p, nil
}
