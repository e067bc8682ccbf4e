package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const enrollmentColumns = `id, enrollment_id, user_id, access_token, institution_name, created_at,
	updated_at, last_synced, is_active`

// UpsertEnrollment stores a new enrollment or refreshes the token of an existing one
// and reactivates it. The institution name is only replaced when a new one is given.
// The returned enrollment carries the plain access token.
func (s *Store) UpsertEnrollment(ctx context.Context, e Enrollment) (Enrollment, error) {
	if e.EnrollmentID == "" || e.AccessToken == "" {
		return Enrollment{}, errors.New("enrollment id and access token are required")
	}
	if e.UserID == "" {
		e.UserID = "default_user"
	}
	sealed, err := s.sealToken(e.AccessToken)
	if err != nil {
		return Enrollment{}, err
	}
	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO user_enrollments
		(enrollment_id, user_id, access_token, institution_name, created_at, updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, TRUE)
		ON CONFLICT (enrollment_id) DO UPDATE SET
			access_token = excluded.access_token,
			is_active = TRUE,
			updated_at = excluded.updated_at,
			institution_name = CASE WHEN excluded.institution_name = ''
				THEN user_enrollments.institution_name ELSE excluded.institution_name END`),
		e.EnrollmentID, e.UserID, sealed, e.InstitutionName, now, now,
	)
	if err != nil {
		return Enrollment{}, fmt.Errorf("saving enrollment %s: %w", e.EnrollmentID, err)
	}
	return s.GetEnrollment(ctx, e.EnrollmentID)
}

func (s *Store) ActiveEnrollments(ctx context.Context) ([]Enrollment, error) {
	return s.queryEnrollments(ctx, `SELECT `+enrollmentColumns+` FROM user_enrollments
		WHERE is_active ORDER BY id`)
}

func (s *Store) EnrollmentsByUser(ctx context.Context, userID string, activeOnly bool) ([]Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM user_enrollments WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active`
	}
	return s.queryEnrollments(ctx, query+` ORDER BY id`, userID)
}

func (s *Store) GetEnrollment(ctx context.Context, enrollmentID string) (Enrollment, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+enrollmentColumns+` FROM user_enrollments
		WHERE enrollment_id = ?`), enrollmentID)
	e, err := s.scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	return e, err
}

func (s *Store) DeactivateEnrollment(ctx context.Context, enrollmentID string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE user_enrollments SET is_active = FALSE, updated_at = ?
		WHERE enrollment_id = ?`), s.timestamp(), enrollmentID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) MarkSynced(ctx context.Context, enrollmentID string) error {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE user_enrollments SET last_synced = ?, updated_at = ?
		WHERE enrollment_id = ?`), now, now, enrollmentID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) queryEnrollments(ctx context.Context, query string, args ...any) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Enrollment
	for rows.Next() {
		e, err := s.scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) scanEnrollment(row scanner) (Enrollment, error) {
	var (
		e                    Enrollment
		createdAt, updatedAt string
		lastSynced           sql.NullString
	)
	err := row.Scan(&e.ID, &e.EnrollmentID, &e.UserID, &e.AccessToken, &e.InstitutionName,
		&createdAt, &updatedAt, &lastSynced, &e.IsActive)
	if err != nil {
		return Enrollment{}, err
	}
	if e.AccessToken, err = s.openToken(e.AccessToken); err != nil {
		return Enrollment{}, fmt.Errorf("enrollment %s: %w", e.EnrollmentID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return Enrollment{}, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Enrollment{}, err
	}
	if e.LastSynced, err = parseNullTime(lastSynced); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}
