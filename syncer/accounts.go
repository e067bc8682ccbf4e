package syncer

import (
	"context"
	"fmt"

	"github.com/helpcomp/teller-dashboard/store"
	"github.com/rs/zerolog/log"
)

// SyncAccounts upserts the enrollment's accounts, leaving out accounts configured as skipped.
func (s *Service) SyncAccounts(ctx context.Context, p Provider, e store.Enrollment) (int, error) {
	fetched, err := p.Accounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching accounts: %w", err)
	}

	accounts := make([]store.Account, 0, len(fetched))
	for _, a := range fetched {
		if s.cfg.Skipped(a.ID) {
			log.Debug().Str("AccountID", a.ID).Msg("Skipping account")
			continue
		}
		enrollmentID := e.EnrollmentID
		if enrollmentID == "" {
			enrollmentID = a.EnrollmentID
		}
		accounts = append(accounts, store.Account{
			ID:              a.ID,
			EnrollmentID:    enrollmentID,
			Name:            a.Name,
			Type:            a.Type,
			Subtype:         a.Subtype,
			InstitutionName: a.Institution.Name,
			LastFour:        a.LastFour,
			Currency:        a.Currency,
			Status:          a.Status,
		})
	}

	if err := s.store.UpsertAccounts(ctx, accounts); err != nil {
		return 0, err
	}
	log.Info().Str("Type", "Accounts").Str("EnrollmentID", e.EnrollmentID).Int("Count", len(accounts)).Msg("🏦 Synced accounts")
	return len(accounts), nil
}

// SyncBalances appends one snapshot per open account of the enrollment. Accounts whose
// balance cannot be fetched are logged and skipped.
func (s *Service) SyncBalances(ctx context.Context, p Provider, e store.Enrollment) (int, error) {
	accounts, err := s.store.AccountsByEnrollment(ctx, e.EnrollmentID)
	if err != nil {
		return 0, fmt.Errorf("loading accounts: %w", err)
	}

	var snapshots []store.Balance
	for _, a := range accounts {
		if a.Status != "open" || s.cfg.Skipped(a.ID) {
			continue
		}
		b, err := p.Balances(ctx, a.ID)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			log.Error().Err(err).Str("AccountID", a.ID).Msg("🚨 Unable to fetch balance")
			continue
		}
		snapshots = append(snapshots, store.Balance{
			AccountID: a.ID,
			Available: b.Available,
			Ledger:    b.Ledger,
		})
	}

	if err := s.store.InsertBalances(ctx, snapshots); err != nil {
		return 0, err
	}
	log.Info().Str("Type", "Balances").Str("EnrollmentID", e.EnrollmentID).Int("Count", len(snapshots)).Msg("💰 Synced balances")
	return len(snapshots), nil
}
