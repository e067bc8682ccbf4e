package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/helpcomp/teller-dashboard/store"
	"github.com/helpcomp/teller-dashboard/teller"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/slices"
)

// SyncTransactions reconciles the transactions of every open account of the enrollment.
// Each account commits separately; an account that fails is logged and counted.
func (s *Service) SyncTransactions(ctx context.Context, p Provider, e store.Enrollment) (Counts, error) {
	accounts, err := s.store.AccountsByEnrollment(ctx, e.EnrollmentID)
	if err != nil {
		return Counts{}, fmt.Errorf("loading accounts: %w", err)
	}

	var total Counts
	for _, a := range accounts {
		if a.Status != "open" || s.cfg.Skipped(a.ID) {
			continue
		}
		c, err := s.syncAccountTransactions(ctx, p, a)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			total.FailedAccounts++
			log.Error().Err(err).Str("AccountID", a.ID).Msg("🚨 Transaction sync failed for account")
			continue
		}
		total.add(c)
	}
	return total, nil
}

func (s *Service) syncAccountTransactions(ctx context.Context, p Provider, a store.Account) (Counts, error) {
	fetched, err := p.Transactions(ctx, a.ID, s.opts.TransactionCount)
	if err != nil {
		return Counts{}, fmt.Errorf("fetching transactions: %w", err)
	}

	incoming := make([]store.Transaction, 0, len(fetched))
	for _, t := range fetched {
		st, err := convertTransaction(a.ID, t)
		if err != nil {
			log.Warn().Err(err).Str("AccountID", a.ID).Str("ID", t.ID).Msg("Skipping malformed transaction")
			continue
		}
		incoming = append(incoming, st)
	}
	if len(incoming) == 0 {
		return Counts{}, nil
	}

	oldest := incoming[0].Date
	for _, t := range incoming[1:] {
		if t.Date.Before(oldest) {
			oldest = t.Date
		}
	}
	index, err := s.store.TransactionsSince(ctx, a.ID, oldest)
	if err != nil {
		return Counts{}, fmt.Errorf("indexing stored transactions: %w", err)
	}
	// A record whose date moved later, such as a posted pending charge, sits before the window.
	var outside []string
	for _, t := range incoming {
		if _, ok := index[t.ID]; !ok {
			outside = append(outside, t.ID)
		}
	}
	if len(outside) > 0 {
		moved, err := s.store.TransactionsByID(ctx, a.ID, outside)
		if err != nil {
			return Counts{}, fmt.Errorf("indexing stored transactions: %w", err)
		}
		for id, t := range moved {
			index[id] = t
		}
	}

	changes, counts := classify(incoming, index)
	for i := range changes.Insert {
		if changes.Insert[i].Category != "" {
			continue
		}
		res := s.categorizer.Categorize(ctx, changes.Insert[i].Description)
		changes.Insert[i].Category = res.Category
		if res.Skip {
			changes.Insert[i].ID = ""
		}
	}
	changes.Insert = slices.DeleteFunc(changes.Insert, func(t store.Transaction) bool { return t.ID == "" })
	counts.Added = len(changes.Insert)

	removeFrom := oldest
	if s.opts.Lookback > 0 {
		floor := s.now().UTC().Add(-s.opts.Lookback).Truncate(24 * time.Hour)
		if floor.After(removeFrom) {
			removeFrom = floor
		}
	}
	vanished := vanishedPending(incoming, index, removeFrom)
	if len(vanished) > 0 {
		if s.opts.AutoRemove {
			changes.Delete = vanished
			counts.Removed = len(vanished)
		} else {
			for _, id := range vanished {
				log.Warn().
					Str("Type", "Transaction").
					Str("ID", id).
					Str("AccountID", a.ID).
					Msg("Pending transaction no longer reported by provider. Enable auto removal to delete it")
			}
		}
	}

	if err := s.store.ApplyTransactionChanges(ctx, changes); err != nil {
		return Counts{}, err
	}

	log.Info().
		Str("Type", "Transactions").
		Str("AccountID", a.ID).
		Int("Added", counts.Added).
		Int("Updated", counts.Updated).
		Int("Removed", counts.Removed).
		Int("Unchanged", counts.Unchanged).
		Msg("📜 Processed transactions")
	return counts, nil
}

func convertTransaction(accountID string, t teller.Transaction) (store.Transaction, error) {
	if t.ID == "" {
		return store.Transaction{}, fmt.Errorf("transaction has no id")
	}
	date, err := time.Parse(time.DateOnly, t.Date)
	if err != nil {
		return store.Transaction{}, fmt.Errorf("parsing date %q: %w", t.Date, err)
	}
	if t.AccountID != "" {
		accountID = t.AccountID
	}
	status := t.Status
	if status == "" {
		status = store.StatusPosted
	}
	return store.Transaction{
		ID:           t.ID,
		AccountID:    accountID,
		Amount:       t.Amount,
		Date:         date,
		Description:  t.Description,
		Category:     t.CategoryName(),
		Counterparty: t.Details.Counterparty.Name,
		Type:         t.Type,
		Status:       status,
	}, nil
}

// classify splits incoming records into inserts and updates against the stored index.
// Records identical to their stored copy are only counted.
func classify(incoming []store.Transaction, index map[string]store.Transaction) (store.ChangeSet, Counts) {
	var (
		changes store.ChangeSet
		counts  Counts
		seen    = make(map[string]bool, len(incoming))
	)
	for _, t := range incoming {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		old, found := index[t.ID]
		if !found {
			changes.Insert = append(changes.Insert, t)
			continue
		}
		if !changed(old, t) {
			counts.Unchanged++
			continue
		}
		if t.Category == "" {
			t.Category = old.Category
		}
		changes.Update = append(changes.Update, t)
	}
	counts.Added = len(changes.Insert)
	counts.Updated = len(changes.Update)
	return changes, counts
}

func changed(old, t store.Transaction) bool {
	return !old.Amount.Equal(t.Amount) ||
		!old.Date.Equal(t.Date) ||
		old.Description != t.Description ||
		old.Status != t.Status ||
		old.Type != t.Type ||
		old.Counterparty != t.Counterparty
}

// vanishedPending lists stored pending transactions dated on or after from that the
// provider no longer reports.
func vanishedPending(incoming []store.Transaction, index map[string]store.Transaction, from time.Time) []string {
	reported := make(map[string]bool, len(incoming))
	for _, t := range incoming {
		reported[t.ID] = true
	}
	var ids []string
	for id, old := range index {
		if old.Pending() && !reported[id] && !old.Date.Before(from) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
