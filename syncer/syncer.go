// Package syncer mirrors provider accounts, balances and transactions into the store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helpcomp/teller-dashboard/categorize"
	"github.com/helpcomp/teller-dashboard/config"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/helpcomp/teller-dashboard/teller"
	"github.com/rs/zerolog/log"
)

var ErrSyncInProgress = errors.New("sync already in progress")

// Provider is the subset of the banking API the sync engine needs.
type Provider interface {
	Accounts(ctx context.Context) ([]teller.Account, error)
	Balances(ctx context.Context, accountID string) (teller.Balance, error)
	Transactions(ctx context.Context, accountID string, count int) ([]teller.Transaction, error)
}

// ProviderFactory builds a Provider authenticated with an enrollment's access token.
type ProviderFactory func(accessToken string) (Provider, error)

type Options struct {
	TransactionCount int
	// Lookback bounds how far back vanished pending transactions are looked for.
	Lookback   time.Duration
	AutoRemove bool
}

type Counts struct {
	Added          int `json:"added"`
	Updated        int `json:"updated"`
	Removed        int `json:"removed"`
	Unchanged      int `json:"unchanged"`
	FailedAccounts int `json:"failed_accounts"`
}

func (c *Counts) add(o Counts) {
	c.Added += o.Added
	c.Updated += o.Updated
	c.Removed += o.Removed
	c.Unchanged += o.Unchanged
	c.FailedAccounts += o.FailedAccounts
}

type Result struct {
	EnrollmentID string `json:"enrollment_id"`
	RunID        string `json:"run_id"`
	Accounts     int    `json:"accounts"`
	Balances     int    `json:"balances"`
	Transactions Counts `json:"transactions"`
	Error        string `json:"error,omitempty"`
}

type Summary struct {
	Enrollments  int      `json:"enrollments"`
	Failed       int      `json:"failed"`
	Accounts     int      `json:"accounts"`
	Balances     int      `json:"balances"`
	Transactions Counts   `json:"transactions"`
	Results      []Result `json:"results"`
}

// Stats are cumulative counters read by the metrics exporter.
type Stats struct {
	Runs        uint64
	Failures    uint64
	LastSuccess time.Time
}

type Service struct {
	store       *store.Store
	cfg         *config.MasterConfig
	categorizer *categorize.Categorizer
	newProvider ProviderFactory
	opts        Options
	now         func() time.Time

	mu          sync.Mutex
	runs        atomic.Uint64
	failures    atomic.Uint64
	lastSuccess atomic.Int64
}

func New(st *store.Store, cfg *config.MasterConfig, cat *categorize.Categorizer, factory ProviderFactory, opts Options) *Service {
	if opts.TransactionCount <= 0 {
		opts.TransactionCount = 500
	}
	return &Service{
		store:       st,
		cfg:         cfg,
		categorizer: cat,
		newProvider: factory,
		opts:        opts,
		now:         time.Now,
	}
}

func (s *Service) Stats() Stats {
	st := Stats{Runs: s.runs.Load(), Failures: s.failures.Load()}
	if ts := s.lastSuccess.Load(); ts != 0 {
		st.LastSuccess = time.Unix(0, ts)
	}
	return st
}

// SyncAll syncs every active enrollment. A failing enrollment is logged and counted
// without stopping the others.
func (s *Service) SyncAll(ctx context.Context) (Summary, error) {
	if !s.mu.TryLock() {
		return Summary{}, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	enrollments, err := s.store.ActiveEnrollments(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("loading enrollments: %w", err)
	}
	log.Info().Int("Enrollments", len(enrollments)).Msg("🔄 Starting sync")

	var sum Summary
	for _, e := range enrollments {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := s.syncEnrollment(ctx, e)
		sum.Enrollments++
		if err != nil {
			sum.Failed++
			log.Error().Err(err).Str("EnrollmentID", e.EnrollmentID).Msg("🚨 Enrollment sync failed")
		}
		sum.Accounts += res.Accounts
		sum.Balances += res.Balances
		sum.Transactions.add(res.Transactions)
		sum.Results = append(sum.Results, res)
	}

	log.Info().
		Int("Enrollments", sum.Enrollments).
		Int("Failed", sum.Failed).
		Int("Accounts", sum.Accounts).
		Int("Balances", sum.Balances).
		Int("Added", sum.Transactions.Added).
		Int("Updated", sum.Transactions.Updated).
		Int("Removed", sum.Transactions.Removed).
		Msg("✅ Sync finished")
	return sum, nil
}

// SyncEnrollment syncs a single enrollment, such as one that was just connected.
func (s *Service) SyncEnrollment(ctx context.Context, e store.Enrollment) (Result, error) {
	if !s.mu.TryLock() {
		return Result{EnrollmentID: e.EnrollmentID}, ErrSyncInProgress
	}
	defer s.mu.Unlock()
	return s.syncEnrollment(ctx, e)
}

func (s *Service) syncEnrollment(ctx context.Context, e store.Enrollment) (res Result, err error) {
	res.EnrollmentID = e.EnrollmentID
	s.runs.Add(1)

	runID, err := s.store.StartSyncRun(ctx, e.EnrollmentID)
	if err != nil {
		s.failures.Add(1)
		return res, fmt.Errorf("recording sync run: %w", err)
	}
	res.RunID = runID

	defer func() {
		run := store.SyncRun{
			ID:                  runID,
			Accounts:            res.Accounts,
			Balances:            res.Balances,
			TransactionsAdded:   res.Transactions.Added,
			TransactionsUpdated: res.Transactions.Updated,
			TransactionsRemoved: res.Transactions.Removed,
		}
		if err != nil {
			run.Error = err.Error()
			res.Error = err.Error()
			s.failures.Add(1)
		}
		// The caller's context may already be cancelled; the outcome is still recorded.
		if ferr := s.store.FinishSyncRun(context.WithoutCancel(ctx), run); ferr != nil {
			log.Error().Err(ferr).Str("RunID", runID).Msg("Unable to record sync run")
		}
	}()

	provider, err := s.newProvider(e.AccessToken)
	if err != nil {
		return res, fmt.Errorf("creating provider client: %w", err)
	}

	if res.Accounts, err = s.SyncAccounts(ctx, provider, e); err != nil {
		return res, err
	}
	if res.Balances, err = s.SyncBalances(ctx, provider, e); err != nil {
		return res, err
	}
	if res.Transactions, err = s.SyncTransactions(ctx, provider, e); err != nil {
		return res, err
	}

	if err = s.store.MarkSynced(ctx, e.EnrollmentID); err != nil {
		return res, fmt.Errorf("marking enrollment synced: %w", err)
	}
	s.lastSuccess.Store(s.now().UnixNano())

	log.Info().
		Str("EnrollmentID", e.EnrollmentID).
		Int("Accounts", res.Accounts).
		Int("Balances", res.Balances).
		Int("Added", res.Transactions.Added).
		Int("Updated", res.Transactions.Updated).
		Msg("Enrollment synced")
	return res, nil
}
