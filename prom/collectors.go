package prom

import (
	"context"
	"time"

	"github.com/helpcomp/teller-dashboard/categorize"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/helpcomp/teller-dashboard/teller"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.CollectAccounts(ch) // Stored accounts and balances
	e.CollectSys(ch)      // Program Collector (API calls, syncs, etc...)
}

// CollectAccounts reports the latest stored state of every account.
func (e *Exporter) CollectAccounts(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	failed := 0.0
	defer func() {
		ch <- prometheus.MustNewConstMetric(e.ScrapeErrors, prometheus.GaugeValue, failed)
	}()

	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Unable to list accounts for metrics")
		failed = 1
		return
	}
	latest, err := e.store.LatestBalances(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Unable to load balances for metrics")
		failed = 1
		return
	}
	counts, err := e.store.CountTransactions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Unable to count transactions for metrics")
		failed = 1
		return
	}

	categories, err := e.store.TransactionsByCategory(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Unable to group transactions by category for metrics")
		failed = 1
		return
	}
	for name, total := range categories {
		e.collectCategoryTransactions(name, total, ch)
	}

	for _, account := range accounts {
		labels := []string{account.ID, accountName(account), account.Type}

		ch <- prometheus.MustNewConstMetric(
			e.AccountTransactions,
			prometheus.GaugeValue,
			float64(counts[account.ID]),
			labels...,
		)

		b, ok := latest[account.ID]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			e.AccountBalance,
			prometheus.GaugeValue,
			b.Available.InexactFloat64(),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			e.AccountLedger,
			prometheus.GaugeValue,
			b.Ledger.InexactFloat64(),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			e.AccountRefreshTime,
			prometheus.GaugeValue,
			float64(b.Timestamp.Unix()),
			labels...,
		)
	}
}

// collectCategoryTransactions reports how many transactions a category holds and their sum.
func (e *Exporter) collectCategoryTransactions(name string, total store.CategoryTotal, ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		e.CategoryActivity,
		prometheus.GaugeValue,
		float64(total.Count),
		name,
	)
	ch <- prometheus.MustNewConstMetric(
		e.CategoryBalance,
		prometheus.GaugeValue,
		total.Amount.InexactFloat64(),
		name,
	)
}

// CollectSys Collects Program information (API calls, sync runs, etc...)
func (e *Exporter) CollectSys(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		e.APICalls,
		prometheus.CounterValue,
		float64(teller.APICalls.Load()),
		"teller",
	)
	ch <- prometheus.MustNewConstMetric(
		e.APICalls,
		prometheus.CounterValue,
		float64(categorize.APICalls.Load()),
		"openai",
	)
	ch <- prometheus.MustNewConstMetric(
		e.APIErrors,
		prometheus.CounterValue,
		float64(teller.APIErrors.Load()),
		"teller",
	)
	ch <- prometheus.MustNewConstMetric(
		e.APIErrors,
		prometheus.CounterValue,
		float64(categorize.APIErrors.Load()),
		"openai",
	)

	if e.sync == nil {
		return
	}
	stats := e.sync.Stats()
	ch <- prometheus.MustNewConstMetric(e.SyncRuns, prometheus.CounterValue, float64(stats.Runs))
	ch <- prometheus.MustNewConstMetric(e.SyncFailures, prometheus.CounterValue, float64(stats.Failures))
	if !stats.LastSuccess.IsZero() {
		ch <- prometheus.MustNewConstMetric(e.LastSync, prometheus.GaugeValue, float64(stats.LastSuccess.Unix()))
	}
}

func accountName(a store.Account) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}
