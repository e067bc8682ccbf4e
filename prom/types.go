package prom

import (
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/helpcomp/teller-dashboard/syncer"
	"github.com/prometheus/client_golang/prometheus"
)

// SyncStats is satisfied by *syncer.Service.
type SyncStats interface {
	Stats() syncer.Stats
}

type Exporter struct {
	AccountTransactions *prometheus.Desc
	AccountBalance      *prometheus.Desc
	AccountLedger       *prometheus.Desc
	AccountRefreshTime  *prometheus.Desc
	CategoryActivity    *prometheus.Desc
	CategoryBalance     *prometheus.Desc
	APICalls            *prometheus.Desc
	APIErrors           *prometheus.Desc
	SyncRuns            *prometheus.Desc
	SyncFailures        *prometheus.Desc
	LastSync            *prometheus.Desc
	ScrapeErrors        *prometheus.Desc
	store               *store.Store
	sync                SyncStats
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.AccountTransactions
	ch <- e.AccountBalance
	ch <- e.AccountLedger
	ch <- e.AccountRefreshTime
	ch <- e.CategoryActivity
	ch <- e.CategoryBalance
	ch <- e.APICalls
	ch <- e.APIErrors
	ch <- e.SyncRuns
	ch <- e.SyncFailures
	ch <- e.LastSync
	ch <- e.ScrapeErrors
}

func NewExporter(namespace string, st *store.Store, sync SyncStats) *Exporter {
	return &Exporter{
		AccountTransactions: prometheusAccountStatsDesc(
			namespace,
			"transactions",
			"How many transactions are stored for the given account",
		),
		AccountBalance: prometheusAccountStatsDesc(
			namespace,
			"balance",
			"Latest available balance for the given account",
		),
		AccountLedger: prometheusAccountStatsDesc(
			namespace,
			"ledger_balance",
			"Latest ledger balance for the given account",
		),
		AccountRefreshTime: prometheusAccountStatsDesc(
			namespace,
			"refresh_time",
			"Time the latest balance was recorded (Unix Time / Epoch)",
		),
		CategoryActivity: prometheusCategoryDesc(
			namespace,
			"transactions",
			"How many stored transactions carry the given category",
		),
		CategoryBalance: prometheusCategoryDesc(
			namespace,
			"amount",
			"Sum of the stored transaction amounts in the given category",
		),
		APICalls: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "status", "api_calls"),
			"Count of API calls",
			[]string{"type"},
			nil,
		),
		APIErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "status", "api_errors"),
			"Count of API errors",
			[]string{"type"},
			nil,
		),
		SyncRuns: prometheusStatusDesc(
			namespace,
			"sync_runs",
			"Count of enrollment syncs",
		),
		SyncFailures: prometheusStatusDesc(
			namespace,
			"sync_failures",
			"Count of failed enrollment syncs",
		),
		LastSync: prometheusStatusDesc(
			namespace,
			"last_sync_time",
			"Time of the last successful enrollment sync (Unix Time / Epoch)",
		),
		ScrapeErrors: prometheusStatusDesc(
			namespace,
			"scrape_errors",
			"Whether reading the database failed during this scrape",
		),
		store: st,
		sync:  sync,
	}
}

func prometheusAccountStatsDesc(namespace string, metric string, help string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(
			namespace,
			"account",
			metric,
		),
		help,
		[]string{"account_id", "account_name", "type"},
		nil,
	)
}

func prometheusCategoryDesc(namespace string, metric string, help string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(
			namespace,
			"category",
			metric,
		),
		help,
		[]string{"category"},
		nil,
	)
}

func prometheusStatusDesc(namespace string, metric string, help string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(
			namespace,
			"status",
			metric,
		),
		help,
		[]string{},
		nil,
	)
}
