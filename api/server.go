// Package api serves the dashboard's JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/helpcomp/teller-dashboard/forecast"
	"github.com/helpcomp/teller-dashboard/httperror"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/helpcomp/teller-dashboard/syncer"
	"github.com/rs/zerolog/log"
)

const DefaultUserID = "default_user"

// Syncer is satisfied by *syncer.Service.
type Syncer interface {
	SyncAll(ctx context.Context) (syncer.Summary, error)
	SyncEnrollment(ctx context.Context, e store.Enrollment) (syncer.Result, error)
}

type Server struct {
	store    *store.Store
	syncer   Syncer
	forecast *forecast.Engine
	version  string
	mux      *http.ServeMux
	now      func() time.Time
}

func New(st *store.Store, sync Syncer, fc *forecast.Engine, version string) *Server {
	s := &Server{
		store:    st,
		syncer:   sync,
		forecast: fc,
		version:  version,
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.setupRoutes()
	return s
}

// Handle registers extra handlers, such as metrics, next to the API.
func (s *Server) Handle(pattern string, h http.Handler) { s.mux.Handle(pattern, h) }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withLogging(s.mux).ServeHTTP(w, r)
}

var endpoints = map[string]string{
	"GET /api/info":                            "Service information",
	"GET /api/health":                          "Health check",
	"POST /api/sync":                           "Sync data from Teller",
	"GET /api/accounts":                        "Get all accounts",
	"GET /api/accounts/{id}":                   "Get specific account",
	"PUT /api/accounts/{id}/display-name":      "Set or clear an account's display name",
	"GET /api/accounts/{id}/balance":           "Get current balance for account",
	"GET /api/accounts/{id}/balances":          "Get balance history for account",
	"GET /api/accounts/{id}/transactions":      "Get transactions for account",
	"GET /api/transactions":                    "Search transactions",
	"GET /api/scheduled-payments":              "Get scheduled payments",
	"POST /api/scheduled-payments":             "Create scheduled payment",
	"PUT /api/scheduled-payments/{id}":         "Update scheduled payment",
	"DELETE /api/scheduled-payments/{id}":      "Delete scheduled payment",
	"GET /api/weekly-forecast":                 "Get weekly financial forecast",
	"GET /api/monthly-forecast":                "Get monthly calendar forecast",
	"POST /api/teller-connect/enroll":          "Enroll user with Teller Connect",
	"GET /api/teller-connect/status":           "Get enrollment status",
	"POST /api/teller-connect/disconnect/{id}": "Disconnect enrollment",
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/info", s.handleInfo)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)

	s.mux.HandleFunc("GET /api/accounts", s.handleAccounts)
	s.mux.HandleFunc("GET /api/accounts/{id}", s.handleAccount)
	s.mux.HandleFunc("PUT /api/accounts/{id}/display-name", s.handleDisplayName)
	s.mux.HandleFunc("GET /api/accounts/{id}/balance", s.handleBalance)
	s.mux.HandleFunc("GET /api/accounts/{id}/balances", s.handleBalanceHistory)
	s.mux.HandleFunc("GET /api/accounts/{id}/transactions", s.handleAccountTransactions)
	s.mux.HandleFunc("GET /api/transactions", s.handleTransactions)

	s.mux.HandleFunc("GET /api/scheduled-payments", s.handleListPayments)
	s.mux.HandleFunc("POST /api/scheduled-payments", s.handleCreatePayment)
	s.mux.HandleFunc("PUT /api/scheduled-payments/{id}", s.handleUpdatePayment)
	s.mux.HandleFunc("DELETE /api/scheduled-payments/{id}", s.handleDeletePayment)

	s.mux.HandleFunc("GET /api/weekly-forecast", s.handleWeeklyForecast)
	s.mux.HandleFunc("GET /api/monthly-forecast", s.handleMonthlyForecast)

	s.mux.HandleFunc("POST /api/teller-connect/enroll", s.handleEnroll)
	s.mux.HandleFunc("GET /api/teller-connect/status", s.handleEnrollmentStatus)
	s.mux.HandleFunc("POST /api/teller-connect/disconnect/{id}", s.handleDisconnect)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("Path", r.URL.Path).Msg("Failed to write JSON response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging logs every request with its status and duration and recovers panics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				httperror.SendError(rec, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", p))
			}
			log.Info().
				Str("Method", r.Method).
				Str("Path", r.URL.Path).
				Int("Status", rec.status).
				Dur("Duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(rec, r)
	})
}
