package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/helpcomp/teller-dashboard/httperror"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/helpcomp/teller-dashboard/syncer"
)

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"message":   "Teller Dashboard API",
		"version":   s.version,
		"endpoints": endpoints,
	})
}

type syncRunJSON struct {
	ID                  string     `json:"id"`
	EnrollmentID        string     `json:"enrollment_id"`
	Status              string     `json:"status"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at"`
	Accounts            int        `json:"accounts"`
	Balances            int        `json:"balances"`
	TransactionsAdded   int        `json:"transactions_added"`
	TransactionsUpdated int        `json:"transactions_updated"`
	TransactionsRemoved int        `json:"transactions_removed"`
	Error               string     `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC(),
		"database":  "connected",
		"last_sync": nil,
	}
	if err := s.store.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = "error: " + err.Error()
		s.writeJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}

	run, err := s.store.LastSyncRun(r.Context())
	switch {
	case err == nil:
		resp["last_sync"] = syncRunJSON{
			ID:                  run.ID,
			EnrollmentID:        run.EnrollmentID,
			Status:              run.Status,
			StartedAt:           run.StartedAt,
			FinishedAt:          run.FinishedAt,
			Accounts:            run.Accounts,
			Balances:            run.Balances,
			TransactionsAdded:   run.TransactionsAdded,
			TransactionsUpdated: run.TransactionsUpdated,
			TransactionsRemoved: run.TransactionsRemoved,
			Error:               run.Error,
		}
	case !errors.Is(err, store.ErrNotFound):
		resp["status"] = "degraded"
		resp["database"] = "error: " + err.Error()
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	summary, err := s.syncer.SyncAll(r.Context())
	if errors.Is(err, syncer.ErrSyncInProgress) {
		httperror.Send(w, r, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, err.Error(), err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "success",
		"synced":    summary,
		"timestamp": s.now().UTC(),
	})
}
