package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/helpcomp/teller-dashboard/httperror"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/rs/zerolog/log"
)

type enrollRequest struct {
	AccessToken     string `json:"access_token"`
	EnrollmentID    string `json:"enrollment_id"`
	UserID          string `json:"user_id"`
	InstitutionName string `json:"institution_name"`
}

// handleEnroll saves the enrollment produced by Teller Connect and syncs it right
// away. A failed sync still keeps the enrollment and answers 207.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.Send(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AccessToken == "" || req.EnrollmentID == "" {
		httperror.Send(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}

	e, err := s.store.UpsertEnrollment(r.Context(), store.Enrollment{
		EnrollmentID:    req.EnrollmentID,
		UserID:          req.UserID,
		AccessToken:     req.AccessToken,
		InstitutionName: req.InstitutionName,
	})
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to save enrollment", err)
		return
	}
	log.Info().Str("EnrollmentID", e.EnrollmentID).Str("UserID", e.UserID).Msg("🔗 Enrollment saved")

	res, err := s.syncer.SyncEnrollment(r.Context(), e)
	if err != nil {
		log.Warn().Err(err).Str("EnrollmentID", e.EnrollmentID).Msg("Enrollment saved but sync failed")
		s.writeJSON(w, r, http.StatusMultiStatus, map[string]any{
			"status":        "partial_success",
			"enrollment_id": e.EnrollmentID,
			"user_id":       e.UserID,
			"message":       "Enrollment saved but sync failed",
			"error":         err.Error(),
		})
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":        "success",
		"enrollment_id": e.EnrollmentID,
		"user_id":       e.UserID,
		"synced":        res,
		"message":       "Successfully enrolled and synced accounts",
	})
}

type enrollmentJSON struct {
	EnrollmentID    string     `json:"enrollment_id"`
	InstitutionName string     `json:"institution_name"`
	CreatedAt       time.Time  `json:"created_at"`
	LastSynced      *time.Time `json:"last_synced"`
	IsActive        bool       `json:"is_active"`
}

func (s *Server) handleEnrollmentStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = DefaultUserID
	}
	enrollments, err := s.store.EnrollmentsByUser(r.Context(), userID, true)
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to load enrollments", err)
		return
	}
	out := make([]enrollmentJSON, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, enrollmentJSON{
			EnrollmentID:    e.EnrollmentID,
			InstitutionName: e.InstitutionName,
			CreatedAt:       e.CreatedAt,
			LastSynced:      e.LastSynced,
			IsActive:        e.IsActive,
		})
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"user_id":     userID,
		"enrollments": out,
		"count":       len(out),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeactivateEnrollment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httperror.Send(w, r, http.StatusNotFound, "Enrollment not found")
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to disconnect enrollment", err)
		return
	}
	log.Info().Str("EnrollmentID", id).Msg("🔌 Enrollment disconnected")
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Enrollment %s disconnected", id),
	})
}
