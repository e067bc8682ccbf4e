package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/helpcomp/teller-dashboard/forecast"
	"github.com/helpcomp/teller-dashboard/httperror"
)

func (s *Server) handleWeeklyForecast(w http.ResponseWriter, r *http.Request) {
	wk, err := s.forecast.Weekly(r.Context(), s.now())
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to build forecast", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, wk)
}

// handleMonthlyForecast defaults to the current year and month.
func (s *Server) handleMonthlyForecast(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	year, err := intParam(r, "year", now.Year())
	if err != nil || year < now.Year()-forecast.MaxYearsAhead || year > now.Year()+forecast.MaxYearsAhead {
		httperror.Send(w, r, http.StatusBadRequest,
			fmt.Sprintf("year must be within %d years of the current year", forecast.MaxYearsAhead))
		return
	}
	month, err := intParam(r, "month", int(now.Month()))
	if err != nil || month < 1 || month > 12 {
		httperror.Send(w, r, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	m, err := s.forecast.Monthly(r.Context(), year, time.Month(month), now)
	if errors.Is(err, forecast.ErrOutOfRange) {
		httperror.Send(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		httperror.SendError(w, r, http.StatusInternalServerError, "failed to build forecast", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, m)
}
