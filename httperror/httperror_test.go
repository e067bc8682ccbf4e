package httperror

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSend(t *testing.T) {
	rec := httptest.NewRecorder()
	Send(rec, httptest.NewRequest(http.MethodGet, "/api/accounts/x", nil), http.StatusNotFound, "Account not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Account not found"}`, rec.Body.String())
}

func TestSendError(t *testing.T) {
	rec := httptest.NewRecorder()
	SendError(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil), http.StatusInternalServerError,
		"sync failed", errors.New("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"sync failed"}`, rec.Body.String())
}
