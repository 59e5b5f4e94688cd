package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		status  int
		code    string
		message string
	}{
		{http.StatusBadRequest, "missing_tickers", "No tickers provided"},
		{http.StatusNotFound, "not_found", "Ticker does not exist"},
		{http.StatusInternalServerError, "internal_error", "Failed to list articles"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, ErrorResponse(rec, tt.status, tt.code, tt.message))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, map[string]string{"error": tt.code, "message": tt.message}, body)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, FollowResponse{Status: "followed", Ticker: "AAPL"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"followed","ticker":"AAPL"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusAccepted, JobAcceptedResponse{Status: "accepted", Job: JobBackfill}))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStatusResponse_OmitsEmptyMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, StatusResponse{Status: "success"}))
	assert.Equal(t, "{\"status\":\"success\"}\n", rec.Body.String())
}

func TestWriteJSON_LogsEncodingFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	writeJSON(httptest.NewRecorder(), zap.New(core), http.StatusOK, make(chan int))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to write response", logs.All()[0].Message)
}
