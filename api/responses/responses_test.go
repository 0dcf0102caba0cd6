package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
	"github.com/castmaster/castmaster-backend/pkg/logger"
	"github.com/castmaster/castmaster-backend/pkg/types"
)

func TestWriteSuccessWritesBareBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]any{"allowed": true, "remaining": 2})

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["allowed"])
	assert.EqualValues(t, 2, body["remaining"])
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "jobId is required").
		WithDetails(map[string]string{"field": "jobId"})
	WriteError(context.Background(), logger.Discard(), w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body types.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "jobId is required", body.Error)
	assert.Equal(t, string(pkgerrors.CodeValidation), body.Code)
	assert.NotNil(t, body.Details)
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body types.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Error)
	assert.NotContains(t, body.Error, "pq")
}

func TestWriteErrorKeepsDependencyMessage(t *testing.T) {
	w := httptest.NewRecorder()
	cause := errors.New("resend: 502 bad gateway")
	WriteError(context.Background(), nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "Failed to send email"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body types.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Failed to send email", body.Error)
	assert.NotContains(t, body.Error, "resend")
}

func TestWriteErrorRepeatsRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "req-7")
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "Job not found"))

	var body types.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "req-7", body.RequestID)
	assert.Equal(t, "Job not found", body.Error)
}
