package appclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUsageSendsSessionAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rate-limit/check", r.URL.Path)
		assert.Equal(t, "u-1", r.URL.Query().Get("userId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"allowed":false,"remaining":0,"limit":2,"used":2}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, WithSessionToken(" tok "))
	require.NoError(t, err)
	assert.True(t, client.Authenticated())

	status, err := client.CheckUsage(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 2, status.Used)
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No HQ credits available","code":"VALIDATION_ERROR"}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)
	_, err = client.ConsumeHQ(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "No HQ credits available", apiErr.Message)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
}

func TestSendNotificationDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "job-1", body["jobId"])
		_, _ = w.Write([]byte(`{"success":true,"message":"Email already sent for this job","alreadySent":true}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)
	result, err := client.SendNotification(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, result.AlreadySent)
}

func TestUploadFileStreamsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "output", r.FormValue("fileType"))
		assert.Equal(t, "job-9", r.FormValue("jobId"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		raw, _ := io.ReadAll(file)
		assert.Equal(t, "mastered-ep.wav", header.Filename)
		assert.Equal(t, "audio-bytes", string(raw))
		_, _ = w.Write([]byte(`{"success":true,"file":{"id":"f1","fileName":"mastered-ep.wav","fileSize":11,"url":"https://cdn/f1","fileType":"output"}}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)
	stored, err := client.UploadFile(context.Background(), "mastered-ep.wav", "output", "job-9", strings.NewReader("audio-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "f1", stored.ID)
	assert.EqualValues(t, 11, stored.FileSize)
}

func TestNotifyJobStartedTreatsFalseAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)
	assert.Error(t, client.NotifyJobStarted(context.Background(), JobStarted{JobID: "j"}))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
